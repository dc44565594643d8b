package volatility

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/pkg/models"
)

// Analyzer фильтрует символы по волатильности. ATR в процентах от цены
// должен попадать в настроенный коридор, иначе генерация сигнала
// не выполняется вовсе — мертвый или хаотичный рынок не торгуем.
type Analyzer struct {
	period int
	atrMin float64
	atrMax float64
}

// NewAnalyzer создает анализатор волатильности
func NewAnalyzer(cfg config.StrategyConfig) *Analyzer {
	return &Analyzer{
		period: cfg.ATRPeriod,
		atrMin: cfg.ATRMin,
		atrMax: cfg.ATRMax,
	}
}

// ATRPercent считает ATR как процент от последней цены закрытия.
// True Range каждой свечи сглаживается простым скользящим средним.
func (a *Analyzer) ATRPercent(candles []*models.Candle) (float64, error) {
	if len(candles) < a.period+1 {
		return 0, fmt.Errorf("недостаточно свечей для ATR: %d (требуется %d)",
			len(candles), a.period+1)
	}

	tr := make([]float64, len(candles))
	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low,
			math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}

	atr := talib.Sma(tr, a.period)
	lastATR := atr[len(atr)-1]

	lastClose := candles[len(candles)-1].Close
	if lastClose <= 0 {
		return 0, fmt.Errorf("некорректная цена закрытия: %f", lastClose)
	}

	return lastATR / lastClose * 100, nil
}

// Check возвращает ATR% и признак попадания в коридор.
// Границы включительные.
func (a *Analyzer) Check(candles []*models.Candle) (float64, bool, error) {
	atrPercent, err := a.ATRPercent(candles)
	if err != nil {
		return 0, false, err
	}
	return atrPercent, atrPercent >= a.atrMin && atrPercent <= a.atrMax, nil
}
