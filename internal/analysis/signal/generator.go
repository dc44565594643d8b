package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/pkg/models"
)

// Запас стопа за границей 2σ: доля от уровня 2σ при входе от 2σ
// и доля от границы ценовой области при входе от 1σ.
const (
	stopBuffer2Sigma = 0.0025
	stopBuffer1Sigma = 0.0015
)

// Generator строит торговый сигнал из развитого профиля объема.
//
// Вход требует отклонения и возврата в рамках одной свечи: тень должна
// коснуться границы ценовой области, а закрытие — вернуться внутрь.
// Одно касание границы сигналом не считается.
type Generator struct {
	tpFraction     float64
	minLeverage    int
	maxLeverage    int
	timeoutCandles int
}

// NewGenerator создает генератор сигналов
func NewGenerator(strategy config.StrategyConfig, trading config.TradingConfig) *Generator {
	return &Generator{
		tpFraction:     strategy.TPFraction,
		minLeverage:    trading.MinLeverage,
		maxLeverage:    trading.MaxLeverage,
		timeoutCandles: strategy.TimeoutCandles,
	}
}

// Generate оценивает последнюю свечу относительно профиля.
// NEUTRAL — ожидаемый результат большинства циклов, не ошибка.
func (g *Generator) Generate(symbol, timeframe string, candles []*models.Candle,
	profile *models.VolumeProfile, atrPercent float64) *models.Signal {

	if len(candles) == 0 || profile == nil {
		return g.Neutral(symbol, timeframe, "нет данных для оценки входа")
	}

	current := candles[len(candles)-1]
	price := current.Close

	insideVA := price >= profile.ValueAreaLow && price <= profile.ValueAreaHigh

	// LONG: тень вниз до -1σ и закрытие обратно внутри ценовой области
	if current.Low <= profile.ValueAreaLow && insideVA {
		entryLevel := models.EntryLevel1Sigma
		stopLoss := profile.Sigma2Low - profile.ValueAreaLow*stopBuffer1Sigma
		if current.Low <= profile.Sigma2Low {
			entryLevel = models.EntryLevel2Sigma
			stopLoss = profile.Sigma2Low - profile.Sigma2Low*stopBuffer2Sigma
		}

		target := price + g.tpFraction*math.Abs(profile.POC-price)
		riskReward := riskRewardRatio(price-stopLoss, target-price)

		return g.tradeSignal(symbol, timeframe, models.DirectionLong, price, target,
			stopLoss, riskReward, profile, atrPercent, entryLevel,
			fmt.Sprintf("Тень до %s (%.2f), закрытие внутри ценовой области на %.2f. POC %.2f. Оценка профиля %.1f. ATR %.3f%%.",
				entryLevel, current.Low, price, profile.POC, profile.DevelopmentScore, atrPercent))
	}

	// SHORT: зеркально, тень вверх до +1σ
	if current.High >= profile.ValueAreaHigh && insideVA {
		entryLevel := models.EntryLevel1Sigma
		stopLoss := profile.Sigma2High + profile.ValueAreaHigh*stopBuffer1Sigma
		if current.High >= profile.Sigma2High {
			entryLevel = models.EntryLevel2Sigma
			stopLoss = profile.Sigma2High + profile.Sigma2High*stopBuffer2Sigma
		}

		target := price - g.tpFraction*math.Abs(price-profile.POC)
		riskReward := riskRewardRatio(stopLoss-price, price-target)

		return g.tradeSignal(symbol, timeframe, models.DirectionShort, price, target,
			stopLoss, riskReward, profile, atrPercent, entryLevel,
			fmt.Sprintf("Тень до %s (%.2f), закрытие внутри ценовой области на %.2f. POC %.2f. Оценка профиля %.1f. ATR %.3f%%.",
				entryLevel, current.High, price, profile.POC, profile.DevelopmentScore, atrPercent))
	}

	return g.Neutral(symbol, timeframe, "условия возврата к среднему не выполнены")
}

// Neutral возвращает сигнал "сделки нет" с причиной
func (g *Generator) Neutral(symbol, timeframe, reason string) *models.Signal {
	return &models.Signal{
		Symbol:    symbol,
		Direction: models.DirectionNeutral,
		Timeframe: timeframe,
		Leverage:  1,
		Reasoning: reason,
		Timestamp: time.Now(),
	}
}

func (g *Generator) tradeSignal(symbol, timeframe string, direction models.Direction,
	entry, target, stopLoss, riskReward float64, profile *models.VolumeProfile,
	atrPercent float64, entryLevel models.EntryLevel, reasoning string) *models.Signal {

	return &models.Signal{
		Symbol:      symbol,
		Direction:   direction,
		Confidence:  profile.DevelopmentScore,
		EntryPrice:  entry,
		TargetPrice: target,
		StopLoss:    stopLoss,
		Leverage:    g.leverage(riskReward),
		Timeframe:   timeframe,
		Profile:     profile,
		ATRPercent:  atrPercent,
		RiskReward:  riskReward,
		Reasoning:   reasoning,
		Metadata: models.SignalMetadata{
			EntryLevel:     entryLevel,
			Lookback:       profile.Lookback,
			TimeoutCandles: g.timeoutCandles,
		},
		Timestamp: time.Now(),
	}
}

// riskRewardRatio возвращает 0 при неположительном риске,
// чтобы не раздувать плечо на вырожденной конфигурации
func riskRewardRatio(risk, reward float64) float64 {
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// leverage выводит плечо из соотношения риск/прибыль с зажимом в границы
func (g *Generator) leverage(riskReward float64) int {
	lev := int(math.Round(riskReward * 3))
	if lev < g.minLeverage {
		lev = g.minLeverage
	}
	if lev > g.maxLeverage {
		lev = g.maxLeverage
	}
	return lev
}
