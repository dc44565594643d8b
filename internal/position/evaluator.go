package position

import (
	"time"

	"github.com/skalibog/vpscalp/pkg/models"
)

// Evaluate проверяет условия выхода в фиксированном порядке:
// тейк-профит, стоп-лосс, таймаут. Срабатывает только первое
// выполнившееся условие.
func Evaluate(p *models.Position, currentPrice float64, candlesHeld int) (models.ExitReason, bool) {
	switch p.Direction {
	case models.DirectionLong:
		if currentPrice >= p.TakeProfit {
			return models.ExitTakeProfit, true
		}
		if currentPrice <= p.StopLoss {
			return models.ExitStopLoss, true
		}
	case models.DirectionShort:
		if currentPrice <= p.TakeProfit {
			return models.ExitTakeProfit, true
		}
		if currentPrice >= p.StopLoss {
			return models.ExitStopLoss, true
		}
	}

	if candlesHeld >= p.TimeoutCandles {
		return models.ExitTimeout, true
	}

	return "", false
}

// CandlesHeld оценивает число свечей в позиции по прошедшему времени.
// Деление календарного времени на номинал таймфрейма расходится с
// фактическим числом свечей при простоях биржи — известная неточность,
// сохраняем поведение как есть.
func CandlesHeld(openedAt time.Time, timeframe string, now time.Time) int {
	held := int(now.Sub(openedAt) / models.IntervalDuration(timeframe))
	if held < 0 {
		return 0
	}
	return held
}

// UnrealizedPnL считает нереализованный результат позиции с учетом плеча
func UnrealizedPnL(p *models.Position, currentPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	switch p.Direction {
	case models.DirectionLong:
		return p.Size * (currentPrice - p.EntryPrice) / p.EntryPrice * float64(p.Leverage)
	case models.DirectionShort:
		return p.Size * (p.EntryPrice - currentPrice) / p.EntryPrice * float64(p.Leverage)
	}
	return 0
}
