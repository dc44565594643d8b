package position

import (
	"testing"
	"time"

	"github.com/skalibog/vpscalp/pkg/models"
	"github.com/stretchr/testify/assert"
)

func longPosition() *models.Position {
	return &models.Position{
		Symbol:         "BTCUSDT",
		Direction:      models.DirectionLong,
		EntryPrice:     44950,
		Size:           100,
		Leverage:       5,
		TakeProfit:     45200,
		StopLoss:       44700,
		Timeframe:      "1m",
		TimeoutCandles: 15,
		Status:         models.PositionOpen,
	}
}

func shortPosition() *models.Position {
	p := longPosition()
	p.Direction = models.DirectionShort
	p.TakeProfit = 44700
	p.StopLoss = 45200
	return p
}

func TestEvaluateLong(t *testing.T) {
	tests := []struct {
		name        string
		price       float64
		candlesHeld int
		reason      models.ExitReason
		shouldExit  bool
	}{
		{"тейк-профит", 45210, 0, models.ExitTakeProfit, true},
		{"тейк-профит ровно на уровне", 45200, 0, models.ExitTakeProfit, true},
		{"стоп-лосс", 44690, 0, models.ExitStopLoss, true},
		{"стоп-лосс ровно на уровне", 44700, 0, models.ExitStopLoss, true},
		{"таймаут", 45000, 15, models.ExitTimeout, true},
		{"без выхода", 45000, 14, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, shouldExit := Evaluate(longPosition(), tt.price, tt.candlesHeld)
			assert.Equal(t, tt.shouldExit, shouldExit)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestEvaluateShort(t *testing.T) {
	reason, shouldExit := Evaluate(shortPosition(), 44690, 0)
	assert.True(t, shouldExit)
	assert.Equal(t, models.ExitTakeProfit, reason)

	reason, shouldExit = Evaluate(shortPosition(), 45210, 0)
	assert.True(t, shouldExit)
	assert.Equal(t, models.ExitStopLoss, reason)

	_, shouldExit = Evaluate(shortPosition(), 45000, 5)
	assert.False(t, shouldExit)
}

func TestEvaluatePriority(t *testing.T) {
	// Тейк-профит и таймаут одновременно: побеждает тейк-профит
	reason, shouldExit := Evaluate(longPosition(), 45210, 20)
	assert.True(t, shouldExit)
	assert.Equal(t, models.ExitTakeProfit, reason)

	// Стоп-лосс и таймаут одновременно: побеждает стоп-лосс
	reason, shouldExit = Evaluate(longPosition(), 44600, 20)
	assert.True(t, shouldExit)
	assert.Equal(t, models.ExitStopLoss, reason)
}

func TestCandlesHeld(t *testing.T) {
	openedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, CandlesHeld(openedAt, "1m", openedAt.Add(30*time.Second)))
	assert.Equal(t, 5, CandlesHeld(openedAt, "1m", openedAt.Add(5*time.Minute+30*time.Second)))
	assert.Equal(t, 2, CandlesHeld(openedAt, "1h", openedAt.Add(2*time.Hour)))

	// Часы назад не ходят, но деление не должно дать отрицательное
	assert.Equal(t, 0, CandlesHeld(openedAt, "1m", openedAt.Add(-time.Minute)))
}

func TestUnrealizedPnL(t *testing.T) {
	p := longPosition()
	p.EntryPrice = 100
	p.Size = 100
	p.Leverage = 10

	assert.InDelta(t, 10.0, UnrealizedPnL(p, 101), 1e-9)
	assert.InDelta(t, -10.0, UnrealizedPnL(p, 99), 1e-9)

	p.Direction = models.DirectionShort
	assert.InDelta(t, -10.0, UnrealizedPnL(p, 101), 1e-9)
	assert.InDelta(t, 10.0, UnrealizedPnL(p, 99), 1e-9)

	p.EntryPrice = 0
	assert.Zero(t, UnrealizedPnL(p, 99))
}
