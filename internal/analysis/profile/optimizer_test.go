package profile

import (
	"testing"

	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStrategy(min, max, step int) config.StrategyConfig {
	return config.StrategyConfig{
		LookbackMin:  min,
		LookbackMax:  max,
		LookbackStep: step,
	}
}

func TestBestNoCandles(t *testing.T) {
	o := NewOptimizer(testStrategy(50, 120, 10))

	_, err := o.Best(nil)
	assert.ErrorIs(t, err, ErrNoDevelopedProfile)

	_, err = o.Best(balancedCandles()[:10])
	assert.ErrorIs(t, err, ErrNoDevelopedProfile)
}

func TestBestNoDevelopedProfile(t *testing.T) {
	// Плоские закрытия никогда не дают развитый профиль
	var candles []*models.Candle
	for i := 0; i < 200; i++ {
		candles = append(candles, makeCandle(100))
	}

	o := NewOptimizer(testStrategy(50, 120, 10))
	_, err := o.Best(candles)
	assert.ErrorIs(t, err, ErrNoDevelopedProfile)
}

func TestBestSingleWindow(t *testing.T) {
	o := NewOptimizer(testStrategy(60, 60, 10))

	p, err := o.Best(balancedCandles())
	require.NoError(t, err)
	assert.Equal(t, 60, p.Lookback)
	assert.True(t, p.Developed)
}

func TestBestSkipsWindowsWithoutData(t *testing.T) {
	// Свечей хватает только на минимальное окно, остальные пропускаются
	o := NewOptimizer(testStrategy(60, 120, 10))

	p, err := o.Best(balancedCandles())
	require.NoError(t, err)
	assert.Equal(t, 60, p.Lookback)
}

func TestBestKeepsSmallestWindowOnTie(t *testing.T) {
	// Окна 60 и 70 построены симметричными и дают одинаковую
	// максимальную оценку. Строгое сравнение оставляет меньшее окно.
	var candles []*models.Candle
	for i := 0; i < 2; i++ {
		candles = append(candles, makeCandle(99))
	}
	for i := 0; i < 6; i++ {
		candles = append(candles, makeCandle(100))
	}
	for i := 0; i < 2; i++ {
		candles = append(candles, makeCandle(101))
	}
	candles = append(candles, balancedCandles()...)
	require.Len(t, candles, 70)

	o := NewOptimizer(testStrategy(50, 70, 10))

	p, err := o.Best(candles)
	require.NoError(t, err)
	assert.Equal(t, 60, p.Lookback)
}
