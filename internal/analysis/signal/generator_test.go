package signal

import (
	"testing"

	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator() *Generator {
	return NewGenerator(
		config.StrategyConfig{
			TPFraction:     0.9,
			TimeoutCandles: 15,
		},
		config.TradingConfig{
			MinLeverage: 2,
			MaxLeverage: 20,
		},
	)
}

func testProfile() *models.VolumeProfile {
	return &models.VolumeProfile{
		POC:              45100,
		ValueAreaHigh:    45300,
		ValueAreaLow:     44900,
		Sigma2High:       45500,
		Sigma2Low:        44700,
		MeanPrice:        45100,
		StdPrice:         200,
		Lookback:         80,
		Developed:        true,
		DevelopmentScore: 85,
	}
}

func candle(high, low, close float64) []*models.Candle {
	return []*models.Candle{{
		Symbol: "BTCUSDT",
		Open:   close,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 1,
	}}
}

func TestGenerateLongOneSigma(t *testing.T) {
	g := newTestGenerator()

	// Тень до -1σ (44900), закрытие обратно внутри области
	sig := g.Generate("BTCUSDT", "1m", candle(44990, 44880, 44950), testProfile(), 0.8)

	require.Equal(t, models.DirectionLong, sig.Direction)
	assert.Equal(t, models.EntryLevel1Sigma, sig.Metadata.EntryLevel)
	assert.InDelta(t, 44950.0, sig.EntryPrice, 1e-9)

	// Цель: вход + 0.9 * |POC - вход| = 44950 + 135
	assert.InDelta(t, 45085.0, sig.TargetPrice, 1e-9)

	// Стоп: -2σ минус запас 0.0015 от границы области
	assert.InDelta(t, 44700-44900*0.0015, sig.StopLoss, 1e-9)

	risk := sig.EntryPrice - sig.StopLoss
	assert.InDelta(t, 135.0/risk, sig.RiskReward, 1e-9)

	// round(0.43 * 3) = 1, зажато до минимума
	assert.Equal(t, 2, sig.Leverage)
	assert.Equal(t, 15, sig.Metadata.TimeoutCandles)
	assert.Equal(t, 80, sig.Metadata.Lookback)
	assert.InDelta(t, 85.0, sig.Confidence, 1e-9)
}

func TestGenerateLongTwoSigma(t *testing.T) {
	g := newTestGenerator()

	// Тень пробила -2σ (44700)
	sig := g.Generate("BTCUSDT", "1m", candle(44990, 44650, 44950), testProfile(), 0.8)

	require.Equal(t, models.DirectionLong, sig.Direction)
	assert.Equal(t, models.EntryLevel2Sigma, sig.Metadata.EntryLevel)
	assert.InDelta(t, 44700-44700*0.0025, sig.StopLoss, 1e-9)
}

func TestGenerateShortOneSigma(t *testing.T) {
	g := newTestGenerator()

	// Тень до +1σ (45300), закрытие обратно внутри области
	sig := g.Generate("BTCUSDT", "1m", candle(45320, 45210, 45250), testProfile(), 0.8)

	require.Equal(t, models.DirectionShort, sig.Direction)
	assert.Equal(t, models.EntryLevel1Sigma, sig.Metadata.EntryLevel)
	assert.InDelta(t, 45250-0.9*150, sig.TargetPrice, 1e-9)
	assert.InDelta(t, 45500+45300*0.0015, sig.StopLoss, 1e-9)
}

func TestGenerateShortTwoSigma(t *testing.T) {
	g := newTestGenerator()

	sig := g.Generate("BTCUSDT", "1m", candle(45550, 45210, 45250), testProfile(), 0.8)

	require.Equal(t, models.DirectionShort, sig.Direction)
	assert.Equal(t, models.EntryLevel2Sigma, sig.Metadata.EntryLevel)
	assert.InDelta(t, 45500+45500*0.0025, sig.StopLoss, 1e-9)
}

func TestGenerateNeutralNoTouch(t *testing.T) {
	g := newTestGenerator()

	// Свеча целиком внутри ценовой области
	sig := g.Generate("BTCUSDT", "1m", candle(45150, 45050, 45100), testProfile(), 0.8)

	assert.True(t, sig.IsNeutral())
	assert.NotEmpty(t, sig.Reasoning)
	assert.Equal(t, 1, sig.Leverage)
	assert.Zero(t, sig.EntryPrice)
}

func TestGenerateNeutralCloseOutside(t *testing.T) {
	g := newTestGenerator()

	// Тень коснулась -1σ, но закрытие осталось ниже области:
	// возврата не было, сигнала нет
	sig := g.Generate("BTCUSDT", "1m", candle(44890, 44700, 44850), testProfile(), 0.8)

	assert.True(t, sig.IsNeutral())
}

func TestGenerateNeutralNoData(t *testing.T) {
	g := newTestGenerator()

	assert.True(t, g.Generate("BTCUSDT", "1m", nil, testProfile(), 0.8).IsNeutral())
	assert.True(t, g.Generate("BTCUSDT", "1m", candle(1, 1, 1), nil, 0.8).IsNeutral())
}

func TestRiskRewardRatioDegenerateRisk(t *testing.T) {
	assert.Equal(t, 0.0, riskRewardRatio(0, 100))
	assert.Equal(t, 0.0, riskRewardRatio(-5, 100))
	assert.InDelta(t, 2.0, riskRewardRatio(50, 100), 1e-9)
}

func TestLeverageClamped(t *testing.T) {
	g := newTestGenerator()

	assert.Equal(t, 2, g.leverage(0))    // round(0) = 0 -> минимум
	assert.Equal(t, 2, g.leverage(0.5))  // round(1.5) = 2
	assert.Equal(t, 6, g.leverage(2))    // round(6) = 6
	assert.Equal(t, 20, g.leverage(100)) // зажато до максимума
}

func TestHighLeverageFromWideRR(t *testing.T) {
	g := newTestGenerator()

	p := testProfile()
	// Тень до -2σ и закрытие у самой границы: большой потенциал, малый риск
	sig := g.Generate("BTCUSDT", "1m", candle(44950, 44650, 44910), p, 0.8)

	require.Equal(t, models.DirectionLong, sig.Direction)
	risk := sig.EntryPrice - sig.StopLoss
	reward := sig.TargetPrice - sig.EntryPrice
	assert.InDelta(t, reward/risk, sig.RiskReward, 1e-9)
	assert.GreaterOrEqual(t, sig.Leverage, 2)
	assert.LessOrEqual(t, sig.Leverage, 20)
}
