package profile

import (
	"errors"
	"math"

	"github.com/skalibog/vpscalp/pkg/models"
)

// ErrInsufficientData возвращается, когда свечей меньше запрошенного окна
// или срез вырожден (нулевой суммарный объем, нулевой диапазон цен).
var ErrInsufficientData = errors.New("недостаточно данных для профиля объема")

// Порог развитости профиля. Фиксированный, не настраивается —
// порог принятия сигнала задается отдельно на стороне вызывающего.
const developedThreshold = 70.0

// Calculate строит профиль объема по последним lookback свечам.
//
// Диапазон [min(low), max(high)] делится на min(50, lookback/2) корзин
// равной ширины, объем каждой свечи относится к корзине ее цены закрытия.
// POC — середина корзины с максимальным объемом. Средняя и стандартное
// отклонение считаются взвешенно по объему каждой свечи.
func Calculate(candles []*models.Candle, lookback int) (*models.VolumeProfile, error) {
	if len(candles) < lookback || lookback < 2 {
		return nil, ErrInsufficientData
	}

	data := candles[len(candles)-lookback:]

	minLow := data[0].Low
	maxHigh := data[0].High
	totalVolume := 0.0
	for _, c := range data {
		if c.Low < minLow {
			minLow = c.Low
		}
		if c.High > maxHigh {
			maxHigh = c.High
		}
		totalVolume += c.Volume
	}

	priceRange := maxHigh - minLow
	if totalVolume <= 0 || priceRange <= 0 {
		return nil, ErrInsufficientData
	}

	numBins := lookback / 2
	if numBins > 50 {
		numBins = 50
	}
	binSize := priceRange / float64(numBins)

	// Объем по ценовым корзинам
	binVolumes := make([]float64, numBins)
	for _, c := range data {
		binVolumes[binIndex(c.Close, minLow, binSize, numBins)] += c.Volume
	}

	pocBin := 0
	for i, v := range binVolumes {
		if v > binVolumes[pocBin] {
			pocBin = i
		}
	}
	poc := minLow + (float64(pocBin)+0.5)*binSize

	// Взвешенная по объему статистика цен закрытия
	var weightedSum float64
	for _, c := range data {
		weightedSum += c.Close * c.Volume
	}
	meanPrice := weightedSum / totalVolume

	var variance float64
	for _, c := range data {
		d := c.Close - meanPrice
		variance += d * d * c.Volume
	}
	variance /= totalVolume
	stdPrice := math.Sqrt(variance)

	score := developmentScore(data, poc, meanPrice, stdPrice)

	return &models.VolumeProfile{
		POC:              poc,
		ValueAreaHigh:    meanPrice + stdPrice,
		ValueAreaLow:     meanPrice - stdPrice,
		Sigma2High:       meanPrice + 2*stdPrice,
		Sigma2Low:        meanPrice - 2*stdPrice,
		MeanPrice:        meanPrice,
		StdPrice:         stdPrice,
		Lookback:         lookback,
		Developed:        score >= developedThreshold,
		DevelopmentScore: score,
	}, nil
}

// developmentScore оценивает развитость профиля от 0 до 100.
// Среднее четырех подоценок: дрейф POC, асимметрия, эксцесс
// и доля закрытий внутри ценовой области ±1σ.
func developmentScore(data []*models.Candle, poc, mean, std float64) float64 {
	scores := []float64{
		pocDriftScore(data, poc),
	}

	m2, m3, m4 := centralMoments(data)
	if m2 > 0 {
		skew := m3 / math.Pow(m2, 1.5)
		kurt := m4 / (m2 * m2) // определение Пирсона, норма ≈ 3
		scores = append(scores, skewnessScore(skew), kurtosisScore(kurt))
	} else {
		// Все закрытия совпадают, форма распределения не определена
		scores = append(scores, 0, 0)
	}

	scores = append(scores, coverageScore(data, mean, std))

	var sum float64
	for _, s := range scores {
		sum += clampScore(s)
	}
	return sum / float64(len(scores))
}

// pocDriftScore сравнивает POC последних 10 свечей (фиксированные 20 корзин)
// с POC всего окна. Дрейф до 0.3% не штрафуется. Меньше 10 свечей —
// нейтральные 50 баллов.
func pocDriftScore(data []*models.Candle, poc float64) float64 {
	if len(data) < 10 || poc == 0 {
		return 50
	}

	recent := data[len(data)-10:]
	minClose := recent[0].Close
	maxClose := recent[0].Close
	for _, c := range recent {
		if c.Close < minClose {
			minClose = c.Close
		}
		if c.Close > maxClose {
			maxClose = c.Close
		}
	}

	recentPOC := minClose
	if closeRange := maxClose - minClose; closeRange > 0 {
		const recentBins = 20
		binSize := closeRange / recentBins
		volumes := make([]float64, recentBins)
		for _, c := range recent {
			volumes[binIndex(c.Close, minClose, binSize, recentBins)] += c.Volume
		}
		pocBin := 0
		for i, v := range volumes {
			if v > volumes[pocBin] {
				pocBin = i
			}
		}
		recentPOC = minClose + (float64(pocBin)+0.5)*binSize
	}

	drift := math.Abs(recentPOC-poc) / poc * 100
	if drift < 0.3 {
		return 100
	}
	return 100 - (drift-0.3)*200
}

func skewnessScore(skew float64) float64 {
	if math.Abs(skew) <= 0.25 {
		return 100
	}
	return 100 - (math.Abs(skew)-0.25)*200
}

func kurtosisScore(kurt float64) float64 {
	if kurt >= 2.5 && kurt <= 3.5 {
		return 100
	}
	return 100 - math.Abs(kurt-3.0)*50
}

// coverageScore — доля закрытий внутри [mean-std, mean+std].
// Покрытие от 65% дает полный балл, ниже — линейно.
func coverageScore(data []*models.Candle, mean, std float64) float64 {
	within := 0
	for _, c := range data {
		if c.Close >= mean-std && c.Close <= mean+std {
			within++
		}
	}
	coverage := float64(within) / float64(len(data)) * 100
	if coverage >= 65 {
		return 100
	}
	return coverage * (100.0 / 65.0)
}

// centralMoments возвращает невзвешенные центральные моменты закрытий
func centralMoments(data []*models.Candle) (m2, m3, m4 float64) {
	n := float64(len(data))
	var mean float64
	for _, c := range data {
		mean += c.Close
	}
	mean /= n

	for _, c := range data {
		d := c.Close - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m3 /= n
	m4 /= n
	return m2, m3, m4
}

func binIndex(price, min, binSize float64, numBins int) int {
	idx := int((price - min) / binSize)
	if idx < 0 {
		idx = 0
	}
	if idx >= numBins {
		idx = numBins - 1
	}
	return idx
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
