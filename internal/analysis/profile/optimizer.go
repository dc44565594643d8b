package profile

import (
	"errors"

	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/pkg/models"
)

// ErrNoDevelopedProfile возвращается, когда ни одно окно не дало развитый профиль
var ErrNoDevelopedProfile = errors.New("развитый профиль объема не найден")

// Optimizer подбирает окно, на котором профиль развит лучше всего
type Optimizer struct {
	lookbackMin  int
	lookbackMax  int
	lookbackStep int
}

// NewOptimizer создает оптимизатор окна профиля
func NewOptimizer(cfg config.StrategyConfig) *Optimizer {
	return &Optimizer{
		lookbackMin:  cfg.LookbackMin,
		lookbackMax:  cfg.LookbackMax,
		lookbackStep: cfg.LookbackStep,
	}
}

// Best перебирает окна от минимального к максимальному с фиксированным шагом
// и возвращает развитый профиль с максимальной оценкой. Кандидатов мало
// (меньше десятка), поэтому полный перебор. Строгое сравнение оставляет
// при равных оценках наименьшее окно.
func (o *Optimizer) Best(candles []*models.Candle) (*models.VolumeProfile, error) {
	var best *models.VolumeProfile

	for lookback := o.lookbackMin; lookback <= o.lookbackMax; lookback += o.lookbackStep {
		p, err := Calculate(candles, lookback)
		if err != nil {
			// Для больших окон может не хватать свечей, это не фатально
			continue
		}
		if !p.Developed {
			continue
		}
		if best == nil || p.DevelopmentScore > best.DevelopmentScore {
			best = p
		}
	}

	if best == nil {
		return nil, ErrNoDevelopedProfile
	}
	return best, nil
}
