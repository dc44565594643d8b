// Package scanner объединяет аналитические компоненты стратегии
// в один конвейер: фильтр волатильности, подбор окна профиля,
// генерация сигнала, подтверждение советником и открытие позиции.
package scanner

import (
	"context"
	"fmt"
	"sync"

	"github.com/skalibog/vpscalp/internal/advisory"
	"github.com/skalibog/vpscalp/internal/analysis/profile"
	"github.com/skalibog/vpscalp/internal/analysis/signal"
	"github.com/skalibog/vpscalp/internal/analysis/volatility"
	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/internal/exchange"
	"github.com/skalibog/vpscalp/internal/position"
	"github.com/skalibog/vpscalp/internal/storage"
	"github.com/skalibog/vpscalp/pkg/logger"
	"github.com/skalibog/vpscalp/pkg/models"
	"go.uber.org/zap"
)

// Запас свечей сверх максимального окна: хватает и на прогрев ATR,
// и на самый длинный lookback.
const candleMargin = 50

// Scanner сканирует рынок по всем символам и таймфреймам
type Scanner struct {
	cfg        config.Config
	client     *exchange.BinanceClient
	storage    storage.Storage
	volatility *volatility.Analyzer
	optimizer  *profile.Optimizer
	generator  *signal.Generator
	advisor    advisory.Service
	manager    *position.Manager

	mu     sync.RWMutex
	latest map[string]*models.Signal
}

// NewScanner создает сканер рынка
func NewScanner(cfg config.Config, client *exchange.BinanceClient, store storage.Storage,
	advisor advisory.Service, manager *position.Manager) *Scanner {

	return &Scanner{
		cfg:        cfg,
		client:     client,
		storage:    store,
		volatility: volatility.NewAnalyzer(cfg.Strategy),
		optimizer:  profile.NewOptimizer(cfg.Strategy),
		generator:  signal.NewGenerator(cfg.Strategy, cfg.Trading),
		advisor:    advisor,
		manager:    manager,
		latest:     make(map[string]*models.Signal),
	}
}

// Scan выполняет один проход по всем символам параллельно.
// Символы с открытой позицией пропускаются: одна позиция на символ.
func (s *Scanner) Scan(ctx context.Context) map[string]*models.Signal {
	results := make(map[string]*models.Signal)
	var wg sync.WaitGroup
	var mutex sync.Mutex

	for _, symbol := range s.cfg.Trading.Symbols {
		if s.manager.HasOpen(symbol) {
			logger.Debug("По символу уже открыта позиция, пропускаем", zap.String("symbol", symbol))
			continue
		}

		wg.Add(1)
		go func(sym string) {
			defer wg.Done()

			sig, err := s.scanSymbol(ctx, sym)
			if err != nil {
				logger.Warn("Ошибка сканирования символа",
					zap.String("symbol", sym), zap.Error(err))
				return
			}

			mutex.Lock()
			results[sym] = sig
			mutex.Unlock()
		}(symbol)
	}

	wg.Wait()

	s.mu.Lock()
	for sym, sig := range results {
		s.latest[sym] = sig
	}
	s.mu.Unlock()

	for _, sig := range results {
		if sig.IsNeutral() {
			continue
		}
		s.execute(ctx, sig)
	}

	return results
}

// scanSymbol проходит все таймфреймы символа и возвращает лучший сигнал.
// При нескольких торговых сигналах выбирается тот, у которого выше
// оценка развитости профиля.
func (s *Scanner) scanSymbol(ctx context.Context, symbol string) (*models.Signal, error) {
	var best *models.Signal

	for _, timeframe := range s.cfg.Trading.Timeframes {
		sig, err := s.scanTimeframe(ctx, symbol, timeframe)
		if err != nil {
			logger.Warn("Таймфрейм пропущен",
				zap.String("symbol", symbol),
				zap.String("timeframe", timeframe),
				zap.Error(err))
			continue
		}

		if best == nil || (!sig.IsNeutral() && (best.IsNeutral() || sig.Confidence > best.Confidence)) {
			best = sig
		}
	}

	if best == nil {
		return nil, fmt.Errorf("ни один таймфрейм %s не дал результата", symbol)
	}
	return best, nil
}

// scanTimeframe выполняет конвейер стратегии для одной пары символ-таймфрейм.
// Фильтр волатильности стоит первым и при отказе обрывает конвейер:
// подбор окна профиля на отсеянном рынке не выполняется.
func (s *Scanner) scanTimeframe(ctx context.Context, symbol, timeframe string) (*models.Signal, error) {
	limit := s.cfg.Strategy.LookbackMax + candleMargin

	candles, err := s.client.GetKlines(ctx, symbol, timeframe, limit)
	if err != nil {
		// Биржа недоступна — пробуем резерв из хранилища
		candles, err = s.storage.GetCandles(ctx, symbol, timeframe, limit)
		if err != nil || len(candles) == 0 {
			return nil, fmt.Errorf("свечи недоступны: %w", err)
		}
	}

	atrPercent, ok, err := s.volatility.Check(candles)
	if err != nil {
		return nil, fmt.Errorf("ошибка расчета ATR: %w", err)
	}
	if !ok {
		return s.generator.Neutral(symbol, timeframe,
			fmt.Sprintf("ATR %.3f%% вне коридора [%.3f%%, %.3f%%]",
				atrPercent, s.cfg.Strategy.ATRMin, s.cfg.Strategy.ATRMax)), nil
	}

	best, err := s.optimizer.Best(candles)
	if err != nil {
		return s.generator.Neutral(symbol, timeframe, "развитый профиль объема не найден"), nil
	}

	sig := s.generator.Generate(symbol, timeframe, candles, best, atrPercent)

	if !sig.IsNeutral() {
		if err := s.storage.SaveSignal(ctx, sig); err != nil {
			logger.Warn("Не удалось сохранить сигнал", zap.String("symbol", symbol), zap.Error(err))
		}
		logger.Info("Сигнал сгенерирован",
			zap.String("symbol", symbol),
			zap.String("direction", string(sig.Direction)),
			zap.String("timeframe", timeframe),
			zap.Float64("entry", sig.EntryPrice),
			zap.Float64("target", sig.TargetPrice),
			zap.Float64("stop_loss", sig.StopLoss),
			zap.Float64("risk_reward", sig.RiskReward),
			zap.Int("leverage", sig.Leverage),
			zap.Int("lookback", sig.Metadata.Lookback))
	}

	return sig, nil
}

// execute проводит сигнал через советника и открывает позицию
func (s *Scanner) execute(ctx context.Context, sig *models.Signal) {
	var decision *models.EntryDecision

	if s.advisor != nil {
		var err error
		decision, err = s.advisor.ConfirmEntry(ctx, sig)
		if err != nil {
			// Недоступность советника — не одобрение: вход отклоняется
			logger.Warn("Советник недоступен, вход отклонен",
				zap.String("symbol", sig.Symbol), zap.Error(err))
			return
		}
		if !decision.Approved {
			logger.Info("Советник отклонил вход",
				zap.String("symbol", sig.Symbol),
				zap.String("reasoning", decision.Reasoning))
			return
		}
	}

	if _, err := s.manager.Open(ctx, sig, decision, s.cfg.Trading.PositionSizeUSD); err != nil {
		logger.Error("Не удалось открыть позицию",
			zap.String("symbol", sig.Symbol), zap.Error(err))
	}
}

// LatestSignals возвращает копию последних сигналов по символам
func (s *Scanner) LatestSignals() map[string]*models.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Signal, len(s.latest))
	for sym, sig := range s.latest {
		out[sym] = sig
	}
	return out
}
