package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/vpscalp/pkg/logger"
	"github.com/skalibog/vpscalp/pkg/models"
	"go.uber.org/zap"
)

// State состояние жизненного цикла позиции
type State string

const (
	StateNone        State = "NONE"
	StateOpen        State = "OPEN"
	StateMonitoring  State = "MONITORING"
	StateExitPending State = "EXIT_PENDING"
	StateClosed      State = "CLOSED"
)

var (
	// ErrNeutralSignal нейтральный сигнал позицию не открывает
	ErrNeutralSignal = errors.New("нейтральный сигнал позицию не открывает")
	// ErrPositionExists на символ допускается одна открытая позиция
	ErrPositionExists = errors.New("по символу уже есть открытая позиция")
)

// PriceSource источник текущей цены
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Executor исполняет ордера на бирже
type Executor interface {
	OpenPosition(ctx context.Context, symbol string, direction models.Direction,
		sizeUSD float64, leverage int) (*models.ExecutionResult, error)
	ClosePosition(ctx context.Context, symbol string) (*models.ExecutionResult, error)
}

// ExitAdvisor подтверждает или откладывает выход из позиции
type ExitAdvisor interface {
	ConfirmExit(ctx context.Context, p *models.Position, update *models.PositionUpdate) (*models.ExitDecision, error)
}

// Sink журнал решений и переходов состояний, только запись
type Sink interface {
	SavePositionUpdate(ctx context.Context, update *models.PositionUpdate) error
	SaveTransition(ctx context.Context, p *models.Position, from, to State) error
}

// Lifecycle ведет одну позицию от открытия до закрытия.
// Изменяет позицию только Cycle; mu защищает состояние и позицию
// от параллельных читателей (сканер, UI).
type Lifecycle struct {
	mu       sync.Mutex
	position *models.Position
	state    State
	prices   PriceSource
	executor Executor
	advisor  ExitAdvisor
	sink     Sink
}

// Position возвращает копию позиции для чтения
func (lc *Lifecycle) Position() models.Position {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return *lc.position
}

// State возвращает текущее состояние
func (lc *Lifecycle) State() State {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.state
}

// Cycle выполняет один цикл мониторинга. Все внешние сбои — цены нет,
// советник недоступен, ордер не прошел — приводят к воздержанию:
// состояние не меняется, попытка повторится в следующем цикле.
// Блокировка держится весь цикл: читатели видят позицию либо до,
// либо после него целиком.
func (lc *Lifecycle) Cycle(ctx context.Context) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.state == StateClosed {
		return
	}

	p := lc.position

	price, err := lc.prices.GetCurrentPrice(ctx, p.Symbol)
	if err != nil {
		logger.Warn("Цена недоступна, пропускаем цикл мониторинга",
			zap.String("symbol", p.Symbol), zap.Error(err))
		return
	}

	held := CandlesHeld(p.OpenedAt, p.Timeframe, time.Now())
	if held > p.CandlesHeld {
		p.CandlesHeld = held
	}

	update := &models.PositionUpdate{
		PositionID:    p.ID,
		CurrentPrice:  price,
		UnrealizedPnL: UnrealizedPnL(p, price),
		CandlesHeld:   p.CandlesHeld,
		Timestamp:     time.Now(),
	}
	p.PnL = update.UnrealizedPnL
	if err := lc.sink.SavePositionUpdate(ctx, update); err != nil {
		logger.Warn("Не удалось записать снимок позиции", zap.Error(err))
	}

	reason, shouldExit := Evaluate(p, price, p.CandlesHeld)
	if !shouldExit {
		lc.state = StateMonitoring
		logger.Debug("Позиция в норме",
			zap.String("symbol", p.Symbol),
			zap.Float64("price", price),
			zap.Float64("pnl", update.UnrealizedPnL),
			zap.Int("candles_held", p.CandlesHeld))
		return
	}

	lc.transition(ctx, StateExitPending)
	logger.Info("Сработало условие выхода",
		zap.String("symbol", p.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("price", price))

	exitReason := string(reason)

	if lc.advisor != nil {
		decision, err := lc.advisor.ConfirmExit(ctx, p, update)
		if err != nil {
			// Недоступность советника — не решение: держим позицию
			logger.Warn("Советник недоступен, выход отложен",
				zap.String("symbol", p.Symbol), zap.Error(err))
			lc.transition(ctx, StateMonitoring)
			return
		}
		if !decision.ShouldExit {
			logger.Info("Советник отменил выход, продолжаем мониторинг",
				zap.String("symbol", p.Symbol),
				zap.String("reasoning", decision.Reasoning))
			lc.transition(ctx, StateMonitoring)
			return
		}
		exitReason += "_ai_confirmed"
	}

	result, err := lc.executor.ClosePosition(ctx, p.Symbol)
	if err != nil {
		// Ордер не прошел — позиция остается открытой, повторим в следующем цикле
		logger.Error("Не удалось закрыть позицию, повторим позже",
			zap.String("symbol", p.Symbol), zap.Error(err))
		lc.transition(ctx, StateMonitoring)
		return
	}

	exitPrice := price
	if result != nil && result.FillPrice > 0 {
		exitPrice = result.FillPrice
	}

	p.Status = models.PositionClosed
	p.ExitPrice = exitPrice
	p.PnL = UnrealizedPnL(p, exitPrice)
	p.ExitReason = exitReason
	lc.transition(ctx, StateClosed)

	logger.Info("Позиция закрыта",
		zap.String("symbol", p.Symbol),
		zap.String("reason", exitReason),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("pnl", p.PnL))
}

// transition вызывается из Cycle под lc.mu либо из Open до публикации
// жизненного цикла
func (lc *Lifecycle) transition(ctx context.Context, to State) {
	from := lc.state
	lc.state = to
	if err := lc.sink.SaveTransition(ctx, lc.position, from, to); err != nil {
		logger.Warn("Не удалось записать переход состояния",
			zap.String("from", string(from)), zap.String("to", string(to)),
			zap.Error(err))
	}
}

// Manager владеет жизненными циклами всех открытых позиций,
// по одному на символ.
type Manager struct {
	prices   PriceSource
	executor Executor
	advisor  ExitAdvisor
	sink     Sink

	mu         sync.RWMutex
	lifecycles map[string]*Lifecycle
}

// NewManager создает менеджер позиций
func NewManager(prices PriceSource, executor Executor, advisor ExitAdvisor, sink Sink) *Manager {
	return &Manager{
		prices:     prices,
		executor:   executor,
		advisor:    advisor,
		sink:       sink,
		lifecycles: make(map[string]*Lifecycle),
	}
}

// HasOpen сообщает, есть ли открытая позиция по символу
func (m *Manager) HasOpen(symbol string) bool {
	m.mu.RLock()
	lc, ok := m.lifecycles[symbol]
	m.mu.RUnlock()
	return ok && lc.State() != StateClosed
}

// Open открывает позицию по одобренному сигналу. Размер и плечо берутся
// из решения советника, если оно их скорректировало.
func (m *Manager) Open(ctx context.Context, sig *models.Signal, decision *models.EntryDecision,
	baseSizeUSD float64) (*models.Position, error) {

	if sig.IsNeutral() {
		return nil, ErrNeutralSignal
	}
	if m.HasOpen(sig.Symbol) {
		return nil, fmt.Errorf("%w: %s", ErrPositionExists, sig.Symbol)
	}

	leverage := sig.Leverage
	sizeUSD := baseSizeUSD
	decisionID := ""
	if decision != nil {
		if decision.AdjustedLeverage > 0 {
			leverage = decision.AdjustedLeverage
		}
		if decision.AdjustedSizePct > 0 {
			sizeUSD = baseSizeUSD * decision.AdjustedSizePct / 100
		}
		decisionID = decision.DecisionID
	}

	result, err := m.executor.OpenPosition(ctx, sig.Symbol, sig.Direction, sizeUSD, leverage)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия позиции: %w", err)
	}

	entryPrice := sig.EntryPrice
	if result.FillPrice > 0 {
		entryPrice = result.FillPrice
	}

	p := &models.Position{
		ID:             uuid.NewString(),
		DecisionID:     decisionID,
		Symbol:         sig.Symbol,
		Direction:      sig.Direction,
		EntryPrice:     entryPrice,
		Size:           sizeUSD,
		Leverage:       leverage,
		TakeProfit:     sig.TargetPrice,
		StopLoss:       sig.StopLoss,
		Timeframe:      sig.Timeframe,
		TimeoutCandles: sig.Metadata.TimeoutCandles,
		Status:         models.PositionOpen,
		OpenedAt:       time.Now(),
	}

	lc := &Lifecycle{
		position: p,
		state:    StateNone,
		prices:   m.prices,
		executor: m.executor,
		advisor:  m.advisor,
		sink:     m.sink,
	}
	lc.transition(ctx, StateOpen)
	lc.transition(ctx, StateMonitoring)

	m.mu.Lock()
	m.lifecycles[sig.Symbol] = lc
	m.mu.Unlock()

	logger.Info("Позиция открыта",
		zap.String("symbol", p.Symbol),
		zap.String("direction", string(p.Direction)),
		zap.Float64("entry", p.EntryPrice),
		zap.Float64("take_profit", p.TakeProfit),
		zap.Float64("stop_loss", p.StopLoss),
		zap.Int("leverage", p.Leverage))

	return p, nil
}

// MonitorAll выполняет цикл мониторинга для всех открытых позиций
// и убирает закрытые
func (m *Manager) MonitorAll(ctx context.Context) {
	m.mu.RLock()
	active := make([]*Lifecycle, 0, len(m.lifecycles))
	for _, lc := range m.lifecycles {
		active = append(active, lc)
	}
	m.mu.RUnlock()

	for _, lc := range active {
		lc.Cycle(ctx)
	}

	m.mu.Lock()
	for symbol, lc := range m.lifecycles {
		if lc.State() == StateClosed {
			delete(m.lifecycles, symbol)
		}
	}
	m.mu.Unlock()
}

// OpenPositions возвращает копии всех открытых позиций
func (m *Manager) OpenPositions() []models.Position {
	m.mu.RLock()
	active := make([]*Lifecycle, 0, len(m.lifecycles))
	for _, lc := range m.lifecycles {
		active = append(active, lc)
	}
	m.mu.RUnlock()

	positions := make([]models.Position, 0, len(active))
	for _, lc := range active {
		if lc.State() != StateClosed {
			positions = append(positions, lc.Position())
		}
	}
	return positions
}
