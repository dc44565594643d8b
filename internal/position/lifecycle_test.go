package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skalibog/vpscalp/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrices struct {
	price float64
	err   error
}

func (f *fakePrices) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, f.err
}

type openCall struct {
	symbol    string
	direction models.Direction
	sizeUSD   float64
	leverage  int
}

type fakeExecutor struct {
	openErr   error
	closeErr  error
	fillPrice float64
	opens     []openCall
	closes    []string
}

func (f *fakeExecutor) OpenPosition(ctx context.Context, symbol string, direction models.Direction,
	sizeUSD float64, leverage int) (*models.ExecutionResult, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens = append(f.opens, openCall{symbol, direction, sizeUSD, leverage})
	return &models.ExecutionResult{
		Symbol:    symbol,
		Direction: direction,
		SizeUSD:   sizeUSD,
		FillPrice: f.fillPrice,
		Leverage:  leverage,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeExecutor) ClosePosition(ctx context.Context, symbol string) (*models.ExecutionResult, error) {
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	f.closes = append(f.closes, symbol)
	return &models.ExecutionResult{Symbol: symbol, FillPrice: f.fillPrice}, nil
}

type fakeAdvisor struct {
	decision *models.ExitDecision
	err      error
}

func (f *fakeAdvisor) ConfirmExit(ctx context.Context, p *models.Position,
	update *models.PositionUpdate) (*models.ExitDecision, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

type transition struct {
	from State
	to   State
}

type fakeSink struct {
	updates     []*models.PositionUpdate
	transitions []transition
}

func (f *fakeSink) SavePositionUpdate(ctx context.Context, update *models.PositionUpdate) error {
	f.updates = append(f.updates, update)
	return nil
}

func (f *fakeSink) SaveTransition(ctx context.Context, p *models.Position, from, to State) error {
	f.transitions = append(f.transitions, transition{from, to})
	return nil
}

func longSignal() *models.Signal {
	return &models.Signal{
		Symbol:      "BTCUSDT",
		Direction:   models.DirectionLong,
		Confidence:  85,
		EntryPrice:  44950,
		TargetPrice: 45200,
		StopLoss:    44700,
		Leverage:    5,
		Timeframe:   "1m",
		Metadata: models.SignalMetadata{
			EntryLevel:     models.EntryLevel1Sigma,
			TimeoutCandles: 15,
		},
		Timestamp: time.Now(),
	}
}

func newTestManager(prices *fakePrices, exec *fakeExecutor, advisor ExitAdvisor) (*Manager, *fakeSink) {
	sink := &fakeSink{}
	return NewManager(prices, exec, advisor, sink), sink
}

func TestOpenNeutralSignal(t *testing.T) {
	exec := &fakeExecutor{}
	m, _ := newTestManager(&fakePrices{price: 45000}, exec, nil)

	sig := longSignal()
	sig.Direction = models.DirectionNeutral

	_, err := m.Open(context.Background(), sig, nil, 100)
	assert.ErrorIs(t, err, ErrNeutralSignal)
	assert.Empty(t, exec.opens)
	assert.False(t, m.HasOpen("BTCUSDT"))
}

func TestOpenDuplicate(t *testing.T) {
	m, _ := newTestManager(&fakePrices{price: 45000}, &fakeExecutor{}, nil)

	_, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)

	_, err = m.Open(context.Background(), longSignal(), nil, 100)
	assert.ErrorIs(t, err, ErrPositionExists)
}

func TestOpenAppliesAdjustments(t *testing.T) {
	exec := &fakeExecutor{}
	m, _ := newTestManager(&fakePrices{price: 45000}, exec, nil)

	decision := &models.EntryDecision{
		DecisionID:       "d-1",
		Approved:         true,
		AdjustedLeverage: 3,
		AdjustedSizePct:  50,
	}

	p, err := m.Open(context.Background(), longSignal(), decision, 100)
	require.NoError(t, err)

	require.Len(t, exec.opens, 1)
	assert.Equal(t, 3, exec.opens[0].leverage)
	assert.InDelta(t, 50.0, exec.opens[0].sizeUSD, 1e-9)
	assert.Equal(t, "d-1", p.DecisionID)
	assert.Equal(t, 3, p.Leverage)
}

func TestOpenUsesFillPrice(t *testing.T) {
	exec := &fakeExecutor{fillPrice: 44960}
	m, _ := newTestManager(&fakePrices{price: 45000}, exec, nil)

	p, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)
	assert.InDelta(t, 44960.0, p.EntryPrice, 1e-9)
}

func TestOpenExecutionFailure(t *testing.T) {
	exec := &fakeExecutor{openErr: errors.New("биржа недоступна")}
	m, _ := newTestManager(&fakePrices{price: 45000}, exec, nil)

	_, err := m.Open(context.Background(), longSignal(), nil, 100)
	assert.Error(t, err)
	assert.False(t, m.HasOpen("BTCUSDT"))
}

func TestCyclePriceUnavailable(t *testing.T) {
	prices := &fakePrices{err: errors.New("нет цены")}
	exec := &fakeExecutor{}
	m, sink := newTestManager(prices, exec, nil)

	_, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)
	before := len(sink.transitions)

	// Цена недоступна: никаких снимков, переходов и ордеров
	m.MonitorAll(context.Background())

	assert.Empty(t, sink.updates)
	assert.Len(t, sink.transitions, before)
	assert.Empty(t, exec.closes)
	assert.True(t, m.HasOpen("BTCUSDT"))
}

func TestCycleHolding(t *testing.T) {
	prices := &fakePrices{price: 45000} // между стопом и тейком
	exec := &fakeExecutor{}
	m, sink := newTestManager(prices, exec, nil)

	_, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)

	m.MonitorAll(context.Background())

	require.Len(t, sink.updates, 1)
	assert.InDelta(t, 45000.0, sink.updates[0].CurrentPrice, 1e-9)
	assert.Empty(t, exec.closes)
	assert.True(t, m.HasOpen("BTCUSDT"))
}

func TestCycleTakeProfitWithoutAdvisor(t *testing.T) {
	prices := &fakePrices{price: 45250}
	exec := &fakeExecutor{}
	m, _ := newTestManager(prices, exec, nil)

	p, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)

	m.MonitorAll(context.Background())

	// Без советника позиция закрывается сразу, без суффикса подтверждения
	require.Len(t, exec.closes, 1)
	assert.False(t, m.HasOpen("BTCUSDT"))
	assert.Equal(t, models.PositionClosed, p.Status)
	assert.Equal(t, "take_profit", p.ExitReason)
	assert.InDelta(t, 45250.0, p.ExitPrice, 1e-9)
}

func TestCycleTakeProfitConfirmed(t *testing.T) {
	prices := &fakePrices{price: 45250}
	exec := &fakeExecutor{}
	advisor := &fakeAdvisor{decision: &models.ExitDecision{ShouldExit: true}}
	m, sink := newTestManager(prices, exec, advisor)

	p, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)

	m.MonitorAll(context.Background())

	require.Len(t, exec.closes, 1)
	assert.False(t, m.HasOpen("BTCUSDT"))
	assert.Equal(t, "take_profit_ai_confirmed", p.ExitReason)

	last := sink.transitions[len(sink.transitions)-1]
	assert.Equal(t, StateClosed, last.to)
}

func TestCycleAdvisorVeto(t *testing.T) {
	prices := &fakePrices{price: 45250}
	exec := &fakeExecutor{}
	advisor := &fakeAdvisor{decision: &models.ExitDecision{ShouldExit: false}}
	m, sink := newTestManager(prices, exec, advisor)

	_, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)

	m.MonitorAll(context.Background())

	// Вето советника: ордер не отправляется, позиция остается под мониторингом
	assert.Empty(t, exec.closes)
	assert.True(t, m.HasOpen("BTCUSDT"))

	last := sink.transitions[len(sink.transitions)-1]
	assert.Equal(t, StateExitPending, last.from)
	assert.Equal(t, StateMonitoring, last.to)
}

func TestCycleAdvisorUnavailable(t *testing.T) {
	prices := &fakePrices{price: 45250}
	exec := &fakeExecutor{}
	advisor := &fakeAdvisor{err: errors.New("таймаут")}
	m, _ := newTestManager(prices, exec, advisor)

	_, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)

	m.MonitorAll(context.Background())

	// Недоступность советника трактуется как "держать"
	assert.Empty(t, exec.closes)
	assert.True(t, m.HasOpen("BTCUSDT"))
}

func TestCycleCloseOrderFailureRetries(t *testing.T) {
	prices := &fakePrices{price: 45250}
	exec := &fakeExecutor{closeErr: errors.New("ордер отклонен")}
	m, _ := newTestManager(prices, exec, nil)

	_, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)

	// Ордер не прошел: позиция остается открытой
	m.MonitorAll(context.Background())
	assert.True(t, m.HasOpen("BTCUSDT"))

	// Следующий цикл закрывает успешно
	exec.closeErr = nil
	m.MonitorAll(context.Background())
	assert.False(t, m.HasOpen("BTCUSDT"))
	assert.Len(t, exec.closes, 1)
}

func TestConcurrentMonitoringAndReaders(t *testing.T) {
	// Мониторинг меняет позицию и состояние, пока сканер и UI читают
	// их через HasOpen и OpenPositions. Под -race не должно быть гонок.
	prices := &fakePrices{price: 45000}
	m, _ := newTestManager(prices, &fakeExecutor{}, nil)

	_, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	const iterations = 200

	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			m.MonitorAll(context.Background())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			m.HasOpen("BTCUSDT")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			for _, p := range m.OpenPositions() {
				_ = p.PnL
			}
		}
	}()
	wg.Wait()

	// Цена между стопом и тейком: позиция пережила все циклы
	assert.True(t, m.HasOpen("BTCUSDT"))
}

func TestOpenPositionsCopies(t *testing.T) {
	m, _ := newTestManager(&fakePrices{price: 45000}, &fakeExecutor{}, nil)

	_, err := m.Open(context.Background(), longSignal(), nil, 100)
	require.NoError(t, err)

	positions := m.OpenPositions()
	require.Len(t, positions, 1)

	// Изменение копии не трогает оригинал
	positions[0].Symbol = "XRPUSDT"
	assert.True(t, m.HasOpen("BTCUSDT"))
	assert.Equal(t, "BTCUSDT", m.OpenPositions()[0].Symbol)
}
