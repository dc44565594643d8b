package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Direction направление сигнала или позиции
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// EntryLevel уровень входа в сигмах от средней
type EntryLevel string

const (
	EntryLevel1Sigma EntryLevel = "1σ"
	EntryLevel2Sigma EntryLevel = "2σ"
)

// VolumeProfile представляет профиль объема для окна свечей.
// Создается заново при каждом расчете и после этого не изменяется.
type VolumeProfile struct {
	POC              float64
	ValueAreaHigh    float64
	ValueAreaLow     float64
	Sigma2High       float64
	Sigma2Low        float64
	MeanPrice        float64
	StdPrice         float64
	Lookback         int
	Developed        bool
	DevelopmentScore float64
}

// SignalMetadata дополнительные параметры сигнала
type SignalMetadata struct {
	EntryLevel     EntryLevel
	Lookback       int
	TimeoutCandles int
}

// Signal представляет торговый сигнал.
// NEUTRAL — полноценный результат "сделки нет", а не ошибка:
// ценовые поля обнулены, причина в Reasoning.
type Signal struct {
	Symbol      string
	Direction   Direction
	Confidence  float64
	EntryPrice  float64
	TargetPrice float64
	StopLoss    float64
	Leverage    int
	Timeframe   string
	Profile     *VolumeProfile
	ATRPercent  float64
	RiskReward  float64
	Reasoning   string
	Metadata    SignalMetadata
	Timestamp   time.Time
}

// IsNeutral сообщает, что сигнал не предполагает сделку
func (s *Signal) IsNeutral() bool {
	return s.Direction == DirectionNeutral
}

// PositionStatus статус позиции
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// ExitReason причина выхода из позиции
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTimeout    ExitReason = "timeout"
)

// Position представляет открытую или закрытую позицию.
// TakeProfit и StopLoss фиксируются при создании и не пересчитываются,
// пока позиция живет — меняются только CandlesHeld, текущий PnL
// и поля выхода.
type Position struct {
	ID             string
	DecisionID     string
	Symbol         string
	Direction      Direction
	EntryPrice     float64
	Size           float64
	Leverage       int
	TakeProfit     float64
	StopLoss       float64
	Timeframe      string
	TimeoutCandles int
	CandlesHeld    int
	Status         PositionStatus
	OpenedAt       time.Time
	ExitPrice      float64
	PnL            float64
	ExitReason     string
}

// PositionUpdate снимок мониторинга позиции
type PositionUpdate struct {
	PositionID    string
	CurrentPrice  float64
	UnrealizedPnL float64
	CandlesHeld   int
	Timestamp     time.Time
}

// EntryDecision структурированный ответ советника на вход
type EntryDecision struct {
	DecisionID       string
	Approved         bool
	Reasoning        string
	AdjustedLeverage int
	AdjustedSizePct  float64
}

// ExitDecision структурированный ответ советника на выход
type ExitDecision struct {
	DecisionID string
	ShouldExit bool
	Reasoning  string
}

// ExecutionResult результат исполнения ордера на бирже
type ExecutionResult struct {
	Symbol    string
	Direction Direction
	SizeUSD   float64
	Contracts float64
	FillPrice float64
	Leverage  int
	Timestamp time.Time
}
