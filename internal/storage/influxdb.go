// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/internal/position"
	"github.com/skalibog/vpscalp/pkg/models"
)

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	// Методы для свечей
	SaveCandle(ctx context.Context, candle *models.Candle) error
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)

	// Методы для сигналов
	SaveSignal(ctx context.Context, signal *models.Signal) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error)

	// Журнал советника и жизненного цикла позиций
	SaveDecision(ctx context.Context, decisionID, kind, prompt, response string) error
	SavePositionUpdate(ctx context.Context, update *models.PositionUpdate) error
	SaveTransition(ctx context.Context, p *models.Position, from, to position.State) error

	Close()
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	queryAPI := client.QueryAPI(cfg.Organization)
	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBStorage{
		client:   client,
		queryAPI: queryAPI,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandle сохраняет свечу в базу данных
func (s *InfluxDBStorage) SaveCandle(ctx context.Context, candle *models.Candle) error {
	s.writeAPI.WritePoint(candlePoint(candle))
	s.writeAPI.Flush()
	return nil
}

// SaveCandles сохраняет множество свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		s.writeAPI.WritePoint(candlePoint(candle))
	}
	s.writeAPI.Flush()
	return nil
}

func candlePoint(candle *models.Candle) *write.Point {
	return influxdb2.NewPoint(
		"candles",
		map[string]string{
			"symbol":   candle.Symbol,
			"interval": candle.Interval,
		},
		map[string]interface{}{
			"open":   candle.Open,
			"high":   candle.High,
			"low":    candle.Low,
			"close":  candle.Close,
			"volume": candle.Volume,
		},
		candle.OpenTime,
	)
}

// GetCandles получает исторические свечи, от старых к новым
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	// Формируем Flux-запрос: берем последние limit записей, затем
	// возвращаем их в хронологическом порядке
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "candles")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
			|> sort(columns: ["_time"], desc: false)
	`, s.bucket, symbol, interval, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	var candles []*models.Candle
	for result.Next() {
		record := result.Record()

		timestamp := record.Time()
		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		close, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candles = append(candles, &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: timestamp.Add(models.IntervalDuration(interval)),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return candles, nil
}

// SaveSignal сохраняет сигнал
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal *models.Signal) error {
	fields := map[string]interface{}{
		"confidence":   signal.Confidence,
		"entry_price":  signal.EntryPrice,
		"target_price": signal.TargetPrice,
		"stop_loss":    signal.StopLoss,
		"leverage":     signal.Leverage,
		"atr_percent":  signal.ATRPercent,
		"risk_reward":  signal.RiskReward,
		"reasoning":    signal.Reasoning,
	}
	if signal.Profile != nil {
		fields["poc"] = signal.Profile.POC
		fields["va_high"] = signal.Profile.ValueAreaHigh
		fields["va_low"] = signal.Profile.ValueAreaLow
		fields["lookback"] = signal.Profile.Lookback
		fields["dev_score"] = signal.Profile.DevelopmentScore
	}

	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol":    signal.Symbol,
			"direction": string(signal.Direction),
			"timeframe": signal.Timeframe,
		},
		fields,
		signal.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// GetSignalHistory получает историю сигналов
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории сигналов: %w", err)
	}

	var signals []*models.Signal
	for result.Next() {
		record := result.Record()

		direction, _ := record.ValueByKey("direction").(string)
		timeframe, _ := record.ValueByKey("timeframe").(string)
		confidence, _ := record.ValueByKey("confidence").(float64)
		entryPrice, _ := record.ValueByKey("entry_price").(float64)
		targetPrice, _ := record.ValueByKey("target_price").(float64)
		stopLoss, _ := record.ValueByKey("stop_loss").(float64)
		atrPercent, _ := record.ValueByKey("atr_percent").(float64)
		riskReward, _ := record.ValueByKey("risk_reward").(float64)
		reasoning, _ := record.ValueByKey("reasoning").(string)
		leverage, _ := record.ValueByKey("leverage").(int64)

		signals = append(signals, &models.Signal{
			Symbol:      symbol,
			Direction:   models.Direction(direction),
			Confidence:  confidence,
			EntryPrice:  entryPrice,
			TargetPrice: targetPrice,
			StopLoss:    stopLoss,
			Leverage:    int(leverage),
			Timeframe:   timeframe,
			ATRPercent:  atrPercent,
			RiskReward:  riskReward,
			Reasoning:   reasoning,
			Timestamp:   record.Time(),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return signals, nil
}

// SaveDecision сохраняет запрос и ответ советника для последующего аудита
func (s *InfluxDBStorage) SaveDecision(ctx context.Context, decisionID, kind, prompt, response string) error {
	point := influxdb2.NewPoint(
		"ai_decisions",
		map[string]string{
			"decision_id": decisionID,
			"kind":        kind,
		},
		map[string]interface{}{
			"prompt":   prompt,
			"response": response,
		},
		time.Now(),
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SavePositionUpdate сохраняет снимок мониторинга позиции
func (s *InfluxDBStorage) SavePositionUpdate(ctx context.Context, update *models.PositionUpdate) error {
	point := influxdb2.NewPoint(
		"position_updates",
		map[string]string{
			"position_id": update.PositionID,
		},
		map[string]interface{}{
			"current_price":  update.CurrentPrice,
			"unrealized_pnl": update.UnrealizedPnL,
			"candles_held":   update.CandlesHeld,
		},
		update.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SaveTransition сохраняет переход состояния жизненного цикла позиции
func (s *InfluxDBStorage) SaveTransition(ctx context.Context, p *models.Position, from, to position.State) error {
	fields := map[string]interface{}{
		"from":        string(from),
		"to":          string(to),
		"entry_price": p.EntryPrice,
		"leverage":    p.Leverage,
	}
	if to == position.StateClosed {
		fields["exit_price"] = p.ExitPrice
		fields["pnl"] = p.PnL
		fields["exit_reason"] = p.ExitReason
	}

	point := influxdb2.NewPoint(
		"position_transitions",
		map[string]string{
			"position_id": p.ID,
			"symbol":      p.Symbol,
			"direction":   string(p.Direction),
		},
		fields,
		time.Now(),
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}
