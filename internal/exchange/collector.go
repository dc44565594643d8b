package exchange

import (
	"context"
	"time"

	"github.com/skalibog/vpscalp/pkg/logger"
	"github.com/skalibog/vpscalp/pkg/models"
	"go.uber.org/zap"
)

// CandleSink приемник собранных свечей
type CandleSink interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
}

// DataCollector фоновый сборщик рыночных данных
type DataCollector interface {
	Start(ctx context.Context) error
	Stop()
}

// CandleCollector периодически снимает свежие свечи и пишет их в хранилище.
// Хранилище служит резервом: при недоступности биржи мониторинг позиций
// берет последнее закрытие оттуда.
type CandleCollector struct {
	client    *BinanceClient
	sink      CandleSink
	symbols   []string
	intervals []string
	stop      chan struct{}
}

// NewCandleCollector создает сборщик свечей
func NewCandleCollector(client *BinanceClient, sink CandleSink, symbols, intervals []string) *CandleCollector {
	return &CandleCollector{
		client:    client,
		sink:      sink,
		symbols:   symbols,
		intervals: intervals,
		stop:      make(chan struct{}),
	}
}

// Start запускает периодический сбор. Блокирует до отмены контекста.
func (c *CandleCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	c.collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop останавливает сборщик
func (c *CandleCollector) Stop() {
	close(c.stop)
}

func (c *CandleCollector) collect(ctx context.Context) {
	for _, symbol := range c.symbols {
		for _, interval := range c.intervals {
			candles, err := c.client.GetKlines(ctx, symbol, interval, 2)
			if err != nil {
				logger.Warn("Не удалось собрать свечи",
					zap.String("symbol", symbol),
					zap.String("interval", interval),
					zap.Error(err))
				continue
			}
			if err := c.sink.SaveCandles(ctx, candles); err != nil {
				logger.Warn("Не удалось сохранить свечи",
					zap.String("symbol", symbol),
					zap.Error(err))
			}
		}
	}
}
