package exchange

import (
	"context"
	"fmt"

	"github.com/skalibog/vpscalp/pkg/logger"
	"github.com/skalibog/vpscalp/pkg/models"
	"go.uber.org/zap"
)

// CandleReader последние свечи из хранилища
type CandleReader interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
}

// FallbackPriceSource отдает живую цену с биржи, а при ее недоступности —
// последнее сохраненное закрытие из хранилища. Собранные коллектором свечи
// становятся резервом для мониторинга позиций.
type FallbackPriceSource struct {
	client   *BinanceClient
	store    CandleReader
	interval string
}

// NewFallbackPriceSource создает источник цены с резервом из хранилища
func NewFallbackPriceSource(client *BinanceClient, store CandleReader, interval string) *FallbackPriceSource {
	return &FallbackPriceSource{
		client:   client,
		store:    store,
		interval: interval,
	}
}

// GetCurrentPrice возвращает текущую цену символа
func (f *FallbackPriceSource) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := f.client.GetCurrentPrice(ctx, symbol)
	if err == nil {
		return price, nil
	}

	logger.Warn("Живая цена недоступна, берем закрытие из хранилища",
		zap.String("symbol", symbol), zap.Error(err))

	candles, storeErr := f.store.GetCandles(ctx, symbol, f.interval, 1)
	if storeErr != nil || len(candles) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
	}
	return candles[len(candles)-1].Close, nil
}
