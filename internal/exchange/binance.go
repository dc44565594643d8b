package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/pkg/models"
)

// ErrPriceUnavailable возвращается, когда текущую цену получить не удалось
var ErrPriceUnavailable = errors.New("текущая цена недоступна")

// BinanceClient клиент рыночных данных Binance Futures
type BinanceClient struct {
	futures *futures.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.Testnet {
		futures.UseTestnet = true
	}

	return &BinanceClient{futures: client}, nil
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]*models.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseKline(symbol, interval, k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// GetCurrentPrice получает текущую цену символа
func (c *BinanceClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.futures.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения цены: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("ошибка разбора цены %q: %w", prices[0].Price, err)
	}
	return price, nil
}

func parseKline(symbol, interval string, k *futures.Kline) (*models.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора свечи: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора свечи: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора свечи: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора свечи: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора свечи: %w", err)
	}

	return &models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(k.OpenTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		CloseTime: time.UnixMilli(k.CloseTime),
	}, nil
}
