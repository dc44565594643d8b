package executor

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/pkg/logger"
	"github.com/skalibog/vpscalp/pkg/models"
	"go.uber.org/zap"
)

// BinanceExecutor исполняет ордера на Binance Futures
type BinanceExecutor struct {
	client *futures.Client
}

// NewBinanceExecutor создает исполнителя ордеров
func NewBinanceExecutor(cfg config.BinanceConfig) (*BinanceExecutor, error) {
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	return &BinanceExecutor{client: client}, nil
}

// OpenPosition открывает позицию рыночным ордером с заданным плечом
func (e *BinanceExecutor) OpenPosition(ctx context.Context, symbol string,
	direction models.Direction, sizeUSD float64, leverage int) (*models.ExecutionResult, error) {

	if direction != models.DirectionLong && direction != models.DirectionShort {
		return nil, fmt.Errorf("недопустимое направление ордера: %s", direction)
	}

	if _, err := e.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx); err != nil {
		return nil, fmt.Errorf("ошибка установки плеча: %w", err)
	}

	price, err := e.currentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	quantity := sizeUSD / price
	side := futures.SideTypeBuy
	if direction == models.DirectionShort {
		side = futures.SideTypeSell
	}

	order, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(quantity)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка исполнения ордера: %w", err)
	}

	fillPrice := parsePrice(order.AvgPrice, price)

	logger.Info("Ордер исполнен",
		zap.String("symbol", symbol),
		zap.String("direction", string(direction)),
		zap.Float64("size_usd", sizeUSD),
		zap.Float64("fill_price", fillPrice),
		zap.Int("leverage", leverage))

	return &models.ExecutionResult{
		Symbol:    symbol,
		Direction: direction,
		SizeUSD:   sizeUSD,
		Contracts: quantity,
		FillPrice: fillPrice,
		Leverage:  leverage,
		Timestamp: time.Now(),
	}, nil
}

// ClosePosition закрывает открытую позицию встречным reduce-only ордером
func (e *BinanceExecutor) ClosePosition(ctx context.Context, symbol string) (*models.ExecutionResult, error) {
	risks, err := e.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения позиции: %w", err)
	}

	var amount float64
	for _, r := range risks {
		if r.Symbol == symbol {
			amount, _ = strconv.ParseFloat(r.PositionAmt, 64)
			break
		}
	}
	if amount == 0 {
		return nil, fmt.Errorf("открытая позиция по %s на бирже не найдена", symbol)
	}

	side := futures.SideTypeSell
	direction := models.DirectionLong
	if amount < 0 {
		side = futures.SideTypeBuy
		direction = models.DirectionShort
	}

	order, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(math.Abs(amount))).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка закрытия позиции: %w", err)
	}

	fillPrice := parsePrice(order.AvgPrice, 0)

	logger.Info("Позиция на бирже закрыта",
		zap.String("symbol", symbol),
		zap.Float64("contracts", math.Abs(amount)),
		zap.Float64("fill_price", fillPrice))

	return &models.ExecutionResult{
		Symbol:    symbol,
		Direction: direction,
		Contracts: math.Abs(amount),
		FillPrice: fillPrice,
		Timestamp: time.Now(),
	}, nil
}

func (e *BinanceExecutor) currentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := e.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения цены: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("цена для %s не найдена", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("ошибка разбора цены %q: %w", prices[0].Price, err)
	}
	return price, nil
}

// formatQuantity округляет объем до трех знаков. Шаг лота символа
// из exchangeInfo не учитывается: на символах с более грубым шагом
// биржа отклонит ордер, и позиция просто не откроется.
func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', 3, 64)
}

func parsePrice(s string, fallback float64) float64 {
	if p, err := strconv.ParseFloat(s, 64); err == nil && p > 0 {
		return p
	}
	return fallback
}
