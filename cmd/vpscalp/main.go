package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/skalibog/vpscalp/internal/advisory"
	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/internal/exchange"
	"github.com/skalibog/vpscalp/internal/executor"
	"github.com/skalibog/vpscalp/internal/position"
	"github.com/skalibog/vpscalp/internal/scanner"
	"github.com/skalibog/vpscalp/internal/storage"
	"github.com/skalibog/vpscalp/internal/ui"
	"github.com/skalibog/vpscalp/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Переменные окружения из .env, если файл есть
	_ = godotenv.Load()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище
	store, err := storage.NewInfluxDBStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Исполнитель ордеров
	exec, err := executor.NewBinanceExecutor(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации исполнителя ордеров", zap.Error(err))
	}

	// AI-советник подключается только если включен в конфигурации
	var advisor advisory.Service
	if cfg.Advisory.Enabled {
		advisor = advisory.NewDeepSeekClient(cfg.Advisory, store)
		logger.Info("AI-советник включен", zap.String("model", cfg.Advisory.Model))
	} else {
		logger.Info("AI-советник выключен, сигналы исполняются без подтверждения")
	}

	// Менеджер позиций и сканер рынка. Цена для мониторинга берется
	// с биржи, при сбоях — последнее закрытие из хранилища.
	prices := exchange.NewFallbackPriceSource(client, store, cfg.Trading.Timeframes[0])
	manager := position.NewManager(prices, exec, advisor, store)
	marketScanner := scanner.NewScanner(*cfg, client, store, advisor, manager)

	// Инициализируем UI
	userInterface, err := ui.NewTermUI(cfg.UI, marketScanner, manager)
	if err != nil {
		logger.Fatal("Ошибка инициализации пользовательского интерфейса", zap.Error(err))
	}

	// Фоновый сборщик свечей в хранилище
	collector := exchange.NewCandleCollector(client, store, cfg.Trading.Symbols, cfg.Trading.Timeframes)
	go func() {
		defer collector.Stop()
		if err := collector.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Сборщик свечей остановлен", zap.Error(err))
		}
	}()

	// Цикл сканирования рынка
	go func() {
		// Отложенный старт для накопления данных
		time.Sleep(5 * time.Second)

		ticker := time.NewTicker(time.Duration(cfg.Trading.ScanSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				marketScanner.Scan(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Цикл мониторинга открытых позиций
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Trading.MonitorSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				manager.MonitorAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Запускаем UI в основном потоке (блокирующий вызов)
	userInterface.Start()
	cancel()
}
