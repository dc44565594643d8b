package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Strategy StrategyConfig `yaml:"strategy"`
	Advisory AdvisoryConfig `yaml:"advisory"`
	Storage  StorageConfig  `yaml:"storage"`
	UI       UIConfig       `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbols         []string `yaml:"symbols"`
	Timeframes      []string `yaml:"timeframes"`
	PositionSizeUSD float64  `yaml:"position_size_usd"`
	MinLeverage     int      `yaml:"min_leverage"`
	MaxLeverage     int      `yaml:"max_leverage"`
	ScanSeconds     int      `yaml:"scan_interval_seconds"`
	MonitorSeconds  int      `yaml:"monitor_interval_seconds"`
}

// StrategyConfig параметры стратегии возврата к среднему по профилю объема
type StrategyConfig struct {
	LookbackMin    int     `yaml:"lookback_min"`
	LookbackMax    int     `yaml:"lookback_max"`
	LookbackStep   int     `yaml:"lookback_step"`
	TPFraction     float64 `yaml:"tp_fraction"`
	ATRPeriod      int     `yaml:"atr_period"`
	ATRMin         float64 `yaml:"atr_min"`
	ATRMax         float64 `yaml:"atr_max"`
	TimeoutCandles int     `yaml:"timeout_candles"`
}

// AdvisoryConfig настройки AI-советника
type AdvisoryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	RefreshRate int `yaml:"refresh_rate_ms"`
}

// Load загружает конфигурацию из файла.
// Ключи API подтягиваются из окружения, если в файле они не заданы.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	if config.Binance.APIKey == "" {
		config.Binance.APIKey = os.Getenv("BINANCE_API_KEY")
	}
	if config.Binance.APISecret == "" {
		config.Binance.APISecret = os.Getenv("BINANCE_API_SECRET")
	}
	if config.Advisory.APIKey == "" {
		config.Advisory.APIKey = os.Getenv("DEEPSEEK_KEY")
	}
	if config.Storage.Token == "" {
		config.Storage.Token = os.Getenv("INFLUXDB_TOKEN")
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Strategy.LookbackMin == 0 {
		c.Strategy.LookbackMin = 50
	}
	if c.Strategy.LookbackMax == 0 {
		c.Strategy.LookbackMax = 120
	}
	if c.Strategy.LookbackStep == 0 {
		c.Strategy.LookbackStep = 10
	}
	if c.Strategy.TPFraction == 0 {
		c.Strategy.TPFraction = 0.9
	}
	if c.Strategy.ATRPeriod == 0 {
		c.Strategy.ATRPeriod = 14
	}
	if c.Strategy.TimeoutCandles == 0 {
		c.Strategy.TimeoutCandles = 15
	}
	if c.Trading.MinLeverage == 0 {
		c.Trading.MinLeverage = 2
	}
	if c.Trading.MaxLeverage == 0 {
		c.Trading.MaxLeverage = 20
	}
	if c.Trading.ScanSeconds == 0 {
		c.Trading.ScanSeconds = 60
	}
	if c.Trading.MonitorSeconds == 0 {
		c.Trading.MonitorSeconds = 15
	}
	if len(c.Trading.Timeframes) == 0 {
		c.Trading.Timeframes = []string{"1m"}
	}
}

func (c *Config) validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("не задан ни один символ для торговли")
	}
	if c.Strategy.LookbackMin > c.Strategy.LookbackMax {
		return fmt.Errorf("lookback_min (%d) больше lookback_max (%d)",
			c.Strategy.LookbackMin, c.Strategy.LookbackMax)
	}
	if c.Strategy.LookbackStep <= 0 {
		return fmt.Errorf("lookback_step (%d) должен быть положительным",
			c.Strategy.LookbackStep)
	}
	if c.Strategy.ATRMin > c.Strategy.ATRMax {
		return fmt.Errorf("atr_min (%.3f) больше atr_max (%.3f)",
			c.Strategy.ATRMin, c.Strategy.ATRMax)
	}
	if c.Trading.MinLeverage > c.Trading.MaxLeverage {
		return fmt.Errorf("min_leverage (%d) больше max_leverage (%d)",
			c.Trading.MinLeverage, c.Trading.MaxLeverage)
	}
	return nil
}
