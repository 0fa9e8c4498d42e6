// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrNilConfig is returned when a nil config is saved or validated.
var ErrNilConfig = errors.New("nil config")

var validate = validator.New()

// App captures process-wide runtime settings such as name, environment, metrics, and logging.
type App struct {
	Name        string `yaml:"name" default:"polybot"`
	Env         string `yaml:"env" default:"dev"`
	MetricsAddr string `yaml:"metrics_addr" default:":9102"`
	LogLevel    string `yaml:"log_level" default:"info" validate:"oneof=trace debug info warn error"`
	LogFormat   string `yaml:"log_format" default:"json" validate:"oneof=json console"`
	LogFile     string `yaml:"log_file"`
}

// Bot selects which market windows are tracked and how often the orchestration tick runs.
type Bot struct {
	Interval       string        `yaml:"interval" default:"all" validate:"oneof=5m 15m all"`
	UpdateInterval time.Duration `yaml:"update_interval" default:"2s" validate:"gte=100ms"`
}

// Risk encodes guard-rails applied to every surfaced signal.
type Risk struct {
	MaxExposure  float64 `yaml:"max_exposure" default:"5000" validate:"gt=0"`
	RiskPerTrade float64 `yaml:"risk_per_trade" default:"0.02" validate:"gte=0,lte=1"`
}

// Signal groups tunable knobs of the scoring engine.
type Signal struct {
	MaxPositionSize    float64       `yaml:"max_position_size" default:"500" validate:"gt=0"`
	ArbitrageThreshold float64       `yaml:"arbitrage_threshold" default:"0.05" validate:"gt=0,lt=1"`
	MinConfidence      int           `yaml:"min_confidence" default:"50" validate:"gte=0,lte=100"`
	MomentumWindow     time.Duration `yaml:"momentum_window" default:"60s" validate:"gte=1s"`
}

// Feeds configures the spot price sources and the aggregator guard rails.
type Feeds struct {
	BinanceWSURL      string        `yaml:"binance_ws_url" default:"wss://stream.binance.com:9443/ws/btcusdt@ticker" validate:"required"`
	CoinbaseURL       string        `yaml:"coinbase_url" default:"https://api.coinbase.com/v2/exchange-rates?currency=BTC" validate:"required"`
	CoinbaseStatsURL  string        `yaml:"coinbase_stats_url" default:"https://api.exchange.coinbase.com/products/BTC-USD/stats"`
	CoinGeckoURL      string        `yaml:"coingecko_url" default:"https://api.coingecko.com/api/v3/simple/price" validate:"required"`
	CoinbaseInterval  time.Duration `yaml:"coinbase_interval" default:"5s" validate:"gte=1s"`
	CoinGeckoInterval time.Duration `yaml:"coingecko_interval" default:"30s" validate:"gte=1s"`
	FallbackQuiet     time.Duration `yaml:"fallback_quiet" default:"60s" validate:"gte=1s"`
	HistorySize       int           `yaml:"history_size" default:"100" validate:"gte=2"`
	AnomalyBand       float64       `yaml:"anomaly_band" default:"0.10" validate:"gt=0,lte=1"`
	Stub              bool          `yaml:"stub"`
}

// Polymarket configures the Gamma discovery and CLOB order-book endpoints.
type Polymarket struct {
	GammaAPIURL string        `yaml:"gamma_api_url" default:"https://gamma-api.polymarket.com" validate:"required"`
	CLOBAPIURL  string        `yaml:"clob_api_url" default:"https://clob.polymarket.com" validate:"required"`
	Timeout     time.Duration `yaml:"timeout" default:"10s" validate:"gte=1s"`
}

// Telegram configures the optional notification sink.
type Telegram struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token" validate:"required_if=Enabled true"`
	ChatID   string `yaml:"chat_id" validate:"required_if=Enabled true"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Bot        Bot        `yaml:"bot"`
	Risk       Risk       `yaml:"risk"`
	Signal     Signal     `yaml:"signal"`
	Feeds      Feeds      `yaml:"feeds"`
	Polymarket Polymarket `yaml:"polymarket"`
	Telegram   Telegram   `yaml:"telegram"`
}

// Default returns a Config populated only from struct defaults.
func Default() (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &cfg, nil
}

// Load reads a YAML file from disk, fills unset fields with defaults and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadWithEnv loads the YAML file, then applies a best-effort .env file and POLYBOT_* overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("POLYBOT_INTERVAL"); v != "" {
		cfg.Bot.Interval = v
	}
	if v := os.Getenv("POLYBOT_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("POLYBOT_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}
	if v := os.Getenv("POLYBOT_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("POLYBOT_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
}

// Validate checks struct constraints declared in validate tags.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return ErrNilConfig
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
