package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance   Binance   `mapstructure:"binance"`
	Sentiment Sentiment `mapstructure:"sentiment"`
	Trading   Trading   `mapstructure:"trading"`
	Risk      Risk      `mapstructure:"risk"`
	Guard     Guard     `mapstructure:"guard"`
	Scoring   Scoring   `mapstructure:"scoring"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	State     State     `mapstructure:"state"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Sentiment holds the configuration for the Fear & Greed index client.
type Sentiment struct {
	BaseURL string `mapstructure:"base_url"`
}

// Server holds the configuration for the status API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the order journal database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// State holds the configuration for the engine state snapshot.
type State struct {
	Path string `mapstructure:"path"`
}

// Trading holds the core trading parameters.
type Trading struct {
	Symbols         []string `mapstructure:"symbols"`
	InitialBalance  float64  `mapstructure:"initial_balance"`
	FeeRate         float64  `mapstructure:"fee_rate"`
	DustThreshold   float64  `mapstructure:"dust_threshold"`
	RiskFraction    float64  `mapstructure:"risk_fraction"`
	MinNotional     float64  `mapstructure:"min_notional"`
	MaxPositionSize float64  `mapstructure:"max_position_size"`
	TickInterval    int      `mapstructure:"tick_interval"` // seconds between cycles
	KlineInterval   string   `mapstructure:"kline_interval"`
	KlineLimit      int      `mapstructure:"kline_limit"`
	DryRun          bool     `mapstructure:"dry_run"` // paper mode; false submits real orders
}

// Risk holds the stop-loss / take-profit parameters attached to new positions.
type Risk struct {
	StopLossPct       float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct     float64 `mapstructure:"take_profit_pct"`
	TrailingEnabled   bool    `mapstructure:"trailing_enabled"`
	TrailPct          float64 `mapstructure:"trail_pct"`
	PartialTPFraction float64 `mapstructure:"partial_tp_fraction"` // 1.0 = full exit on take-profit
}

// Guard holds the portfolio allocation limits checked before every entry.
type Guard struct {
	MaxPositions        int     `mapstructure:"max_positions"`
	MaxPerSymbolPct     float64 `mapstructure:"max_per_symbol_pct"`
	MaxTotalExposurePct float64 `mapstructure:"max_total_exposure_pct"`
	MinTradeInterval    int     `mapstructure:"min_trade_interval"` // seconds since last BUY
	MaxTradesPerDay     int     `mapstructure:"max_trades_per_day"`
}

// Scoring holds the confluence engine thresholds and factor weights.
type Scoring struct {
	BuyThreshold  float64 `mapstructure:"buy_threshold"`
	SellThreshold float64 `mapstructure:"sell_threshold"`
	MinConfidence float64 `mapstructure:"min_confidence"`
	Weights       Weights `mapstructure:"weights"`
}

// Weights are the per-factor weights; they must sum to 1.
type Weights struct {
	Macro       float64 `mapstructure:"macro"`
	PriceAction float64 `mapstructure:"price_action"`
	OnChain     float64 `mapstructure:"on_chain"`
	Cycle       float64 `mapstructure:"cycle"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("binance.rate_limit", 20)      // requests per second
	viper.SetDefault("binance.rate_limit_burst", 5) // burst size
	viper.SetDefault("sentiment.base_url", "https://api.alternative.me")

	viper.SetDefault("trading.initial_balance", 1000.0)
	viper.SetDefault("trading.fee_rate", 0.001)
	viper.SetDefault("trading.dust_threshold", 1e-6)
	viper.SetDefault("trading.risk_fraction", 0.10)
	viper.SetDefault("trading.min_notional", 10.0)
	viper.SetDefault("trading.max_position_size", 500.0)
	viper.SetDefault("trading.tick_interval", 300)
	viper.SetDefault("trading.kline_interval", "1h")
	viper.SetDefault("trading.kline_limit", 24)
	viper.SetDefault("trading.dry_run", true)

	viper.SetDefault("risk.stop_loss_pct", 4.0)
	viper.SetDefault("risk.take_profit_pct", 8.0)
	viper.SetDefault("risk.trailing_enabled", false)
	viper.SetDefault("risk.trail_pct", 3.0)
	viper.SetDefault("risk.partial_tp_fraction", 1.0)

	viper.SetDefault("guard.max_positions", 6)
	viper.SetDefault("guard.max_per_symbol_pct", 25.0)
	viper.SetDefault("guard.max_total_exposure_pct", 80.0)
	viper.SetDefault("guard.min_trade_interval", 900)
	viper.SetDefault("guard.max_trades_per_day", 10)

	viper.SetDefault("scoring.buy_threshold", 3.2)
	viper.SetDefault("scoring.sell_threshold", 2.4)
	viper.SetDefault("scoring.min_confidence", 70.0)
	viper.SetDefault("scoring.weights.macro", 0.30)
	viper.SetDefault("scoring.weights.price_action", 0.30)
	viper.SetDefault("scoring.weights.on_chain", 0.25)
	viper.SetDefault("scoring.weights.cycle", 0.15)

	viper.SetDefault("state.path", "./data/engine_state.json")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
