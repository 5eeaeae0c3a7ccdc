package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"signalTrader/internal/adapters/logger" // Import the logger package for LogLevel
)

// Aggregation rules for combining indicator votes into one signal.
const (
	SignalRuleSingle       = "single"       // pass-through of one named vote
	SignalRulePairwise     = "pairwise"     // two votes must agree, disagreement -> None
	SignalRuleMajority     = "majority"     // N-of-M votes must agree
	SignalRulePreConfirmed = "preconfirmed" // collaborator applies its own debounce
)

// Allowed trade side restrictions.
const (
	SidesLong  = "long"
	SidesShort = "short"
	SidesBoth  = "both"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Instrument
	Symbol            string
	ContractsPerTrade float64 // Requested size for every open action
	PriceTickSize     float64 // Exchange price grid for limit price rounding
	AllowedSides      string  // long | short | both

	// Signal
	SignalRule            string        // Aggregation rule (see SignalRule* constants)
	SignalQuorum          int           // Required agreeing votes for the majority rule
	ConfirmationThreshold time.Duration // How long a direction must persist before locking
	MomentumShortWindow   int           // Short rolling window of the built-in momentum provider
	MomentumLongWindow    int           // Long rolling window of the built-in momentum provider
	MomentumMargin        float64       // Relative divergence required before the momentum provider votes

	// Execution
	AttemptTimeout    time.Duration // Per order attempt, before cancel-and-retry
	OrderPollInterval time.Duration // Order status poll period while an attempt is outstanding
	TickInterval      time.Duration // Outer signal/position evaluation period
	MaxOpenAttempts   int           // 0 = unbounded (only signal reversal bounds opens)

	// Risk
	MaxLossLimit          float64       // Cumulative loss cap; trips the guard at -MaxLossLimit
	MaxTradeCount         int           // Completed-trade cap
	MaxTradeCountEnabled  bool          // Whether the trade-count limiter is active
	TakeProfitThreshold   float64       // Absolute net-profit threshold for a guard close
	TakeProfitEnabled     bool          // Whether take-profit is active
	TakeProfitWaitNextBar bool          // Suppress re-entry until the next bar after a take-profit close
	MinProfitPercent      float64       // Minimum profit on opposing-signal closes (percent of entry)
	MinProfitEnabled      bool          // Whether the minimum-profit floor is active
	FundingPercentPerHour float64       // Time-accrued holding cost added to the minimum-profit floor
	FeePercent            float64       // Estimated exit cost percent, netted out of take-profit
	BarInterval           time.Duration // Discrete time-bar used for re-entry gating

	// Persistence
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // text | json

	// Metrics
	MetricsAddr string // Empty disables the /metrics listener
}

// LoadConfig loads configuration from environment variables (.env file).
// Exchange credentials are required.
func LoadConfig() (*Config, error) {
	return loadConfig(true)
}

// LoadPaperConfig loads configuration for simulated sessions, which share all
// the risk and signal knobs but never talk to the exchange, so credentials
// are not required.
func LoadPaperConfig() (*Config, error) {
	return loadConfig(false)
}

func loadConfig(requireKeys bool) (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if requireKeys && cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if requireKeys && cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Instrument
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	cfg.ContractsPerTrade, err = getEnvAsFloatRequired("CONTRACTS_PER_TRADE", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CONTRACTS_PER_TRADE: %v", err))
	} else if cfg.ContractsPerTrade <= 0 {
		errs = append(errs, "CONTRACTS_PER_TRADE must be positive")
	}

	cfg.PriceTickSize, err = getEnvAsFloatRequired("PRICE_TICK_SIZE", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_TICK_SIZE: %v", err))
	} else if cfg.PriceTickSize <= 0 {
		errs = append(errs, "PRICE_TICK_SIZE must be positive")
	}

	cfg.AllowedSides = strings.ToLower(getEnv("ALLOWED_TRADE_SIDES", SidesBoth))
	switch cfg.AllowedSides {
	case SidesLong, SidesShort, SidesBoth:
	default:
		errs = append(errs, "ALLOWED_TRADE_SIDES must be one of: long, short, both")
	}

	// Signal
	cfg.SignalRule = strings.ToLower(getEnv("SIGNAL_SOURCE", SignalRuleSingle))
	switch cfg.SignalRule {
	case SignalRuleSingle, SignalRulePairwise, SignalRuleMajority, SignalRulePreConfirmed:
	default:
		errs = append(errs, "SIGNAL_SOURCE must be one of: single, pairwise, majority, preconfirmed")
	}

	cfg.SignalQuorum = getEnvAsInt("SIGNAL_QUORUM", 3)
	if cfg.SignalRule == SignalRuleMajority && cfg.SignalQuorum <= 0 {
		errs = append(errs, "SIGNAL_QUORUM must be positive for the majority rule")
	}

	cfg.MomentumShortWindow = getEnvAsInt("MOMENTUM_SHORT_WINDOW", 5)
	cfg.MomentumLongWindow = getEnvAsInt("MOMENTUM_LONG_WINDOW", 20)
	if cfg.MomentumShortWindow <= 0 || cfg.MomentumLongWindow <= cfg.MomentumShortWindow {
		errs = append(errs, "MOMENTUM_LONG_WINDOW must exceed a positive MOMENTUM_SHORT_WINDOW")
	}
	cfg.MomentumMargin, err = getEnvAsFloatRequired("MOMENTUM_MARGIN", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MOMENTUM_MARGIN: %v", err))
	} else if cfg.MomentumMargin < 0 {
		errs = append(errs, "MOMENTUM_MARGIN cannot be negative")
	}

	confirmSeconds, err := getEnvAsFloatRequired("CONFIRMATION_THRESHOLD_SECONDS", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CONFIRMATION_THRESHOLD_SECONDS: %v", err))
	} else if confirmSeconds < 0 {
		errs = append(errs, "CONFIRMATION_THRESHOLD_SECONDS cannot be negative")
	}
	cfg.ConfirmationThreshold = time.Duration(confirmSeconds * float64(time.Second))

	// Execution
	attemptSeconds, err := getEnvAsFloatRequired("PER_ATTEMPT_TIMEOUT_SECONDS", 30.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PER_ATTEMPT_TIMEOUT_SECONDS: %v", err))
	} else if attemptSeconds <= 0 {
		errs = append(errs, "PER_ATTEMPT_TIMEOUT_SECONDS must be positive")
	}
	cfg.AttemptTimeout = time.Duration(attemptSeconds * float64(time.Second))

	cfg.OrderPollInterval = time.Duration(getEnvAsInt("ORDER_POLL_INTERVAL_MS", 500)) * time.Millisecond
	if cfg.OrderPollInterval <= 0 {
		errs = append(errs, "ORDER_POLL_INTERVAL_MS must be positive")
	}

	cfg.TickInterval = time.Duration(getEnvAsInt("TICK_INTERVAL_MS", 100)) * time.Millisecond
	if cfg.TickInterval <= 0 {
		errs = append(errs, "TICK_INTERVAL_MS must be positive")
	}

	cfg.MaxOpenAttempts = getEnvAsInt("MAX_OPEN_ATTEMPTS", 0)
	if cfg.MaxOpenAttempts < 0 {
		errs = append(errs, "MAX_OPEN_ATTEMPTS cannot be negative")
	}

	// Risk
	cfg.MaxLossLimit, err = getEnvAsFloatRequired("MAX_LOSS_LIMIT", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_LOSS_LIMIT: %v", err))
	} else if cfg.MaxLossLimit <= 0 {
		errs = append(errs, "MAX_LOSS_LIMIT must be positive")
	}

	cfg.MaxTradeCountEnabled = getEnvAsBool("MAX_TRADE_COUNT_ENABLED", false)
	cfg.MaxTradeCount = getEnvAsInt("MAX_TRADE_COUNT", 10)
	if cfg.MaxTradeCountEnabled && cfg.MaxTradeCount <= 0 {
		errs = append(errs, "MAX_TRADE_COUNT must be positive when MAX_TRADE_COUNT_ENABLED")
	}

	cfg.TakeProfitEnabled = getEnvAsBool("TAKE_PROFIT_ENABLED", false)
	cfg.TakeProfitThreshold, err = getEnvAsFloatRequired("TAKE_PROFIT_THRESHOLD", 50.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_THRESHOLD: %v", err))
	} else if cfg.TakeProfitEnabled && cfg.TakeProfitThreshold <= 0 {
		errs = append(errs, "TAKE_PROFIT_THRESHOLD must be positive when TAKE_PROFIT_ENABLED")
	}
	cfg.TakeProfitWaitNextBar = getEnvAsBool("TAKE_PROFIT_WAIT_NEXT_BAR", false)

	cfg.MinProfitEnabled = getEnvAsBool("MIN_PROFIT_ENABLED", false)
	cfg.MinProfitPercent, err = getEnvAsFloatRequired("MIN_PROFIT_PERCENT", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_PROFIT_PERCENT: %v", err))
	} else if cfg.MinProfitEnabled && cfg.MinProfitPercent <= 0 {
		errs = append(errs, "MIN_PROFIT_PERCENT must be positive when MIN_PROFIT_ENABLED")
	}

	cfg.FundingPercentPerHour = getEnvAsFloat("FUNDING_COST_PERCENT_PER_HOUR", 0.0)
	if cfg.FundingPercentPerHour < 0 {
		errs = append(errs, "FUNDING_COST_PERCENT_PER_HOUR cannot be negative")
	}

	cfg.FeePercent = getEnvAsFloat("FEE_PERCENT", 0.04)
	if cfg.FeePercent < 0 {
		errs = append(errs, "FEE_PERCENT cannot be negative")
	}

	barSeconds := getEnvAsInt("BAR_INTERVAL_SECONDS", 60)
	if barSeconds <= 0 {
		errs = append(errs, "BAR_INTERVAL_SECONDS must be positive")
	}
	cfg.BarInterval = time.Duration(barSeconds) * time.Second

	// Persistence
	cfg.DBPath = getEnv("DB_PATH", "./data/signal_trader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be 'text' or 'json'")
	}

	// Metrics
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
