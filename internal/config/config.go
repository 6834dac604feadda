package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("некорректная конфигурация")

const DefaultPath = "configs/config.yaml"

type Config struct {
	Exchange ExchangeConfig
	Bot      BotConfig
	Retry    RetryConfig
	Backtest BacktestConfig
	Runtime  RuntimeConfig
}

type ExchangeConfig struct {
	Name        string
	BaseUrl     string
	WSUrl       string
	ApiKey      string
	Secret      string
	AccountType string
	Sandbox     bool
	NonceFile   string
	RateLimit   float64
	RateBurst   int
}

type BotConfig struct {
	Symbol            string
	Timeframe         string
	Limit             int
	EMALength         int
	VolumeMultiplier  float64
	TradingStartHour  int
	TradingEndHour    int
	Lookback          int
	StopLossPercent   float64
	TakeProfitPercent float64
	RiskPerTrade      float64
	MaxDailyLoss      float64
	MaxTradesPerDay   int
	HoldBars          int
	UseFilters        bool
	OrderType         string
	InitialEquity     float64
	PollInterval      time.Duration
	FillTimeout       time.Duration
}

type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	RateLimitFactor float64
}

type BacktestConfig struct {
	DataFile      string
	Output        string
	InitialEquity float64
}

type RuntimeConfig struct {
	DryRun bool
	Log    LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: не удалось прочитать %s: %v", ErrInvalidConfig, path, err)
		}
	}

	cfg := &Config{}

	cfg.Exchange = ExchangeConfig{
		Name:        v.GetString("exchange.name"),
		BaseUrl:     v.GetString("exchange.base_url"),
		WSUrl:       v.GetString("exchange.ws_url"),
		ApiKey:      envSub(v, "exchange.api_key"),
		Secret:      envSub(v, "exchange.secret"),
		AccountType: v.GetString("exchange.account_type"),
		Sandbox:     v.GetBool("exchange.sandbox"),
		NonceFile:   v.GetString("exchange.nonce_file"),
		RateLimit:   v.GetFloat64("exchange.rate_limit"),
		RateBurst:   v.GetInt("exchange.rate_burst"),
	}

	cfg.Bot = BotConfig{
		Symbol:            v.GetString("bot.symbol"),
		Timeframe:         v.GetString("bot.timeframe"),
		Limit:             v.GetInt("bot.limit"),
		EMALength:         v.GetInt("bot.ema_length"),
		VolumeMultiplier:  v.GetFloat64("bot.volume_multiplier"),
		TradingStartHour:  v.GetInt("bot.trading_start_hour"),
		TradingEndHour:    v.GetInt("bot.trading_end_hour"),
		Lookback:          v.GetInt("bot.lookback"),
		StopLossPercent:   v.GetFloat64("bot.stop_loss_percent"),
		TakeProfitPercent: v.GetFloat64("bot.take_profit_percent"),
		RiskPerTrade:      v.GetFloat64("bot.risk_per_trade"),
		MaxDailyLoss:      v.GetFloat64("bot.max_daily_loss"),
		MaxTradesPerDay:   v.GetInt("bot.max_trades_per_day"),
		HoldBars:          v.GetInt("bot.hold_bars"),
		UseFilters:        v.GetBool("bot.use_filters"),
		OrderType:         v.GetString("bot.order_type"),
		InitialEquity:     v.GetFloat64("bot.initial_equity"),
		PollInterval:      v.GetDuration("bot.poll_interval"),
		FillTimeout:       v.GetDuration("bot.fill_timeout"),
	}

	cfg.Retry = RetryConfig{
		MaxAttempts:     v.GetInt("retry.max_attempts"),
		InitialDelay:    v.GetDuration("retry.initial_delay"),
		MaxDelay:        v.GetDuration("retry.max_delay"),
		RateLimitFactor: v.GetFloat64("retry.rate_limit_factor"),
	}

	cfg.Backtest = BacktestConfig{
		DataFile:      v.GetString("backtest.data_file"),
		Output:        v.GetString("backtest.output"),
		InitialEquity: v.GetFloat64("backtest.initial_equity"),
	}

	cfg.Runtime = RuntimeConfig{
		DryRun: v.GetBool("runtime.dry_run"),
		Log: LogConfig{
			Level:      v.GetString("runtime.log.level"),
			Format:     v.GetString("runtime.log.format"),
			File:       v.GetString("runtime.log.file"),
			MaxSize:    v.GetInt("runtime.log.max_size"),
			MaxBackups: v.GetInt("runtime.log.max_backups"),
			MaxAge:     v.GetInt("runtime.log.max_age"),
			Compress:   v.GetBool("runtime.log.compress"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.name", "bybit")
	v.SetDefault("exchange.account_type", "UNIFIED")
	v.SetDefault("exchange.nonce_file", "nonce.json")
	v.SetDefault("exchange.rate_limit", 5.0)
	v.SetDefault("exchange.rate_burst", 5)

	v.SetDefault("bot.symbol", "BTC/USDT")
	v.SetDefault("bot.timeframe", "1m")
	v.SetDefault("bot.limit", 100)
	v.SetDefault("bot.ema_length", 14)
	v.SetDefault("bot.volume_multiplier", 1.5)
	v.SetDefault("bot.trading_start_hour", 0)
	v.SetDefault("bot.trading_end_hour", 23)
	v.SetDefault("bot.lookback", 5)
	v.SetDefault("bot.stop_loss_percent", 2.0)
	v.SetDefault("bot.take_profit_percent", 4.0)
	v.SetDefault("bot.risk_per_trade", 0.01)
	v.SetDefault("bot.hold_bars", 1)
	v.SetDefault("bot.order_type", "market")
	v.SetDefault("bot.poll_interval", 5*time.Second)
	v.SetDefault("bot.fill_timeout", 20*time.Second)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.rate_limit_factor", 4.0)

	v.SetDefault("backtest.output", "backtest_results.csv")
	v.SetDefault("backtest.initial_equity", 10000.0)

	v.SetDefault("runtime.log.level", "info")
	v.SetDefault("runtime.log.format", "text")
	v.SetDefault("runtime.log.max_size", 10)
	v.SetDefault("runtime.log.max_backups", 5)
	v.SetDefault("runtime.log.max_age", 30)
}

func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	b := c.Bot
	if strings.TrimSpace(c.Exchange.Name) == "" {
		add("exchange.name пуст")
	}
	if strings.TrimSpace(b.Symbol) == "" {
		add("bot.symbol пуст")
	}
	if strings.TrimSpace(b.Timeframe) == "" {
		add("bot.timeframe пуст")
	}
	if b.Lookback < 1 {
		add("bot.lookback должен быть >= 1: %d", b.Lookback)
	}
	if b.Limit < b.Lookback+3 {
		add("bot.limit должен быть >= lookback+3: %d", b.Limit)
	}
	if b.EMALength < 1 {
		add("bot.ema_length должен быть >= 1: %d", b.EMALength)
	}
	if b.VolumeMultiplier <= 0 {
		add("bot.volume_multiplier должен быть > 0: %v", b.VolumeMultiplier)
	}
	if b.TradingStartHour < 0 || b.TradingStartHour > 23 || b.TradingEndHour < 0 || b.TradingEndHour > 23 {
		add("часы торговли вне диапазона 0-23: %d-%d", b.TradingStartHour, b.TradingEndHour)
	}
	if b.StopLossPercent <= 0 || b.StopLossPercent >= 100 {
		add("bot.stop_loss_percent вне (0, 100): %v", b.StopLossPercent)
	}
	if b.TakeProfitPercent <= 0 {
		add("bot.take_profit_percent должен быть > 0: %v", b.TakeProfitPercent)
	}
	if b.RiskPerTrade <= 0 || b.RiskPerTrade > 1 {
		add("bot.risk_per_trade вне (0, 1]: %v", b.RiskPerTrade)
	}
	if b.MaxDailyLoss < 0 || b.MaxDailyLoss > 100 {
		add("bot.max_daily_loss вне [0, 100]: %v", b.MaxDailyLoss)
	}
	if b.MaxTradesPerDay < 0 {
		add("bot.max_trades_per_day < 0: %d", b.MaxTradesPerDay)
	}
	if b.HoldBars < 0 {
		add("bot.hold_bars < 0: %d", b.HoldBars)
	}
	switch strings.ToLower(b.OrderType) {
	case "market", "limit":
	default:
		add("bot.order_type должен быть market или limit: %q", b.OrderType)
	}
	if b.InitialEquity < 0 {
		add("bot.initial_equity < 0: %v", b.InitialEquity)
	}
	if b.PollInterval <= 0 {
		add("bot.poll_interval должен быть > 0")
	}
	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts должен быть >= 1: %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 {
		add("задержки retry не могут быть отрицательными")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

func envSub(v *viper.Viper, key string) string {
	val := v.GetString(key)
	if val == "" {
		return ""
	}

	return envPattern.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
