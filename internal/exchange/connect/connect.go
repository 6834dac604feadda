package connect

import (
	"fmt"
	"strings"

	"fvgbot/internal/config"
	"fvgbot/internal/exchange"
	"fvgbot/internal/exchange/bitfinex"
	"fvgbot/internal/exchange/bybit"
	"fvgbot/internal/exchange/simulated"
	"fvgbot/internal/logger"
)

const (
	bybitBaseURL = "https://api.bybit.com"
	bybitWSURL   = "wss://stream.bybit.com/v5/public/spot"
)

// Open builds the gateway named in the config, wrapped in retry middleware.
// In dry-run mode orders are filled by the simulator while market data comes from the real exchange.
func Open(cfg *config.Config, log *logger.Logger) (*exchange.Retrying, error) {
	ex := cfg.Exchange
	name := strings.ToLower(strings.TrimSpace(ex.Name))

	var gw exchange.Gateway
	switch name {
	case "bybit":
		if err := requireCredentials(ex, cfg.Runtime.DryRun); err != nil {
			return nil, err
		}
		gw = bybit.New(bybit.Config{
			BaseURL:     orDefault(ex.BaseUrl, bybitBaseURL),
			WSURL:       orDefault(ex.WSUrl, bybitWSURL),
			ApiKey:      ex.ApiKey,
			Secret:      ex.Secret,
			AccountType: ex.AccountType,
			RateLimit:   ex.RateLimit,
			RateBurst:   ex.RateBurst,
		}, log)
	case "bitfinex":
		if err := requireCredentials(ex, cfg.Runtime.DryRun); err != nil {
			return nil, err
		}
		bfx, err := bitfinex.New(bitfinex.Config{
			BaseURL:   orDefault(ex.BaseUrl, bitfinex.DefaultBaseURL),
			ApiKey:    ex.ApiKey,
			Secret:    ex.Secret,
			Sandbox:   ex.Sandbox,
			NonceFile: ex.NonceFile,
			RateLimit: ex.RateLimit,
			RateBurst: ex.RateBurst,
		}, log)
		if err != nil {
			return nil, err
		}
		gw = bfx
	case "simulated", "paper":
		gw = simulated.New(simulated.WithBalance(exchange.QuoteCurrency(cfg.Bot.Symbol), cfg.Bot.InitialEquity))
	default:
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnsupportedExchange, ex.Name)
	}

	if cfg.Runtime.DryRun {
		if _, ok := gw.(*simulated.Gateway); !ok {
			gw = simulated.New(
				simulated.WithMarketData(gw),
				simulated.WithBalance(exchange.QuoteCurrency(cfg.Bot.Symbol), cfg.Bot.InitialEquity),
			)
		}
	}

	log.WithComponent("connect").WithFields(map[string]any{
		"exchange": gw.Name(),
		"dry_run":  cfg.Runtime.DryRun,
		"sandbox":  ex.Sandbox,
	}).Info("Шлюз биржи инициализирован.")

	return exchange.WithRetry(gw, Policy(cfg.Retry), log), nil
}

func Policy(rc config.RetryConfig) exchange.RetryPolicy {
	policy := exchange.DefaultRetryPolicy()
	if rc.MaxAttempts > 0 {
		policy.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialDelay > 0 {
		policy.InitialDelay = rc.InitialDelay
	}
	if rc.MaxDelay > 0 {
		policy.MaxDelay = rc.MaxDelay
	}
	if rc.RateLimitFactor > 0 {
		policy.RateLimitFactor = rc.RateLimitFactor
	}
	return policy
}

// requireCredentials lets public-data dry runs go without keys.
func requireCredentials(ex config.ExchangeConfig, dryRun bool) error {
	if dryRun {
		return nil
	}
	if strings.TrimSpace(ex.ApiKey) == "" || strings.TrimSpace(ex.Secret) == "" {
		return fmt.Errorf("%w: для %s не заданы api_key/secret", exchange.ErrAuth, ex.Name)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
