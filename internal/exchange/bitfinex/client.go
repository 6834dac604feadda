package bitfinex

import (
	"net/http"
	"sync"
	"time"

	"fvgbot/internal/logger"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.bitfinex.com"
	apiPrefix      = "/api"
)

type Config struct {
	BaseURL   string
	ApiKey    string
	Secret    string
	Sandbox   bool
	NonceFile string
	RateLimit float64
	RateBurst int
}

// Gateway talks to the Bitfinex REST v2 API. With Sandbox set every symbol
// is rewritten to its paper trading form.
type Gateway struct {
	baseURL    string
	apiKey     string
	secret     string
	sandbox    bool
	nonces     *NonceStore
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
	now        func() time.Time

	mu        sync.Mutex
	attempted map[string]bool
}

func New(cfg Config, log *logger.Logger) (*Gateway, error) {
	nonces, err := NewNonceStore(cfg.NonceFile)
	if err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &Gateway{
		baseURL:    baseURL,
		apiKey:     cfg.ApiKey,
		secret:     cfg.Secret,
		sandbox:    cfg.Sandbox,
		nonces:     nonces,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(limit, burst),
		log:        log,
		now:        time.Now,
		attempted:  map[string]bool{},
	}, nil
}

func (g *Gateway) Name() string {
	return "bitfinex"
}
