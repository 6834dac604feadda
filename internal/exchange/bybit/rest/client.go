package rest

import (
	"net/http"
	"sync"
	"time"

	"fvgbot/internal/logger"

	"golang.org/x/time/rate"
)

type Client struct {
	baseURL     string
	accountType string
	apiKey      string
	secret      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	log         *logger.Logger

	rulesMu sync.Mutex
	rules   map[string]InstrumentRules
	now     func() time.Time
}

type Options struct {
	BaseURL     string
	AccountType string
	ApiKey      string
	Secret      string
	RateLimit   float64
	RateBurst   int
	HTTPClient  *http.Client
}

func New(opts Options, log *logger.Logger) *Client {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:     opts.BaseURL,
		accountType: opts.AccountType,
		apiKey:      opts.ApiKey,
		secret:      opts.Secret,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(limit, burst),
		log:         log,
		rules:       map[string]InstrumentRules{},
		now:         time.Now,
	}
}

func (c *Client) HasCredentials() bool {
	return c.apiKey != "" && c.secret != ""
}

