package bitfinex

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fvgbot/internal/exchange"

	"github.com/tidwall/gjson"
)

const (
	codeAuth      = 10100
	codeRateLimit = 11010
)

func (g *Gateway) get(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	urlStr := g.baseURL + apiPrefix + path
	if len(params) > 0 {
		urlStr += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("Не удалось создать запрос: %w", err)
	}
	return g.do(ctx, req)
}

// post sends an authenticated request. The signature covers /api/<path><nonce><body>.
func (g *Gateway) post(ctx context.Context, path string, body any) (gjson.Result, error) {
	if g.apiKey == "" || g.secret == "" {
		return gjson.Result{}, fmt.Errorf("%w: не заданы api_key/secret", exchange.ErrAuth)
	}
	if body == nil {
		body = map[string]any{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("Не удалось подготовить тело запроса: %w", err)
	}

	nonce, err := g.nonces.Next()
	if err != nil {
		return gjson.Result{}, err
	}
	nonceStr := strconv.FormatInt(nonce, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+apiPrefix+path, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("Не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("bfx-nonce", nonceStr)
	req.Header.Set("bfx-apikey", g.apiKey)
	req.Header.Set("bfx-signature", sign(g.secret, apiPrefix+path+nonceStr+string(payload)))

	return g.do(ctx, req)
}

func (g *Gateway) do(ctx context.Context, req *http.Request) (gjson.Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("Ошибка запроса: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("Не удалось прочитать ответ: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return gjson.Result{}, fmt.Errorf("%w: %s", exchange.ErrRateLimited, resp.Status)
	}

	if !gjson.ValidBytes(data) {
		if resp.StatusCode >= 400 {
			return gjson.Result{}, fmt.Errorf("Неуспешный статус: %s", resp.Status)
		}
		return gjson.Result{}, fmt.Errorf("Не удалось разобрать ответ: %s", truncate(string(data)))
	}

	result := gjson.ParseBytes(data)
	if result.IsArray() && result.Get("0").String() == "error" {
		return gjson.Result{}, classify(int(result.Get("1").Int()), result.Get("2").String())
	}
	if msg := result.Get("message"); result.IsObject() && msg.Exists() {
		return gjson.Result{}, classify(int(result.Get("code").Int()), msg.String())
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return gjson.Result{}, fmt.Errorf("%w: %s", exchange.ErrAuth, resp.Status)
	}
	if resp.StatusCode >= 400 {
		return gjson.Result{}, fmt.Errorf("Неуспешный статус: %s", resp.Status)
	}
	return result, nil
}

func classify(code int, msg string) error {
	base := fmt.Errorf("Ошибка bitfinex: %s (code=%d)", msg, code)
	lower := strings.ToLower(msg)
	switch {
	case code == codeRateLimit || strings.Contains(lower, "ratelimit"):
		return fmt.Errorf("%w: %w", exchange.ErrRateLimited, base)
	case code == codeAuth || strings.Contains(lower, "apikey") || strings.Contains(lower, "invalid key"):
		return fmt.Errorf("%w: %w", exchange.ErrAuth, base)
	case strings.Contains(lower, "not found"):
		return fmt.Errorf("%w: %w", exchange.ErrOrderNotFound, base)
	case strings.Contains(lower, "nonce"):
		return base
	case strings.Contains(lower, "insufficient") || strings.Contains(lower, "invalid") || strings.Contains(lower, "minimum"):
		return fmt.Errorf("%w: %w", exchange.ErrRejected, base)
	}
	return base
}

func sign(secret, payload string) string {
	mac := hmac.New(sha512.New384, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func truncate(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
