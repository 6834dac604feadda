package rest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"fvgbot/internal/exchange"

	"github.com/tidwall/gjson"
)

const recvWindow = "5000"

const (
	codeRateLimited      = 10006
	codeInvalidKey       = 10003
	codeInvalidSign      = 10004
	codePermissionDenied = 10005
	codeKeyExpired       = 33004
	codeDuplicateLinkID  = 170141
	codeDuplicateLinkID2 = 110072
	codeOrderNotFound    = 170213
	codeOrderNotFound2   = 110001
)

// errDuplicateLinkID is returned when an order with the same orderLinkId already exists.
var errDuplicateLinkID = errors.New("дублирующийся orderLinkId")

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body any, auth bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("Не удалось подготовить тело запроса: %w", err)
		}
		bodyStr = string(payload)
		bodyReader = bytes.NewReader(payload)
	}

	urlStr := c.baseURL + path
	query := ""
	if len(params) > 0 {
		query = params.Encode()
		urlStr += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, bodyReader)
	if err != nil {
		return fmt.Errorf("Не удалось создать запрос: %w", err)
	}

	if auth {
		if !c.HasCredentials() {
			return fmt.Errorf("%w: не заданы api_key/secret", exchange.ErrAuth)
		}
		timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
		payload := bodyStr
		if method == http.MethodGet {
			payload = query
		}
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-SIGN", sign(c.secret, timestamp+c.apiKey+recvWindow+payload))
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Ошибка запроса: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("Не удалось прочитать ответ: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", exchange.ErrRateLimited, resp.Status)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s", exchange.ErrAuth, resp.Status)
	}

	if gjson.ValidBytes(data) {
		if code := gjson.GetBytes(data, "retCode"); code.Exists() && code.Int() != 0 {
			return classify(int(code.Int()), gjson.GetBytes(data, "retMsg").String())
		}
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("Неуспешный статус: %s", resp.Status)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("Не удалось разобрать ответ: %w", err)
	}
	return nil
}

func classify(code int, msg string) error {
	base := fmt.Errorf("Ошибка bybit: %s (code=%d)", msg, code)
	switch {
	case code == codeRateLimited:
		return fmt.Errorf("%w: %w", exchange.ErrRateLimited, base)
	case code == codeInvalidKey || code == codeInvalidSign || code == codePermissionDenied || code == codeKeyExpired:
		return fmt.Errorf("%w: %w", exchange.ErrAuth, base)
	case code == codeDuplicateLinkID || code == codeDuplicateLinkID2:
		return fmt.Errorf("%w: %w", errDuplicateLinkID, base)
	case code == codeOrderNotFound || code == codeOrderNotFound2:
		return fmt.Errorf("%w: %w", exchange.ErrOrderNotFound, base)
	case code >= 170000 && code < 180000, code == 10001:
		return fmt.Errorf("%w: %w", exchange.ErrRejected, base)
	}
	return base
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
