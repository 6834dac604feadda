package rest

import (
	"context"
	"net/http"
	"net/url"
)

// GetBalances returns the available amount per coin.
func (c *Client) GetBalances(ctx context.Context) (map[string]float64, error) {
	params := url.Values{}
	params.Set("accountType", c.accountType)

	var resp bybitResponse[struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				Locked              string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params, nil, true, &resp); err != nil {
		return nil, err
	}

	balances := map[string]float64{}
	for _, account := range resp.Result.List {
		for _, item := range account.Coin {
			wallet, _ := parseFloatOrZero(item.WalletBalance)
			locked, _ := parseFloatOrZero(item.Locked)

			available, _ := parseFloatOrZero(item.AvailableToWithdraw)
			if available == 0 {
				available = wallet - locked
			}
			balances[item.Coin] += available
		}
	}
	return balances, nil
}
