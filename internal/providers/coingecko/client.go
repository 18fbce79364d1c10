package coingecko

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/httpx"
	"github.com/kelreel/sonichash/internal/model"
	"github.com/kelreel/sonichash/internal/registry"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, baseURL, apiKey string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = registry.CoinGeckoBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "coingecko",
		Type:          "prices",
		RequiresKey:   false,
		Capabilities:  []string{"prices.usd"},
		KeyEnvVarName: "SONICHASH_COINGECKO_API_KEY",
	}
}

// SimplePrice returns USD prices keyed by CoinGecko id. Ids the provider does
// not list are absent from the result.
func (c *Client) SimplePrice(ctx context.Context, ids []string) (map[string]float64, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return map[string]float64{}, nil
	}
	q := url.Values{}
	q.Set("ids", strings.Join(unique, ","))
	q.Set("vs_currencies", "usd")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build coingecko request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	var resp map[string]struct {
		USD *float64 `json:"usd"`
	}
	if _, err := c.http.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(resp))
	for id, quote := range resp {
		if quote.USD != nil {
			out[id] = *quote.USD
		}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		v := strings.TrimSpace(id)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
