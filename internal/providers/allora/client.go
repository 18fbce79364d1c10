package allora

import (
	"context"
	"net/http"
	"strings"
	"time"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/httpx"
	"github.com/kelreel/sonichash/internal/model"
	"github.com/kelreel/sonichash/internal/registry"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	network string
	apiKey  string
	now     func() time.Time
}

func New(httpClient *httpx.Client, baseURL, network, apiKey string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = registry.AlloraBaseURL
	}
	if strings.TrimSpace(network) == "" {
		network = registry.AlloraNetwork
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		network: network,
		apiKey:  apiKey,
		now:     time.Now,
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "allora",
		Type:          "price-prediction",
		RequiresKey:   true,
		Capabilities:  []string{"actions.predict_price"},
		KeyEnvVarName: "ALLORA_API_KEY",
	}
}

type Prediction struct {
	Ticker    string    `json:"ticker"`
	Timeframe string    `json:"timeframe"`
	Value     string    `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

type predictResponse struct {
	Status bool `json:"status"`
	Data   struct {
		InferenceData struct {
			NetworkInferenceNormalized string `json:"network_inference_normalized"`
			Timestamp                  int64  `json:"timestamp"`
		} `json:"inference_data"`
	} `json:"data"`
}

// Predict fetches the network's normalized price inference for a ticker and
// timeframe such as "btc" and "5m".
func (c *Client) Predict(ctx context.Context, ticker, timeframe string) (Prediction, error) {
	if c.apiKey == "" {
		return Prediction{}, clierr.New(clierr.CodeAuth, "allora api key is not configured")
	}
	t := strings.ToLower(strings.TrimSpace(ticker))
	tf := strings.ToLower(strings.TrimSpace(timeframe))
	endpoint := registry.JoinURL(c.baseURL, "price", c.network, t, tf)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Prediction{}, clierr.Wrap(clierr.CodeInternal, "build allora request", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	var resp predictResponse
	if _, err := c.http.DoJSON(ctx, req, &resp); err != nil {
		return Prediction{}, err
	}
	value := strings.TrimSpace(resp.Data.InferenceData.NetworkInferenceNormalized)
	if value == "" {
		return Prediction{}, clierr.New(clierr.CodeUnavailable, "allora returned no inference")
	}
	return Prediction{
		Ticker:    strings.ToUpper(t),
		Timeframe: tf,
		Value:     value,
		FetchedAt: c.now().UTC(),
	}, nil
}
