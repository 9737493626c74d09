package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	ClientTypeADSBExchange = "adsbexchange"

	DefaultADSBExchangeBaseURL  = "https://adsbexchange-com1.p.rapidapi.com"
	DefaultADSBExchangeEndpoint = "/v2/mil/"

	adsbExchangeSource = "adsbexchange_rapidapi"
	userAgent          = "SkyTrace/1.0"
	maxErrorBody       = 512
)

// ADSBExchangeConfig is the per-job configuration of an ADSBExchange client.
type ADSBExchangeConfig struct {
	RapidAPIKey string `json:"rapidapi_key"`
	BaseURL     string `json:"base_url"`
	Endpoint    string `json:"endpoint"`
	// Timeout is the fetch timeout in seconds.
	Timeout int `json:"timeout"`
}

// ADSBExchangeClient reads aircraft from the ADSBExchange RapidAPI feed.
type ADSBExchangeClient struct {
	AircraftCodec
	DatasetWriter

	url    string
	host   string
	apiKey string
	client *http.Client
}

// NewADSBExchangeClient builds a client from a job configuration blob,
// falling back to env for the API key, base URL and endpoint.
func NewADSBExchangeClient(raw map[string]any, env Env) (Client, error) {
	var cfg ADSBExchangeConfig
	if err := DecodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.RapidAPIKey = firstNonEmpty(cfg.RapidAPIKey, env.ADSBExchange.RapidAPIKey)
	if cfg.RapidAPIKey == "" {
		return nil, fmt.Errorf("%w: adsbexchange requires rapidapi_key", ErrInvalidConfig)
	}
	cfg.BaseURL = firstNonEmpty(cfg.BaseURL, env.ADSBExchange.BaseURL, DefaultADSBExchangeBaseURL)
	cfg.Endpoint = firstNonEmpty(cfg.Endpoint, env.ADSBExchange.Endpoint, DefaultADSBExchangeEndpoint)

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: bad base_url %q", ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = env.FetchTimeout
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	return &ADSBExchangeClient{
		AircraftCodec: AircraftCodec{Source: adsbExchangeSource},
		DatasetWriter: DatasetWriter{Dataset: env.Store},
		url:           strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Endpoint, "/"),
		host:          base.Host,
		apiKey:        cfg.RapidAPIKey,
		client:        newHTTPClient(env.ADSBExchange.HTTPProxy, timeout),
	}, nil
}

// Fetch returns the per-aircraft objects listed under the response's "ac" key.
// Elements that are not objects are dropped.
func (c *ADSBExchangeClient) Fetch(ctx context.Context) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.host)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload struct {
		AC []any `json:"ac"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return Objects(c.Name(), payload.AC), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
