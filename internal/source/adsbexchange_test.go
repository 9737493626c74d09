package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skytrace-backend/config"
)

func newADSBExchangeTestClient(t *testing.T, handler http.HandlerFunc, cfg map[string]any) *ADSBExchangeClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if cfg == nil {
		cfg = map[string]any{}
	}
	cfg["base_url"] = server.URL
	c, err := NewADSBExchangeClient(cfg, Env{ADSBExchange: config.ADSBExchangeConfig{RapidAPIKey: "test-key"}})
	require.NoError(t, err)
	return c.(*ADSBExchangeClient)
}

func TestADSBExchangeClient_Fetch(t *testing.T) {
	var gotPath, gotKey, gotHost, gotAgent string
	c := newADSBExchangeTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-rapidapi-key")
		gotHost = r.Header.Get("x-rapidapi-host")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ac":[{"hex":"ae1460","type":"adsb_icao","alt_baro":"ground"},{"hex":"ae04c5","type":"mlat","lat":38.1,"lon":-121.9}],"msg":"No error","now":1700000000000,"total":2}`))
	}, nil)

	raws, err := c.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "ae1460", raws[0]["hex"])
	assert.Equal(t, "ground", raws[0]["alt_baro"])
	assert.Equal(t, 38.1, raws[1]["lat"])

	assert.Equal(t, DefaultADSBExchangeEndpoint, gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.True(t, strings.HasPrefix(gotHost, "127.0.0.1:"), gotHost)
	assert.Equal(t, userAgent, gotAgent)
}

func TestADSBExchangeClient_FetchSkipsNonObjects(t *testing.T) {
	c := newADSBExchangeTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ac":[{"hex":"ae1460","type":"adsb_icao","lat":37.7749,"lon":-122.4194},"junk",42,["ae1461"],null]}`))
	}, nil)

	raws, err := c.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "ae1460", raws[0]["hex"])

	records := Normalize(c, raws)
	require.Len(t, records, 1)
	assert.Equal(t, "ae1460", records[0].Hex)
}

func TestADSBExchangeClient_FetchCustomEndpoint(t *testing.T) {
	var gotPath string
	c := newADSBExchangeTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}, map[string]any{"endpoint": "v2/lat/37.77/lon/-122.41/dist/25/"})

	raws, err := c.Fetch(context.Background())

	require.NoError(t, err)
	assert.Empty(t, raws)
	assert.Equal(t, "/v2/lat/37.77/lon/-122.41/dist/25/", gotPath)
}

func TestADSBExchangeClient_FetchErrors(t *testing.T) {
	testCases := []struct {
		name          string
		handler       http.HandlerFunc
		wantStatus    int
		wantTransient bool
		errContains   string
	}{
		{
			name: "Server error is transient",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte("upstream unavailable"))
			},
			wantStatus:    http.StatusBadGateway,
			wantTransient: true,
			errContains:   "upstream unavailable",
		},
		{
			name: "Rate limited is transient",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantStatus:    http.StatusTooManyRequests,
			wantTransient: true,
		},
		{
			name: "Forbidden is not transient",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"message":"You are not subscribed to this API."}`))
			},
			wantStatus:  http.StatusForbidden,
			errContains: "not subscribed",
		},
		{
			name: "Malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"ac": [`))
			},
			errContains: "failed to decode response",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newADSBExchangeTestClient(t, tc.handler, nil)

			_, err := c.Fetch(context.Background())

			require.Error(t, err)
			if tc.errContains != "" {
				assert.Contains(t, err.Error(), tc.errContains)
			}
			var statusErr *HTTPStatusError
			if tc.wantStatus == 0 {
				assert.NotErrorAs(t, err, &statusErr)
				return
			}
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tc.wantStatus, statusErr.StatusCode)
			assert.Equal(t, tc.wantTransient, statusErr.Transient())
		})
	}
}

func TestADSBExchangeClient_FetchHonoursContext(t *testing.T) {
	c := newADSBExchangeTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewADSBExchangeClient(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     map[string]any
		env     Env
		wantErr bool
		wantURL string
	}{
		{
			name:    "Missing key",
			cfg:     map[string]any{},
			wantErr: true,
		},
		{
			name:    "Key from env with defaults",
			env:     Env{ADSBExchange: config.ADSBExchangeConfig{RapidAPIKey: "k"}},
			wantURL: "https://adsbexchange-com1.p.rapidapi.com/v2/mil/",
		},
		{
			name: "Job config wins over env",
			cfg:  map[string]any{"rapidapi_key": "job", "base_url": "https://feed.example.com/", "endpoint": "/v2/hex/ae1460/"},
			env: Env{ADSBExchange: config.ADSBExchangeConfig{
				RapidAPIKey: "env", BaseURL: "https://other.example.com", Endpoint: "/v2/mil/",
			}},
			wantURL: "https://feed.example.com/v2/hex/ae1460/",
		},
		{
			name:    "Bad base url",
			cfg:     map[string]any{"rapidapi_key": "k", "base_url": "not a url"},
			wantErr: true,
		},
		{
			name:    "Negative timeout",
			cfg:     map[string]any{"rapidapi_key": "k", "timeout": -1},
			wantErr: true,
		},
		{
			name:    "Wrong field type",
			cfg:     map[string]any{"rapidapi_key": 42},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewADSBExchangeClient(tc.cfg, tc.env)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantURL, c.(*ADSBExchangeClient).url)
			assert.Equal(t, adsbExchangeSource, c.Name())
		})
	}
}

func TestNewADSBExchangeClient_Timeout(t *testing.T) {
	key := map[string]any{"rapidapi_key": "k"}

	c, err := NewADSBExchangeClient(key, Env{})
	require.NoError(t, err)
	assert.Equal(t, DefaultFetchTimeout, c.(*ADSBExchangeClient).client.Timeout)

	c, err = NewADSBExchangeClient(key, Env{FetchTimeout: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, c.(*ADSBExchangeClient).client.Timeout)

	c, err = NewADSBExchangeClient(map[string]any{"rapidapi_key": "k", "timeout": 5}, Env{FetchTimeout: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.(*ADSBExchangeClient).client.Timeout)
}
