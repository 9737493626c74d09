package source

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultFetchTimeout bounds a fetch when neither the job nor the scheduler sets one.
const DefaultFetchTimeout = 30 * time.Second

func newHTTPClient(proxy string, timeout time.Duration) *http.Client {
	var transport http.RoundTripper = &http.Transport{}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			slog.Warn("invalid proxy URL, fetching without a proxy", "proxy", proxy, "error", err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
