package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// Fetcher retrieves a stored artifact by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (status int, body []byte, err error)
}

type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return resp.StatusCode, nil, fmt.Errorf("artifact exceeds %d bytes", f.maxBytes)
	}
	return resp.StatusCode, body, nil
}

// NewGuardedClient refuses private, loopback and link-local destinations,
// including after DNS resolution.
func NewGuardedClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

func NewPlainClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
