package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultFetchTimeout = 15 * time.Second

// ManifestClient fetches the published update manifest.
type ManifestClient interface {
	FetchManifest(ctx context.Context) (*Manifest, error)
}

// HTTPManifestClient fetches the manifest over HTTP. Every request carries a
// cache-busting query parameter so intermediate caches never serve a stale
// manifest.
type HTTPManifestClient struct {
	endpoint string
	client   *http.Client
	clock    func() time.Time
}

// NewHTTPManifestClient creates a client for the given manifest endpoint.
func NewHTTPManifestClient(endpoint string, httpClient *http.Client) (*HTTPManifestClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("manifest endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid manifest endpoint: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &HTTPManifestClient{
		endpoint: endpoint,
		client:   httpClient,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// FetchManifest retrieves and decodes the manifest. Non-2xx responses and
// malformed bodies are returned as errors the caller treats as recoverable.
func (c *HTTPManifestClient) FetchManifest(ctx context.Context) (*Manifest, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest endpoint: %w", err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.clock().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("manifest fetch returned status %d", resp.StatusCode)
	}

	var manifest Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("malformed manifest: %w", err)
	}
	if manifest.Version == "" {
		return nil, fmt.Errorf("malformed manifest: missing version")
	}

	return &manifest, nil
}
