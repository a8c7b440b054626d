package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inkwell/hostkit/pkg/manifest"
)

// DefaultClientTimeout bounds a single registry round-trip.
const DefaultClientTimeout = 15 * time.Second

// Client talks to a remote plugin registry over HTTP. It satisfies the
// resolver's provider interfaces, so it can back resolution directly or
// feed a local Catalog via the Syncer.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

// NewClient creates a registry client for baseURL.
func NewClient(baseURL string, timeout time.Duration, log *logrus.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid registry URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}, nil
}

// FetchManifest fetches the latest manifest for id. A 404 from the
// registry means the plugin does not exist and returns (nil, nil).
func (c *Client) FetchManifest(ctx context.Context, id string) (*manifest.Manifest, error) {
	var m manifest.Manifest
	ok, err := c.getJSON(ctx, fmt.Sprintf("/api/v1/plugins/%s/manifest", url.PathEscape(id)), &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// ListVersions fetches all published versions of id, newest first. An
// unknown plugin yields an empty list.
func (c *Client) ListVersions(ctx context.Context, id string) ([]string, error) {
	var payload struct {
		Versions []string `json:"versions"`
	}
	ok, err := c.getJSON(ctx, fmt.Sprintf("/api/v1/plugins/%s/versions", url.PathEscape(id)), &payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return payload.Versions, nil
}

// ListAll fetches the full registry catalog as manifests.
func (c *Client) ListAll(ctx context.Context) ([]*manifest.Manifest, error) {
	var payload struct {
		Plugins []*manifest.Manifest `json:"plugins"`
	}
	ok, err := c.getJSON(ctx, "/api/v1/plugins", &payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("registry catalog endpoint not found")
	}
	return payload.Plugins, nil
}

// getJSON performs a GET and decodes the body into out. It returns
// (false, nil) on a 404 so callers can map that to "not found".
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("registry returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode registry response: %w", err)
	}
	return true, nil
}
