// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	catalogRegisterPath   = "/modules/register"
	defaultCatalogTimeout = 10 * time.Second
)

// CatalogClient announces registered modules to an external catalog service.
type CatalogClient struct {
	endpoint string
	client   *http.Client
}

// NewCatalogClient returns a client posting to <baseURL>/modules/register.
// A nil httpClient uses a client with a 10 second timeout.
func NewCatalogClient(baseURL string, httpClient *http.Client) *CatalogClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultCatalogTimeout}
	}
	return &CatalogClient{
		endpoint: strings.TrimRight(baseURL, "/") + catalogRegisterPath,
		client:   httpClient,
	}
}

// Endpoint returns the URL modules are posted to.
func (c *CatalogClient) Endpoint() string { return c.endpoint }

// Notify posts mod as JSON. Only 200 and 201 count as success.
func (c *CatalogClient) Notify(ctx context.Context, mod InstalledModule) (err error) {
	body, err := json.Marshal(mod)
	if err != nil {
		return fmt.Errorf("encode module: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to catalog: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	default:
		return fmt.Errorf("catalog responded %s", resp.Status)
	}
}
