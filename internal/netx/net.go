// Package netx wraps the outbound HTTP calls made by the service.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxBodySize caps how much of a response body is read into memory.
const maxBodySize = 16 << 20

// GetBody issues a GET to url and returns the response body. Any non-2xx
// status is returned as an error carrying the status and body.
func GetBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request failed: %s; body: %s", resp.Status, string(b))
	}
	return b, nil
}
