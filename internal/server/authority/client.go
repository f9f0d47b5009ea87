// Package authority talks to the remote server that owns grading templates.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/netx"
)

const resolvePath = "resolve_server/resolve/template/"

// Client fetches template content by id.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
}

// NewClient returns a client for the authority at baseURL. timeout bounds a
// single request; zero leaves it to the caller's context.
func NewClient(baseURL string, timeout time.Duration, hc *http.Client) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{base: baseURL, http: hc, timeout: timeout}
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Resolve asks the authority for templateID. A nil payload with a nil error
// means the authority does not have it yet.
func (c *Client) Resolve(ctx context.Context, templateID string) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := netx.GetBody(ctx, c.http, c.base+resolvePath+url.PathEscape(templateID))
	if err != nil {
		return nil, fmt.Errorf("resolve template %q: %w", templateID, err)
	}
	return decode(body)
}

func decode(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if falsy(body) {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedTemplate, err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	// Some authority versions send the template as a JSON-encoded string.
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrMalformedTemplate, err)
		}
		data = bytes.TrimSpace([]byte(inner))
		if len(data) == 0 {
			return nil, nil
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: data string is not JSON", common.ErrMalformedTemplate)
		}
	}
	return json.RawMessage(data), nil
}

func falsy(body []byte) bool {
	switch string(body) {
	case "", "null", "false", "0", `""`, "{}", "[]":
		return true
	}
	return false
}

// PageCount returns how many pages the template declares, or def when it
// declares none.
func PageCount(content json.RawMessage, def int) int {
	var t struct {
		Pages []json.RawMessage `json:"pages"`
	}
	if err := json.Unmarshal(content, &t); err != nil || len(t.Pages) == 0 {
		return def
	}
	return len(t.Pages)
}
