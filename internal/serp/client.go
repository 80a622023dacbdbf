package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/magpie/pkg/httpclient"
)

const defaultTimeout = 30 * time.Second

// vendorClient is the shared HTTP plumbing for the JSON-API vendors. Each
// vendor differs only in endpoint, parameters, and response shape; the status
// code taxonomy is common.
type vendorClient struct {
	name   string
	client *httpclient.Client
}

func newVendorClient(name string, timeout time.Duration) (*vendorClient, error) {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	c, err := httpclient.New(httpclient.Config{
		Timeout:      timeout,
		MaxRedirects: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &vendorClient{name: name, client: c}, nil
}

// getJSON issues a GET with the given query parameters and decodes the JSON
// body into v. HTTP statuses are mapped onto the vendor error taxonomy:
// 401/403 become AuthError, 429 becomes RateLimitError, anything else that is
// not a 2xx becomes NetworkError.
func (c *vendorClient) getJSON(ctx context.Context, endpoint string, params url.Values, header http.Header, v any) error {
	u := endpoint
	if len(params) > 0 {
		u = endpoint + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &NetworkError{Vendor: c.name, Err: err}
	}
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return &NetworkError{Vendor: c.name, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Vendor: c.name, Message: readErrorMessage(resp.Body)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Vendor: c.name}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &NetworkError{Vendor: c.name, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &NetworkError{Vendor: c.name, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

// readErrorMessage pulls a human-readable message out of a vendor error body.
// Vendors disagree on the shape, so try the common fields and fall back to the
// raw text, truncated.
func readErrorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return "no error detail"
	}

	var wrapped struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Error) > 0 {
		// error may be a string or an object with a message field
		var msg string
		if json.Unmarshal(wrapped.Error, &msg) == nil && msg != "" {
			return msg
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(wrapped.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}

	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
