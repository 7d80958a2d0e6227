package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher retrieves one catalog resource. A returned error means no response
// was obtained at all; HTTP-level failures come back as a Response with OK
// unset.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (*Response, error)
}

type Response struct {
	OK          bool
	StatusCode  int
	ContentType string
	Body        []byte
}

// JSON decodes the body. An empty body decodes to nil.
func (r *Response) JSON() (any, error) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

func (r *Response) Text() string { return string(r.Body) }

// HTTPFetcher fetches over plain HTTP(S).
type HTTPFetcher struct {
	Client       *http.Client
	UserAgent    string
	MaxBodyBytes int64
}

func NewHTTPFetcher(timeout time.Duration, userAgent string, maxBodyBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		UserAgent:    userAgent,
		MaxBodyBytes: maxBodyBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/geo+json;q=0.9, */*;q=0.5")
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if f.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBodyBytes+1)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.MaxBodyBytes > 0 && int64(len(b)) > f.MaxBodyBytes {
		return nil, fmt.Errorf("body too large (exceeds %d bytes)", f.MaxBodyBytes)
	}

	return &Response{
		OK:          resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        b,
	}, nil
}
