package entity

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrEmptyResponse is stored when a successful response carries no
	// usable body. Browsers report cross-origin rejections this way.
	ErrEmptyResponse = errors.New("can't load data, likely a CORS issue")

	// ErrNetworkOrParse wraps transport, read and decode failures.
	ErrNetworkOrParse = errors.New("network or parse failure")
)

// HTTPError is stored for non-2xx responses. Its message is the response body.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if msg := strings.TrimSpace(e.Body); msg != "" {
		return msg
	}
	return http.StatusText(e.StatusCode)
}

// FailureKind names the failure class of a stored error, for views and metrics.
func FailureKind(err error) string {
	var he *HTTPError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.As(err, &he):
		return "http_error"
	default:
		return "network_or_parse"
	}
}
