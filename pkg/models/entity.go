package models

import "time"

// EntityState is the load state of one catalog resource. A URI that was never
// requested has no record at all.
type EntityState string

const (
	StateUnrequested EntityState = "unrequested"
	StateLoading     EntityState = "loading"
	StateLoaded      EntityState = "loaded"
	StateFailed      EntityState = "failed"
)

// Terminal reports whether the state is final for the session.
func (s EntityState) Terminal() bool {
	return s == StateLoaded || s == StateFailed
}

// Document is a parsed catalog, collection or item JSON object.
type Document map[string]any

// String returns the string value of key, or "" when missing or not a string.
func (d Document) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

// Has reports whether key is present with a non-null value.
func (d Document) Has(key string) bool {
	if d == nil {
		return false
	}
	v, ok := d[key]
	return ok && v != nil
}

// EntityRecord is the cached state of one URI.
//
// Document and the fetch metadata are set only when State is loaded; Err only
// when it is failed.
type EntityRecord struct {
	URI         string        `json:"uri"`
	State       EntityState   `json:"state"`
	Document    Document      `json:"document,omitempty"`
	StatusCode  int           `json:"status_code,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	FetchedAt   time.Time     `json:"fetched_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Err         error         `json:"-"`
}

// ErrorText is the message of Err, or "".
func (r EntityRecord) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
