package models

import "time"

// NavigationEntry is one guarded route transition, kept for diagnostics.
type NavigationEntry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	FromPath   string    `json:"from_path"`
	ToPath     string    `json:"to_path"`
	Redirect   string    `json:"redirect,omitempty"`
	Prefetched int       `json:"prefetched"`
	Failed     int       `json:"failed"`
	At         time.Time `json:"at"`
}
