package events

import (
	"time"

	"stacnav/pkg/models"
)

const (
	TypeWelcome = "welcome"
	TypeEntity  = "entity.state"
)

// EntityEvent reports one state change of a session's entity record.
type EntityEvent struct {
	Type      string             `json:"type"`
	SessionID string             `json:"session_id"`
	URI       string             `json:"uri,omitempty"`
	State     models.EntityState `json:"state,omitempty"`
	Error     string             `json:"error,omitempty"`
	At        time.Time          `json:"at"`
}

func FromRecord(sessionID string, rec models.EntityRecord) EntityEvent {
	return EntityEvent{
		Type:      TypeEntity,
		SessionID: sessionID,
		URI:       rec.URI,
		State:     rec.State,
		Error:     rec.ErrorText(),
		At:        time.Now().UTC(),
	}
}
