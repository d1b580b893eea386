package state

import (
	"context"
	"time"
)

// State identifies a conversation step.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// DefaultTTL is the idle timeout applied when a store is built without one.
const DefaultTTL = 30 * time.Minute

// Session is the conversation state of one user. It is replaced as a whole on
// every transition, never merged.
type Session struct {
	State     State             `json:"state"`
	Data      map[string]string `json:"data,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Value returns a data field or "" when missing.
func (s Session) Value(key string) string {
	if s.Data == nil {
		return ""
	}
	return s.Data[key]
}

// Store holds at most one session per user id.
type Store interface {
	// Get returns the session and true, or false when none exists or it expired.
	Get(ctx context.Context, userID int64) (Session, bool, error)
	// Set overwrites the session of userID.
	Set(ctx context.Context, userID int64, s Session) error
	// Clear removes the session of userID. Clearing a missing session is not an error.
	Clear(ctx context.Context, userID int64) error
}

func cloneData(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
