package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Request is one queued turn: a player action awaiting processing for a
// session. Requests are processed fire-and-forget; the caller polls the
// session feed for results.
type Request struct {
	RequestID  string    `json:"request_id"`
	SessionID  uuid.UUID `json:"session_id"`
	Action     string    `json:"action"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewRequest creates a turn request with a fresh request ID.
func NewRequest(sessionID uuid.UUID, action string) *Request {
	return &Request{
		RequestID:  uuid.NewString(),
		SessionID:  sessionID,
		Action:     action,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse turn request: %w", err)
	}
	if req.SessionID == uuid.Nil {
		return nil, fmt.Errorf("turn request missing session id")
	}
	return &req, nil
}
