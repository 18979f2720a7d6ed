package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the status of a recording session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusDisposed  SessionStatus = "disposed"
	SessionStatusFailed    SessionStatus = "failed"
)

// RecordingSession tracks one audio stream being identified
type RecordingSession struct {
	ID                 string           `json:"id" bson:"_id"`
	ClientID           string           `json:"client_id" bson:"client_id"`
	Format             FormatDescriptor `json:"format" bson:"format"`
	WindowSize         int              `json:"window_size" bson:"window_size"`
	StepSize           int              `json:"step_size" bson:"step_size"`
	Candidates         []string         `json:"candidates" bson:"candidates"`
	Status             SessionStatus    `json:"status" bson:"status"`
	CreatedAt          time.Time        `json:"created_at" bson:"created_at"`
	LastActiveAt       time.Time        `json:"last_active_at" bson:"last_active_at"`
	ClosedAt           *time.Time       `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
	BytesReceived      int64            `json:"bytes_received" bson:"bytes_received"`
	SnippetsDispatched int64            `json:"snippets_dispatched" bson:"snippets_dispatched"`
	Error              string           `json:"error,omitempty" bson:"error,omitempty"`
}

// NewRecordingSession creates a new active session for a client
func NewRecordingSession(clientID string, format FormatDescriptor, windowSize, stepSize int, candidates []string) *RecordingSession {
	now := time.Now()
	return &RecordingSession{
		ID:           uuid.New().String(),
		ClientID:     clientID,
		Format:       format,
		WindowSize:   windowSize,
		StepSize:     stepSize,
		Candidates:   candidates,
		Status:       SessionStatusActive,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Touch records activity on the session
func (s *RecordingSession) Touch(bytes int) {
	s.LastActiveAt = time.Now()
	s.BytesReceived += int64(bytes)
}

// IsIdle reports whether an active session saw no audio for longer than timeout
func (s *RecordingSession) IsIdle(now time.Time, timeout time.Duration) bool {
	return s.Status == SessionStatusActive && now.Sub(s.LastActiveAt) > timeout
}

// IsClosed reports whether the session no longer accepts audio
func (s *RecordingSession) IsClosed() bool {
	return s.Status != SessionStatusActive
}

// Close marks the session with a terminal status
func (s *RecordingSession) Close(status SessionStatus, err error) {
	now := time.Now()
	s.Status = status
	s.ClosedAt = &now
	if err != nil {
		s.Error = err.Error()
	}
}

// Validate validates the session data
func (s *RecordingSession) Validate() error {
	if s.ClientID == "" {
		return errors.New("client_id is required")
	}
	if s.WindowSize <= 0 || s.StepSize <= 0 {
		return errors.New("window and step sizes must be positive")
	}

	switch s.Status {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusDisposed, SessionStatusFailed:
	default:
		return errors.New("invalid session status")
	}

	return s.Format.Validate()
}
