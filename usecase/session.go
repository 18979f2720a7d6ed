package usecase

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/internal/audio"
	"github.com/satriahrh/arunika/speakerid/internal/recognition"
)

// Session is a live recording session. Append and Complete must not be
// called concurrently with each other.
type Session struct {
	service   *IdentificationService
	client    *recognition.Client
	collector *recognition.Collector

	mu     sync.Mutex
	record *entities.RecordingSession

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *Session) ID() string {
	return s.client.ClientID()
}

// Record returns a snapshot of the session bookkeeping
func (s *Session) Record() entities.RecordingSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := *s.record
	record.Candidates = slices.Clone(s.record.Candidates)
	record.SnippetsDispatched = s.client.Dispatched()
	return record
}

// Append feeds audio bytes to the session. A header error closes the session
// as failed and is returned to the caller.
func (s *Session) Append(p []byte) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	s.mu.Lock()
	s.record.Touch(len(p))
	s.mu.Unlock()
	s.service.observer.AudioReceived(len(p))

	err := s.client.Append(p)
	if err != nil && audio.IsFatal(err) {
		s.client.Dispose()
		s.finish(entities.SessionStatusFailed, err)
	}
	return err
}

// Complete ends the audio stream, waits until every dispatched snippet has an
// outcome and closes the session
func (s *Session) Complete(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	if err := s.client.Complete(); err != nil {
		s.client.Dispose()
		s.finish(entities.SessionStatusFailed, err)
		return err
	}
	if err := s.client.WaitContext(ctx); err != nil {
		return err
	}

	s.finish(entities.SessionStatusCompleted, nil)
	return nil
}

// Dispose stops dispatching, waits for in-flight identifications and closes
// the session. Pending snippets are dropped.
func (s *Session) Dispose() {
	s.client.Dispose()
	s.finish(entities.SessionStatusDisposed, nil)
}

// Done is closed once the session reached a terminal status
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Outcomes returns the outcomes received so far ordered by request id
func (s *Session) Outcomes() []entities.RecognitionOutcome {
	return s.collector.Sorted()
}

// Result returns the session snapshot with its sorted outcomes and turns
func (s *Session) Result() *SessionResult {
	return &SessionResult{
		Session:  s.Record(),
		Outcomes: s.collector.Sorted(),
		Turns:    s.collector.Turns(),
	}
}

// Stats exposes the window buffer counters
func (s *Session) Stats() audio.Stats {
	return s.client.Stats()
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) isIdle(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.IsIdle(now, timeout)
}

func (s *Session) finish(status entities.SessionStatus, err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.record.Close(status, err)
		s.mu.Unlock()

		close(s.closed)
		s.service.release(s)
	})
}
