package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/domain/repositories"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository keeps recording sessions in memory
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]entities.RecordingSession
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]entities.RecordingSession)}
}

// Save implements repositories.SessionRepository
func (m *SessionRepository) Save(ctx context.Context, session *entities.RecordingSession) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	stored := *session
	stored.Candidates = slices.Clone(session.Candidates)
	if session.ClosedAt != nil {
		closedAt := *session.ClosedAt
		stored.ClosedAt = &closedAt
	}

	m.mu.Lock()
	m.sessions[session.ID] = stored
	m.mu.Unlock()
	return nil
}

// GetByID implements repositories.SessionRepository
func (m *SessionRepository) GetByID(ctx context.Context, id string) (*entities.RecordingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// OutcomeRepository keeps recognition outcomes in memory, keyed by client and request id
type OutcomeRepository struct {
	mu       sync.RWMutex
	outcomes map[string]map[int64]entities.RecognitionOutcome
}

var _ repositories.OutcomeRepository = (*OutcomeRepository)(nil)

func NewOutcomeRepository() *OutcomeRepository {
	return &OutcomeRepository{outcomes: make(map[string]map[int64]entities.RecognitionOutcome)}
}

// Save implements repositories.OutcomeRepository. A second save of the same
// request replaces the first.
func (m *OutcomeRepository) Save(ctx context.Context, outcome entities.RecognitionOutcome) error {
	if outcome.ClientID == "" {
		return errors.New("client ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byRequest, ok := m.outcomes[outcome.ClientID]
	if !ok {
		byRequest = make(map[int64]entities.RecognitionOutcome)
		m.outcomes[outcome.ClientID] = byRequest
	}
	byRequest[outcome.RequestID] = outcome
	return nil
}

// ListByClientID implements repositories.OutcomeRepository
func (m *OutcomeRepository) ListByClientID(ctx context.Context, clientID string) ([]entities.RecognitionOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.RecognitionOutcome, 0, len(m.outcomes[clientID]))
	for _, o := range m.outcomes[clientID] {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RequestID < result[j].RequestID })
	return result, nil
}
