package speaker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/repositories"
)

// MockIdentifier is a deterministic in-process speaker identification service
// for development. The identified candidate is picked from the audio length.
type MockIdentifier struct {
	logger       *zap.Logger
	profiles     []repositories.SpeakerProfile
	pendingPolls int

	mu         sync.Mutex
	operations map[repositories.OperationHandle]*mockOperation
}

type mockOperation struct {
	status repositories.OperationStatus
	polls  int
}

var (
	_ repositories.SpeakerIdentifier = (*MockIdentifier)(nil)
	_ repositories.ProfileLister     = (*MockIdentifier)(nil)
)

// NewMockIdentifier creates a mock service with the given enrolled profile ids
func NewMockIdentifier(logger *zap.Logger, profileIDs ...string) *MockIdentifier {
	profiles := make([]repositories.SpeakerProfile, 0, len(profileIDs))
	for _, id := range profileIDs {
		profiles = append(profiles, repositories.SpeakerProfile{
			ID:               id,
			EnrollmentStatus: repositories.EnrollmentEnrolled,
			Locale:           "en-us",
		})
	}

	return &MockIdentifier{
		logger:       logger,
		profiles:     profiles,
		pendingPolls: 1,
		operations:   make(map[repositories.OperationHandle]*mockOperation),
	}
}

// SetPendingPolls sets how many polls report running before the result is ready
func (m *MockIdentifier) SetPendingPolls(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingPolls = n
}

// AddProfile registers a profile with an arbitrary enrollment status
func (m *MockIdentifier) AddProfile(profile repositories.SpeakerProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = append(m.profiles, profile)
}

// Submit implements repositories.SpeakerIdentifier
func (m *MockIdentifier) Submit(ctx context.Context, audio io.Reader, candidates []string) (repositories.OperationHandle, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("at least one candidate profile is required")
	}

	n, err := io.Copy(io.Discard, audio)
	if err != nil {
		return "", fmt.Errorf("failed to read audio: %w", err)
	}

	// one slot per candidate plus one for "no match"
	seconds := int(n / 32000)
	identity := ""
	if idx := seconds % (len(candidates) + 1); idx < len(candidates) {
		identity = candidates[idx]
	}

	handle := repositories.OperationHandle("mock://operations/" + uuid.New().String())

	m.mu.Lock()
	m.operations[handle] = &mockOperation{
		status: repositories.OperationStatus{
			State:      repositories.OperationSucceeded,
			Identity:   identity,
			Confidence: 0.5,
		},
	}
	m.mu.Unlock()

	m.logger.Info("Processing mock identification",
		zap.Int64("audioSize", n),
		zap.Int("candidates", len(candidates)),
		zap.String("operation", string(handle)))

	return handle, nil
}

// PollStatus implements repositories.SpeakerIdentifier
func (m *MockIdentifier) PollStatus(ctx context.Context, handle repositories.OperationHandle) (repositories.OperationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.operations[handle]
	if !ok {
		return repositories.OperationStatus{}, fmt.Errorf("operation %s not found", handle)
	}

	op.polls++
	if op.polls <= m.pendingPolls {
		return repositories.OperationStatus{State: repositories.OperationRunning}, nil
	}

	delete(m.operations, handle)
	return op.status, nil
}

// ListProfiles implements repositories.ProfileLister
func (m *MockIdentifier) ListProfiles(ctx context.Context) ([]repositories.SpeakerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]repositories.SpeakerProfile, len(m.profiles))
	copy(out, m.profiles)
	return out, nil
}
