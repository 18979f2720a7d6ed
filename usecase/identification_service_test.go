package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/arunika/speakerid/adapters/memory"
	"github.com/satriahrh/arunika/speakerid/adapters/speaker"
	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/domain/repositories"
	"github.com/satriahrh/arunika/speakerid/internal/audio"
	"github.com/satriahrh/arunika/speakerid/internal/recognition"
)

type countingSessionObserver struct {
	mu      sync.Mutex
	started int
	closed  map[entities.SessionStatus]int
	bytes   int
}

func (o *countingSessionObserver) SessionStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingSessionObserver) SessionClosed(status entities.SessionStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed == nil {
		o.closed = make(map[entities.SessionStatus]int)
	}
	o.closed[status]++
}

func (o *countingSessionObserver) AudioReceived(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bytes += n
}

type fixture struct {
	service  *IdentificationService
	mock     *speaker.MockIdentifier
	sessions *memory.SessionRepository
	outcomes *memory.OutcomeRepository
	observer *countingSessionObserver
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	mock := speaker.NewMockIdentifier(logger, "alice", "bob")
	identifier := recognition.NewIdentifier(mock, logger, recognition.WithPollInterval(time.Millisecond))
	factory := recognition.NewFactory(identifier, logger, recognition.WithDispatchInterval(time.Millisecond))

	f := &fixture{
		mock:     mock,
		sessions: memory.NewSessionRepository(),
		outcomes: memory.NewOutcomeRepository(),
		observer: &countingSessionObserver{},
	}
	opts = append([]ServiceOption{
		WithProfileLister(mock),
		WithSessionRepository(f.sessions),
		WithOutcomeRepository(f.outcomes),
		WithSessionObserver(f.observer),
	}, opts...)
	f.service = NewIdentificationService(factory, logger, opts...)
	return f
}

func rawRequest(candidates ...string) StartRequest {
	return StartRequest{
		ClientID:   "kiosk-1",
		Format:     entities.DefaultFormat(entities.ContainerRaw),
		WindowSize: 2,
		StepSize:   1,
		Candidates: candidates,
	}
}

func TestStartSessionResolvesEnrolledProfiles(t *testing.T) {
	f := newFixture(t)
	f.mock.AddProfile(repositories.SpeakerProfile{ID: "carol", EnrollmentStatus: repositories.EnrollmentTraining})

	session, err := f.service.StartSession(context.Background(), rawRequest())
	require.NoError(t, err)
	defer session.Dispose()

	record := session.Record()
	assert.Equal(t, []string{"alice", "bob"}, record.Candidates)
	assert.Equal(t, "kiosk-1", record.ClientID)
	assert.Equal(t, entities.SessionStatusActive, record.Status)
	assert.Equal(t, 1, f.service.ActiveSessions())

	stored, err := f.sessions.GetByID(context.Background(), session.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.SessionStatusActive, stored.Status)
}

func TestStartSessionValidation(t *testing.T) {
	ctx := context.Background()

	noProfiles := newFixture(t, WithProfileLister(speaker.NewMockIdentifier(zaptest.NewLogger(t))))
	_, err := noProfiles.service.StartSession(ctx, rawRequest())
	assert.ErrorIs(t, err, recognition.ErrNoCandidates)
	assert.ErrorIs(t, err, ErrNoProfiles)

	f := newFixture(t)
	bad := rawRequest("alice")
	bad.WindowSize = 0
	_, err = f.service.StartSession(ctx, bad)
	assert.ErrorIs(t, err, audio.ErrInvalidConfiguration)

	anonymous := rawRequest("alice")
	anonymous.ClientID = ""
	_, err = f.service.StartSession(ctx, anonymous)
	assert.Error(t, err)

	assert.Equal(t, 0, f.service.ActiveSessions())
}

func TestSessionCompleteCollectsOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var extra []entities.RecognitionOutcome
	var mu sync.Mutex
	req := rawRequest("alice", "bob")
	req.Sink = recognition.SinkFunc(func(o entities.RecognitionOutcome) {
		mu.Lock()
		extra = append(extra, o)
		mu.Unlock()
	})

	session, err := f.service.StartSession(ctx, req)
	require.NoError(t, err)

	require.NoError(t, session.Append(make([]byte, 4*32000)))
	require.NoError(t, session.Complete(ctx))

	select {
	case <-session.Done():
	default:
		t.Fatal("session not closed after Complete")
	}

	result, err := f.service.Outcomes(ctx, session.ID())
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 4)
	for i, o := range result.Outcomes {
		assert.Equal(t, int64(i+1), o.RequestID)
		assert.Equal(t, session.ID(), o.ClientID)
	}
	assert.Equal(t, entities.SessionStatusCompleted, result.Session.Status)
	assert.Equal(t, int64(4*32000), result.Session.BytesReceived)
	assert.Equal(t, int64(4), result.Session.SnippetsDispatched)
	assert.NotEmpty(t, result.Turns)

	mu.Lock()
	assert.Len(t, extra, 4)
	mu.Unlock()

	persisted, err := f.outcomes.ListByClientID(ctx, session.ID())
	require.NoError(t, err)
	assert.Len(t, persisted, 4)

	assert.Equal(t, 0, f.service.ActiveSessions())
	assert.ErrorIs(t, session.Append([]byte{1}), ErrSessionClosed)
	assert.ErrorIs(t, session.Complete(ctx), ErrSessionClosed)

	f.observer.mu.Lock()
	assert.Equal(t, 1, f.observer.started)
	assert.Equal(t, 1, f.observer.closed[entities.SessionStatusCompleted])
	assert.Equal(t, 4*32000, f.observer.bytes)
	f.observer.mu.Unlock()
}

func TestSessionHeaderErrorFailsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := rawRequest("alice")
	req.Format = entities.DefaultFormat(entities.ContainerWav)
	session, err := f.service.StartSession(ctx, req)
	require.NoError(t, err)

	err = session.Append(make([]byte, entities.WavMaxHeaderSize))
	assert.ErrorIs(t, err, audio.ErrMalformedHeader)

	record, err := f.service.SessionStatus(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.SessionStatusFailed, record.Status)
	assert.NotEmpty(t, record.Error)
}

func TestExpireIdle(t *testing.T) {
	f := newFixture(t, WithIdleTimeout(time.Minute))

	idle, err := f.service.StartSession(context.Background(), rawRequest("alice"))
	require.NoError(t, err)
	busy, err := f.service.StartSession(context.Background(), rawRequest("alice"))
	require.NoError(t, err)
	defer busy.Dispose()

	assert.Equal(t, 0, f.service.ExpireIdle(time.Now()))

	idle.mu.Lock()
	idle.record.LastActiveAt = time.Now().Add(-2 * time.Minute)
	idle.mu.Unlock()

	assert.Equal(t, 1, f.service.ExpireIdle(time.Now()))
	assert.Equal(t, 1, f.service.ActiveSessions())

	record, err := f.service.SessionStatus(context.Background(), idle.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.SessionStatusDisposed, record.Status)
}

func TestShutdownDisposesSessions(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		session, err := f.service.StartSession(context.Background(), rawRequest("alice"))
		require.NoError(t, err)
		require.NoError(t, session.Append(make([]byte, 32000)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.service.Shutdown(ctx))
	assert.Equal(t, 0, f.service.ActiveSessions())

	f.observer.mu.Lock()
	assert.Equal(t, 3, f.observer.closed[entities.SessionStatusDisposed])
	f.observer.mu.Unlock()
}

func TestOutcomesFallsBackToRepositories(t *testing.T) {
	f := newFixture(t, WithResultTTL(time.Millisecond))
	ctx := context.Background()

	session, err := f.service.StartSession(ctx, rawRequest("alice"))
	require.NoError(t, err)
	require.NoError(t, session.Append(make([]byte, 2*32000)))
	require.NoError(t, session.Complete(ctx))

	// let the cached result expire
	time.Sleep(5 * time.Millisecond)

	result, err := f.service.Outcomes(ctx, session.ID())
	require.NoError(t, err)
	assert.Len(t, result.Outcomes, 2)
	assert.Equal(t, entities.SessionStatusCompleted, result.Session.Status)

	_, err = f.service.Outcomes(ctx, "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestListProfilesWithoutLister(t *testing.T) {
	logger := zaptest.NewLogger(t)
	factory := recognition.NewFactory(recognition.NewIdentifier(speaker.NewMockIdentifier(logger), logger), logger)
	service := NewIdentificationService(factory, logger)

	profiles, err := service.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)

	_, err = service.StartSession(context.Background(), rawRequest())
	assert.ErrorIs(t, err, recognition.ErrNoCandidates)
}
