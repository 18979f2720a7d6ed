package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/domain/repositories"
	"github.com/satriahrh/arunika/speakerid/internal/recognition"
)

const (
	DefaultIdleTimeout = 5 * time.Minute
	DefaultResultTTL   = 30 * time.Minute

	persistTimeout = 5 * time.Second
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrNoProfiles      = errors.New("no enrolled speaker profiles")
)

// SessionObserver is notified about session lifecycle, typically to export metrics
type SessionObserver interface {
	SessionStarted()
	SessionClosed(status entities.SessionStatus)
	AudioReceived(n int)
}

type nopSessionObserver struct{}

func (nopSessionObserver) SessionStarted()                      {}
func (nopSessionObserver) SessionClosed(entities.SessionStatus) {}
func (nopSessionObserver) AudioReceived(int)                    {}

// StartRequest describes a new recording session
type StartRequest struct {
	// ClientID is the authenticated caller owning the session
	ClientID   string
	Format     entities.FormatDescriptor
	WindowSize int
	StepSize   int
	// Candidates defaults to every enrolled profile when empty
	Candidates []string
	// Sink additionally receives the session's outcomes, may be nil
	Sink recognition.Sink
}

// SessionResult is the outcome history of one session
type SessionResult struct {
	Session  entities.RecordingSession     `json:"session"`
	Outcomes []entities.RecognitionOutcome `json:"outcomes"`
	Turns    []entities.SpeakerTurn        `json:"turns"`
}

// ServiceOption configures the IdentificationService
type ServiceOption func(*IdentificationService)

func WithProfileLister(p repositories.ProfileLister) ServiceOption {
	return func(s *IdentificationService) { s.profiles = p }
}

func WithSessionRepository(r repositories.SessionRepository) ServiceOption {
	return func(s *IdentificationService) { s.sessionRepo = r }
}

func WithOutcomeRepository(r repositories.OutcomeRepository) ServiceOption {
	return func(s *IdentificationService) { s.outcomeRepo = r }
}

// WithSinks adds sinks receiving the outcomes of every session
func WithSinks(sinks ...recognition.Sink) ServiceOption {
	return func(s *IdentificationService) { s.sinks = append(s.sinks, sinks...) }
}

func WithSessionObserver(o SessionObserver) ServiceOption {
	return func(s *IdentificationService) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithIdleTimeout(d time.Duration) ServiceOption {
	return func(s *IdentificationService) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithResultTTL sets how long outcomes of closed sessions stay queryable in memory
func WithResultTTL(d time.Duration) ServiceOption {
	return func(s *IdentificationService) {
		if d > 0 {
			s.resultTTL = d
		}
	}
}

// IdentificationService manages recording sessions and their recognition clients
type IdentificationService struct {
	factory     *recognition.Factory
	profiles    repositories.ProfileLister
	sessionRepo repositories.SessionRepository
	outcomeRepo repositories.OutcomeRepository
	sinks       []recognition.Sink
	observer    SessionObserver
	logger      *zap.Logger
	idleTimeout time.Duration
	resultTTL   time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	results  *cache.Cache
}

// NewIdentificationService creates a new identification service
func NewIdentificationService(factory *recognition.Factory, logger *zap.Logger, opts ...ServiceOption) *IdentificationService {
	s := &IdentificationService{
		factory:     factory,
		observer:    nopSessionObserver{},
		logger:      logger,
		idleTimeout: DefaultIdleTimeout,
		resultTTL:   DefaultResultTTL,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.results = cache.New(s.resultTTL, 2*s.resultTTL)
	return s
}

// ListProfiles returns the profiles known to the identification service
func (s *IdentificationService) ListProfiles(ctx context.Context) ([]repositories.SpeakerProfile, error) {
	if s.profiles == nil {
		return []repositories.SpeakerProfile{}, nil
	}
	return s.profiles.ListProfiles(ctx)
}

// resolveCandidates returns explicit candidates or every enrolled profile
func (s *IdentificationService) resolveCandidates(ctx context.Context, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	if s.profiles == nil {
		return nil, recognition.ErrNoCandidates
	}

	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list speaker profiles: %w", err)
	}
	ids := repositories.EnrolledProfileIDs(profiles)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %w", recognition.ErrNoCandidates, ErrNoProfiles)
	}
	return ids, nil
}

// StartSession opens a recording session and starts its recognition client
func (s *IdentificationService) StartSession(ctx context.Context, req StartRequest) (*Session, error) {
	if req.ClientID == "" {
		return nil, errors.New("client ID is required")
	}

	candidates, err := s.resolveCandidates(ctx, req.Candidates)
	if err != nil {
		return nil, err
	}

	record := entities.NewRecordingSession(req.ClientID, req.Format, req.WindowSize, req.StepSize, candidates)
	collector := recognition.NewCollector()

	sinks := []recognition.Sink{collector, recognition.NewLogSink(s.logger)}
	if s.outcomeRepo != nil {
		sinks = append(sinks, recognition.SinkFunc(s.persistOutcome))
	}
	sinks = append(sinks, s.sinks...)
	if req.Sink != nil {
		sinks = append(sinks, req.Sink)
	}

	// outcomes are keyed by the session id so every session has its own request sequence
	client, err := s.factory.CreateClient(record.ID, candidates, req.WindowSize, req.StepSize, req.Format,
		recognition.NewMultiSink(s.logger, sinks...))
	if err != nil {
		return nil, err
	}

	session := &Session{
		service:   s,
		client:    client,
		collector: collector,
		record:    record,
		closed:    make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[record.ID] = session
	s.mu.Unlock()

	s.observer.SessionStarted()
	s.persistSession(record)

	s.logger.Info("Recording session started",
		zap.String("sessionID", record.ID),
		zap.String("clientID", req.ClientID),
		zap.Strings("candidates", candidates))

	return session, nil
}

// Session returns a live session
func (s *IdentificationService) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// ActiveSessions returns the number of live sessions
func (s *IdentificationService) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SessionStatus returns the bookkeeping of a live, recently closed or stored session
func (s *IdentificationService) SessionStatus(ctx context.Context, id string) (*entities.RecordingSession, error) {
	if session, ok := s.Session(id); ok {
		record := session.Record()
		return &record, nil
	}
	if cached, ok := s.results.Get(id); ok {
		record := cached.(*SessionResult).Session
		return &record, nil
	}
	if s.sessionRepo != nil {
		record, err := s.sessionRepo.GetByID(ctx, id)
		if err == nil {
			return record, nil
		}
		s.logger.Debug("Session not found in repository", zap.String("sessionID", id), zap.Error(err))
	}
	return nil, ErrSessionNotFound
}

// Outcomes returns a session's outcomes sorted by request id with its speaker turns
func (s *IdentificationService) Outcomes(ctx context.Context, id string) (*SessionResult, error) {
	if session, ok := s.Session(id); ok {
		return session.Result(), nil
	}
	if cached, ok := s.results.Get(id); ok {
		return cached.(*SessionResult), nil
	}

	record, err := s.SessionStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &SessionResult{Session: *record, Outcomes: []entities.RecognitionOutcome{}}
	if s.outcomeRepo != nil {
		outcomes, err := s.outcomeRepo.ListByClientID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load outcomes: %w", err)
		}
		result.Outcomes = outcomes
	}
	result.Turns = entities.GroupTurns(result.Outcomes)
	return result, nil
}

// ExpireIdle disposes of sessions that received no audio for longer than the
// idle timeout and returns how many were disposed
func (s *IdentificationService) ExpireIdle(now time.Time) int {
	s.mu.RLock()
	var idle []*Session
	for _, session := range s.sessions {
		if session.isIdle(now, s.idleTimeout) {
			idle = append(idle, session)
		}
	}
	s.mu.RUnlock()

	for _, session := range idle {
		s.logger.Info("Disposing idle session", zap.String("sessionID", session.ID()))
		session.Dispose()
	}
	return len(idle)
}

// Shutdown disposes of every live session, waiting until they drained or ctx is done
func (s *IdentificationService) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	live := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		live = append(live, session)
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, session := range live {
			wg.Add(1)
			go func(session *Session) {
				defer wg.Done()
				session.Dispose()
			}(session)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All sessions disposed", zap.Int("count", len(live)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted with sessions still draining: %w", ctx.Err())
	}
}

// release moves a closed session out of the live set into the result cache
func (s *IdentificationService) release(session *Session) {
	result := session.Result()

	s.mu.Lock()
	delete(s.sessions, result.Session.ID)
	s.mu.Unlock()

	s.results.Set(result.Session.ID, result, cache.DefaultExpiration)
	s.observer.SessionClosed(result.Session.Status)
	s.persistSession(&result.Session)

	s.logger.Info("Recording session closed",
		zap.String("sessionID", result.Session.ID),
		zap.String("status", string(result.Session.Status)),
		zap.Int("outcomes", len(result.Outcomes)),
		zap.Int("turns", len(result.Turns)))
}

func (s *IdentificationService) persistSession(record *entities.RecordingSession) {
	if s.sessionRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.sessionRepo.Save(ctx, record); err != nil {
		s.logger.Error("Failed to persist session", zap.String("sessionID", record.ID), zap.Error(err))
	}
}

func (s *IdentificationService) persistOutcome(outcome entities.RecognitionOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.outcomeRepo.Save(ctx, outcome); err != nil {
		s.logger.Error("Failed to persist outcome",
			zap.String("sessionID", outcome.ClientID),
			zap.Int64("requestID", outcome.RequestID),
			zap.Error(err))
	}
}
