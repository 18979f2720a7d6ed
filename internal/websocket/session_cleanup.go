package websocket

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdleExpirer disposes of sessions that stopped receiving audio
type IdleExpirer interface {
	ExpireIdle(now time.Time) int
}

// SessionCleanupService periodically disposes of idle recording sessions
type SessionCleanupService struct {
	expirer  IdleExpirer
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(expirer IdleExpirer, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionCleanupService{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	s.wg.Add(1)
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service and waits for a running pass
func (s *SessionCleanupService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("Session cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.runCleanup(now)
		}
	}
}

// runCleanup disposes of sessions idle at now
func (s *SessionCleanupService) runCleanup(now time.Time) {
	if n := s.expirer.ExpireIdle(now); n > 0 {
		s.logger.Info("Expired idle sessions", zap.Int("count", n))
	}
}
