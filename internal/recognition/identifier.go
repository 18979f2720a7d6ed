package recognition

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/domain/repositories"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollRetries  = 3
)

// IdentifierOption configures an Identifier
type IdentifierOption func(*Identifier)

// WithPollInterval sets the delay before each status poll
func WithPollInterval(d time.Duration) IdentifierOption {
	return func(i *Identifier) {
		if d > 0 {
			i.pollInterval = d
		}
	}
}

// WithPollRetries sets how many status polls are made before giving up
func WithPollRetries(n int) IdentifierOption {
	return func(i *Identifier) {
		if n > 0 {
			i.retries = n
		}
	}
}

// WithObserver reports outcomes and latency to o
func WithObserver(o Observer) IdentifierOption {
	return func(i *Identifier) {
		if o != nil {
			i.observer = o
		}
	}
}

// Identifier runs one submit-then-poll identification against a remote service
type Identifier struct {
	service      repositories.SpeakerIdentifier
	logger       *zap.Logger
	observer     Observer
	pollInterval time.Duration
	retries      int
}

// NewIdentifier creates an identifier backed by service
func NewIdentifier(service repositories.SpeakerIdentifier, logger *zap.Logger, opts ...IdentifierOption) *Identifier {
	i := &Identifier{
		service:      service,
		logger:       logger,
		observer:     nopObserver{},
		pollInterval: DefaultPollInterval,
		retries:      DefaultPollRetries,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Identify submits audio and polls until the operation settles or the retry
// budget runs out. Every failure, including a panic in the service, is
// returned as a failure outcome.
func (i *Identifier) Identify(ctx context.Context, audio []byte, candidates []string, clientID string, requestID int64) (outcome entities.RecognitionOutcome) {
	req := entities.RecognitionRequest{ClientID: clientID, RequestID: requestID}
	start := time.Now()
	logger := i.logger.With(zap.String("clientID", clientID), zap.Int64("requestID", requestID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Identification panicked", zap.Any("panic", r))
			outcome = entities.NewFailureOutcome(req, fmt.Sprintf("identification panicked: %v", r))
		}
		i.observer.OutcomeRecorded(outcome, time.Since(start))
	}()

	handle, err := i.service.Submit(ctx, bytes.NewReader(audio), candidates)
	if err != nil {
		logger.Warn("Failed to submit identification", zap.Error(err))
		return entities.NewFailureOutcome(req, err.Error())
	}
	logger.Debug("Identification submitted",
		zap.String("operation", string(handle)),
		zap.Int("bytes", len(audio)))

	for attempt := 1; attempt <= i.retries; attempt++ {
		timer := time.NewTimer(i.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return entities.NewFailureOutcome(req, ctx.Err().Error())
		case <-timer.C:
		}

		status, err := i.service.PollStatus(ctx, handle)
		if err != nil {
			logger.Warn("Failed to poll identification status", zap.Error(err), zap.Int("attempt", attempt))
			return entities.NewFailureOutcome(req, err.Error())
		}

		switch status.State {
		case repositories.OperationSucceeded:
			return entities.NewSuccessOutcome(req, status.Identity, status.Confidence)
		case repositories.OperationFailed:
			return entities.NewFailureOutcome(req, status.Message)
		}
	}

	logger.Warn("Identification timed out", zap.Int("retries", i.retries))
	return entities.NewFailureOutcome(req, ErrRequestTimeout.Error())
}
