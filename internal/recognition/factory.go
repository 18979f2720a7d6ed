package recognition

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/internal/audio"
)

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithDispatchInterval sets the pacing delay of every client's dispatch loop
func WithDispatchInterval(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithClientObserver reports client pipeline events to o
func WithClientObserver(o Observer) FactoryOption {
	return func(f *Factory) {
		if o != nil {
			f.observer = o
		}
	}
}

// WithBaseContext sets the context identifications run under. Cancelling it
// turns pending polls into failure outcomes.
func WithBaseContext(ctx context.Context) FactoryOption {
	return func(f *Factory) {
		if ctx != nil {
			f.ctx = ctx
		}
	}
}

// Factory builds recognition clients sharing one identifier
type Factory struct {
	identifier *Identifier
	logger     *zap.Logger
	observer   Observer
	interval   time.Duration
	ctx        context.Context
}

// NewFactory creates a client factory
func NewFactory(identifier *Identifier, logger *zap.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		identifier: identifier,
		logger:     logger,
		observer:   nopObserver{},
		interval:   DefaultDispatchInterval,
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateClient validates the parameters and starts a client's dispatch loop.
// An empty clientID gets a random one.
func (f *Factory) CreateClient(clientID string, candidates []string, windowSize, stepSize int, format entities.FormatDescriptor, sink Sink) (*Client, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %w", audio.ErrInvalidArgument, ErrNoCandidates)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrInvalidArgument, ErrNilSink)
	}
	if clientID == "" {
		clientID = uuid.New().String()
	}

	logger := f.logger.With(zap.String("clientID", clientID))
	observer := f.observer

	buffer, err := audio.NewWindowBuffer(windowSize, stepSize, format,
		audio.WithLogger(logger),
		audio.WithSnippetHook(func(s audio.Snippet) {
			observer.SnippetEmitted(s.Seconds)
		}))
	if err != nil {
		return nil, err
	}

	c := &Client{
		id:         clientID,
		candidates: append([]string(nil), candidates...),
		buffer:     buffer,
		identifier: f.identifier,
		sink:       sink,
		observer:   observer,
		logger:     logger,
		interval:   f.interval,
		ctx:        f.ctx,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.start()

	logger.Info("Recognition client created",
		zap.Int("candidates", len(candidates)),
		zap.Int("windowSize", windowSize),
		zap.Int("stepSize", stepSize),
		zap.String("format", format.String()))

	return c, nil
}
