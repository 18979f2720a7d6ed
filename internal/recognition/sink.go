package recognition

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

// Sink receives every outcome of a client, in completion order
type Sink interface {
	Collect(outcome entities.RecognitionOutcome)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(entities.RecognitionOutcome)

func (f SinkFunc) Collect(outcome entities.RecognitionOutcome) {
	f(outcome)
}

// MultiSink fans an outcome out to several sinks. A panicking sink is logged
// and does not stop delivery to the rest.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMultiSink creates a fan-out sink, skipping nil entries
func NewMultiSink(logger *zap.Logger, sinks ...Sink) *MultiSink {
	m := &MultiSink{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Collect(outcome entities.RecognitionOutcome) {
	for _, s := range m.sinks {
		m.deliver(s, outcome)
	}
}

func (m *MultiSink) deliver(s Sink, outcome entities.RecognitionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Outcome sink panicked",
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Int64("requestID", outcome.RequestID),
				zap.Any("panic", r))
		}
	}()
	s.Collect(outcome)
}

// LogSink writes each outcome to the logger
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Collect(o entities.RecognitionOutcome) {
	if !o.Succeeded {
		l.logger.Warn("Identification failed",
			zap.String("clientID", o.ClientID),
			zap.Int64("requestID", o.RequestID),
			zap.String("reason", o.FailureReason))
		return
	}

	speaker := o.Identity
	if o.IsUnknown() {
		speaker = entities.UnknownSpeaker
	}
	l.logger.Info("Speaker identified",
		zap.String("clientID", o.ClientID),
		zap.Int64("requestID", o.RequestID),
		zap.String("profileID", speaker),
		zap.Float64("confidence", o.Confidence))
}
