package recognition

import (
	"time"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

// Observer receives pipeline events, typically to export metrics
type Observer interface {
	SnippetEmitted(seconds int)
	RequestDispatched()
	OutstandingChanged(delta int)
	OutcomeRecorded(outcome entities.RecognitionOutcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) SnippetEmitted(int)                                         {}
func (nopObserver) RequestDispatched()                                         {}
func (nopObserver) OutstandingChanged(int)                                     {}
func (nopObserver) OutcomeRecorded(entities.RecognitionOutcome, time.Duration) {}
