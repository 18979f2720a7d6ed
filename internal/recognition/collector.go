package recognition

import (
	"sync"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

// Collector is an append-only, concurrency-safe outcome store. Outcomes
// are kept in arrival order, which need not match request id order.
type Collector struct {
	mu       sync.Mutex
	outcomes []entities.RecognitionOutcome
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Collect(outcome entities.RecognitionOutcome) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, outcome)
	c.mu.Unlock()
}

// Outcomes returns a copy in arrival order
func (c *Collector) Outcomes() []entities.RecognitionOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]entities.RecognitionOutcome, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}

// Sorted returns a copy ordered by request id
func (c *Collector) Sorted() []entities.RecognitionOutcome {
	out := c.Outcomes()
	entities.SortOutcomes(out)
	return out
}

// Turns groups the collected outcomes into speaker turns
func (c *Collector) Turns() []entities.SpeakerTurn {
	return entities.GroupTurns(c.Outcomes())
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outcomes)
}
