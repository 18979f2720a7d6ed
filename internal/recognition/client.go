package recognition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/internal/audio"
)

// DefaultDispatchInterval is the pause between dispatch loop iterations
const DefaultDispatchInterval = 250 * time.Millisecond

// Client owns one audio stream: it buffers appended bytes into windows and
// runs a background loop that sends every ready snippet for identification.
// Outcomes are delivered to the sink as each identification finishes.
type Client struct {
	id         string
	candidates []string
	buffer     *audio.WindowBuffer
	identifier *Identifier
	sink       Sink
	observer   Observer
	logger     *zap.Logger
	interval   time.Duration
	ctx        context.Context

	producerMu sync.Mutex

	requestID   atomic.Int64
	outstanding atomic.Int64
	inflight    sync.WaitGroup

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (c *Client) start() {
	go c.run()
}

// ClientID returns the identity attached to every outcome of this client
func (c *Client) ClientID() string {
	return c.id
}

// Candidates returns the identities each snippet is matched against
func (c *Client) Candidates() []string {
	out := make([]string, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// Append feeds audio bytes into the window buffer. It never blocks on I/O.
func (c *Client) Append(p []byte) error {
	c.producerMu.Lock()
	defer c.producerMu.Unlock()
	return c.buffer.Append(p)
}

// AppendRange feeds p[offset:offset+length] into the window buffer
func (c *Client) AppendRange(p []byte, offset, length int) error {
	c.producerMu.Lock()
	defer c.producerMu.Unlock()
	return c.buffer.AppendRange(p, offset, length)
}

// Complete signals the end of the stream. The dispatch loop exits once the
// remaining snippets have been dispatched.
func (c *Client) Complete() error {
	c.producerMu.Lock()
	defer c.producerMu.Unlock()
	return c.buffer.Complete()
}

// Stop makes the dispatch loop exit at its next iteration. Identifications
// already in flight keep running.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Done is closed when the dispatch loop has exited
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the dispatch loop exited and every outstanding
// identification returned
func (c *Client) Wait() {
	<-c.done
	c.inflight.Wait()
}

// WaitContext is Wait bounded by ctx
func (c *Client) WaitContext(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		c.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose stops the loop unless the stream was completed, then waits for drain
func (c *Client) Dispose() {
	if !c.buffer.IsCompleted() {
		c.Stop()
	}
	c.Wait()
}

// Outstanding is the number of identifications currently in flight
func (c *Client) Outstanding() int64 {
	return c.outstanding.Load()
}

// Dispatched is the number of requests issued so far
func (c *Client) Dispatched() int64 {
	return c.requestID.Load()
}

// Stats returns the window buffer counters
func (c *Client) Stats() audio.Stats {
	return c.buffer.Stats()
}

func (c *Client) run() {
	defer close(c.done)

	c.logger.Debug("Dispatch loop started")
	defer func() {
		c.logger.Debug("Dispatch loop exited", zap.Int64("dispatched", c.requestID.Load()))
	}()

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		// completion is published after the final snippet is queued
		completed := c.buffer.IsCompleted()
		snippet, ok := c.buffer.NextReadySnippet()
		if ok {
			c.dispatch(snippet)
		} else if completed {
			return
		}

		timer.Reset(c.interval)
		select {
		case <-c.stopCh:
			return
		case <-timer.C:
		}
	}
}

func (c *Client) dispatch(snippet audio.Snippet) {
	requestID := c.requestID.Add(1)
	c.inflight.Add(1)
	c.outstanding.Add(1)
	c.observer.RequestDispatched()
	c.observer.OutstandingChanged(1)

	c.logger.Debug("Dispatching snippet",
		zap.Int64("requestID", requestID),
		zap.Int("sequence", snippet.Sequence),
		zap.Int("seconds", snippet.Seconds))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Outcome sink panicked", zap.Int64("requestID", requestID), zap.Any("panic", r))
			}
			c.outstanding.Add(-1)
			c.observer.OutstandingChanged(-1)
			c.inflight.Done()
		}()

		outcome := c.identifier.Identify(c.ctx, snippet.Data, c.candidates, c.id, requestID)
		c.sink.Collect(outcome)
	}()
}
