package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

// BufferState is the lifecycle stage of a WindowBuffer
type BufferState int32

const (
	StateAwaitingHeader BufferState = iota
	StateStreaming
	StateCompleted
)

func (s BufferState) String() string {
	switch s {
	case StateAwaitingHeader:
		return "awaiting_header"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("BufferState(%d)", int32(s))
	}
}

// Stats are running counters of a WindowBuffer
type Stats struct {
	BytesReceived    int64
	SecondsCompleted int64
	SnippetsEmitted  int64
	BytesDiscarded   int64
	Pending          int
}

// Option configures a WindowBuffer
type Option func(*WindowBuffer)

// WithLogger sets the logger used for stream lifecycle events
func WithLogger(logger *zap.Logger) Option {
	return func(b *WindowBuffer) {
		b.logger = logger
	}
}

// WithSnippetHook registers a callback invoked on the producer path for every emitted snippet
func WithSnippetHook(hook func(Snippet)) Option {
	return func(b *WindowBuffer) {
		b.onSnippet = hook
	}
}

// WindowBuffer re-segments an audio byte stream into overlapping windows of
// whole seconds and queues a WAV snippet every stepSize seconds.
//
// Append, AppendRange and Complete form the producer side and must be
// serialized by the caller. NextReadySnippet, State and Stats may be called
// concurrently from one consumer.
type WindowBuffer struct {
	windowSize int
	stepSize   int
	format     entities.FormatDescriptor
	logger     *zap.Logger
	onSnippet  func(Snippet)

	// producer-owned
	header      []byte
	headerLen   int
	info        ParsedHeaderInfo
	fatal       error
	second      *ringbuffer.RingBuffer
	window      [][]byte
	stepCounter int
	sequence    int

	state atomic.Int32

	mu    sync.Mutex
	ready []Snippet

	bytesReceived    atomic.Int64
	secondsCompleted atomic.Int64
	snippetsEmitted  atomic.Int64
	bytesDiscarded   atomic.Int64
}

// NewWindowBuffer creates a buffer holding up to windowSize seconds and
// emitting every stepSize seconds. Headerless streams start out Streaming.
// Snippets always declare 16 kHz/16-bit/mono sizes, so they are only
// well-formed for streams in that format.
func NewWindowBuffer(windowSize, stepSize int, format entities.FormatDescriptor, opts ...Option) (*WindowBuffer, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: window size must be a positive integer, got %d", ErrInvalidConfiguration, windowSize)
	}
	if stepSize <= 0 {
		return nil, fmt.Errorf("%w: step size must be a positive integer, got %d", ErrInvalidConfiguration, stepSize)
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	b := &WindowBuffer{
		windowSize: windowSize,
		stepSize:   stepSize,
		format:     format,
		logger:     zap.NewNop(),
		header:     make([]byte, format.Container.MaxHeaderSize()),
		window:     make([][]byte, 0, windowSize),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.state.Store(int32(StateAwaitingHeader))
	if len(b.header) == 0 {
		if err := b.parseHeader(); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Append feeds the whole of p into the buffer
func (b *WindowBuffer) Append(p []byte) error {
	return b.AppendRange(p, 0, len(p))
}

// AppendRange feeds p[offset:offset+length] into the buffer. A header error
// is fatal: it is returned from this and every later call.
func (b *WindowBuffer) AppendRange(p []byte, offset, length int) error {
	if offset < 0 {
		return fmt.Errorf("%w: offset must be a non-negative integer, got %d", ErrInvalidArgument, offset)
	}
	if length < 0 {
		return fmt.Errorf("%w: length must be a non-negative integer, got %d", ErrInvalidArgument, length)
	}
	if offset+length > len(p) {
		return fmt.Errorf("%w: there aren't enough bytes to append, need %d have %d", ErrInvalidArgument, offset+length, len(p))
	}
	if b.fatal != nil {
		return b.fatal
	}
	if b.State() == StateCompleted {
		return ErrCompleted
	}

	b.bytesReceived.Add(int64(length))
	data := p[offset : offset+length]

	if b.State() == StateAwaitingHeader {
		n := copy(b.header[b.headerLen:], data)
		b.headerLen += n
		data = data[n:]

		if b.headerLen < len(b.header) {
			return nil
		}
		if err := b.parseHeader(); err != nil {
			return err
		}
		if err := b.stream(b.header[b.info.DataStartOffset:]); err != nil {
			return err
		}
	}

	return b.stream(data)
}

// NextReadySnippet pops the oldest queued snippet without blocking
func (b *WindowBuffer) NextReadySnippet() (Snippet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ready) == 0 {
		return Snippet{}, false
	}
	s := b.ready[0]
	b.ready[0] = Snippet{}
	b.ready = b.ready[1:]
	return s, true
}

// Complete marks the end of the stream. Seconds buffered since the last
// emission are flushed as one final snippet; an incomplete trailing second
// is discarded.
func (b *WindowBuffer) Complete() error {
	if b.State() == StateCompleted {
		return nil
	}

	if b.second != nil {
		if partial := b.second.Length(); partial > 0 {
			b.bytesDiscarded.Add(int64(partial))
			b.logger.Debug("Discarding incomplete trailing second",
				zap.Int("bytes", partial),
				zap.Int("bytesPerSecond", b.info.BytesPerSecond))
			b.second.Reset()
		}
	}

	if b.fatal == nil && b.stepCounter > 0 && len(b.window) > 0 {
		b.emit()
		b.stepCounter = 0
	}

	b.state.Store(int32(StateCompleted))
	return b.fatal
}

// State returns the current lifecycle stage
func (b *WindowBuffer) State() BufferState {
	return BufferState(b.state.Load())
}

// IsCompleted reports whether Complete was called
func (b *WindowBuffer) IsCompleted() bool {
	return b.State() == StateCompleted
}

// SecondsHeld is the number of seconds currently in the window. Producer side only.
func (b *WindowBuffer) SecondsHeld() int {
	return len(b.window)
}

// HeaderInfo returns the parsed header, valid once the buffer left AwaitingHeader
func (b *WindowBuffer) HeaderInfo() ParsedHeaderInfo {
	return b.info
}

// Stats returns a snapshot of the buffer counters
func (b *WindowBuffer) Stats() Stats {
	b.mu.Lock()
	pending := len(b.ready)
	b.mu.Unlock()

	return Stats{
		BytesReceived:    b.bytesReceived.Load(),
		SecondsCompleted: b.secondsCompleted.Load(),
		SnippetsEmitted:  b.snippetsEmitted.Load(),
		BytesDiscarded:   b.bytesDiscarded.Load(),
		Pending:          pending,
	}
}

func (b *WindowBuffer) parseHeader() error {
	info, err := ParseHeader(b.header, b.format)
	if err != nil {
		b.fatal = fmt.Errorf("failed to parse audio header: %w", err)
		b.logger.Error("Audio header rejected", zap.Error(err))
		return b.fatal
	}

	b.info = info
	b.second = ringbuffer.New(info.BytesPerSecond)
	b.state.Store(int32(StateStreaming))
	b.logger.Debug("Audio header parsed",
		zap.String("container", b.format.Container.String()),
		zap.Int("dataStartOffset", info.DataStartOffset),
		zap.Int("bytesPerSecond", info.BytesPerSecond))
	return nil
}

// stream routes sample bytes into the current second, closing out every
// second that fills along the way
func (b *WindowBuffer) stream(data []byte) error {
	for len(data) > 0 {
		n := min(len(data), b.second.Free())
		if _, err := b.second.Write(data[:n]); err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
			return fmt.Errorf("failed to buffer audio: %w", err)
		}
		data = data[n:]

		if b.second.IsFull() {
			if err := b.closeSecond(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *WindowBuffer) closeSecond() error {
	sec := make([]byte, b.second.Capacity())
	if _, err := b.second.Read(sec); err != nil {
		return fmt.Errorf("failed to read completed second: %w", err)
	}
	b.secondsCompleted.Add(1)

	b.window = append(b.window, sec)
	if len(b.window) > b.windowSize {
		b.window[0] = nil
		b.window = b.window[1:]
	}

	b.stepCounter = (b.stepCounter + 1) % b.stepSize
	if b.stepCounter == 0 {
		b.emit()
	}
	return nil
}

func (b *WindowBuffer) emit() {
	b.sequence++
	s := Snippet{
		Data:     BuildSnippet(b.window),
		Seconds:  len(b.window),
		Sequence: b.sequence,
	}

	b.mu.Lock()
	b.ready = append(b.ready, s)
	b.mu.Unlock()
	b.snippetsEmitted.Add(1)

	if b.onSnippet != nil {
		b.onSnippet(s)
	}
}
