package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/domain/repositories"
	"github.com/satriahrh/arunika/speakerid/internal/audio"
)

func pcm(seconds int) []byte {
	return make([]byte, seconds*32000)
}

func newTestFactory(t *testing.T, svc repositories.SpeakerIdentifier, opts ...FactoryOption) *Factory {
	opts = append([]FactoryOption{WithDispatchInterval(time.Millisecond)}, opts...)
	return NewFactory(newTestIdentifier(t, svc), zaptest.NewLogger(t), opts...)
}

func TestClientEndToEndRaw(t *testing.T) {
	svc := &fakeService{}
	collector := NewCollector()

	client, err := newTestFactory(t, svc).CreateClient("client-1", []string{"alice"}, 2, 1,
		entities.DefaultFormat(entities.ContainerRaw), collector)
	require.NoError(t, err)

	data := pcm(5)
	for off := 0; off < len(data); off += 32000 {
		require.NoError(t, client.AppendRange(data, off, 32000))
	}
	require.NoError(t, client.Complete())
	client.Wait()

	outcomes := collector.Sorted()
	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.Equal(t, int64(i+1), o.RequestID)
		assert.Equal(t, "client-1", o.ClientID)
		assert.True(t, o.Succeeded)
	}
	assert.Equal(t, int64(0), client.Outstanding())
	assert.Equal(t, int64(5), client.Dispatched())
	assert.ElementsMatch(t, []int{44 + 32000, 44 + 64000, 44 + 64000, 44 + 64000, 44 + 64000}, svc.sizes)
}

func TestClientRequestIDsUniqueUnderConcurrency(t *testing.T) {
	// later submissions finish first so outcomes arrive out of order
	svc := &fakeService{delay: func(n int) time.Duration {
		return time.Duration(20-n%20) * time.Millisecond
	}}
	collector := NewCollector()

	client, err := newTestFactory(t, svc).CreateClient("", []string{"alice"}, 3, 1,
		entities.DefaultFormat(entities.ContainerRaw), collector)
	require.NoError(t, err)
	assert.NotEmpty(t, client.ClientID())

	require.NoError(t, client.Append(pcm(30)))
	require.NoError(t, client.Complete())
	client.Wait()

	require.Equal(t, 30, collector.Len())
	seen := make(map[int64]bool)
	for _, o := range collector.Outcomes() {
		assert.False(t, seen[o.RequestID], "duplicate request id %d", o.RequestID)
		seen[o.RequestID] = true
	}
	for i, o := range collector.Sorted() {
		assert.Equal(t, int64(i+1), o.RequestID)
	}
}

func TestClientStopLetsInflightFinish(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	svc := &fakeService{delay: func(int) time.Duration {
		started <- struct{}{}
		<-release
		return 0
	}}
	collector := NewCollector()

	client, err := newTestFactory(t, svc).CreateClient("c", []string{"alice"}, 1, 1,
		entities.DefaultFormat(entities.ContainerRaw), collector)
	require.NoError(t, err)

	require.NoError(t, client.Append(pcm(1)))
	<-started

	client.Stop()
	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatch loop did not exit after Stop")
	}
	assert.Equal(t, int64(1), client.Outstanding())
	assert.Equal(t, 0, collector.Len())

	close(release)
	client.Wait()
	assert.Equal(t, 1, collector.Len())
	assert.Equal(t, int64(0), client.Outstanding())
}

func TestClientDisposeBeforeComplete(t *testing.T) {
	client, err := newTestFactory(t, &fakeService{}).CreateClient("c", []string{"alice"}, 2, 1,
		entities.DefaultFormat(entities.ContainerRaw), NewCollector())
	require.NoError(t, err)

	require.NoError(t, client.Append(pcm(1)[:1000]))
	client.Dispose()

	select {
	case <-client.Done():
	default:
		t.Fatal("dispose returned before the loop exited")
	}
}

func TestClientFailuresKeepSessionRunning(t *testing.T) {
	svc := &fakeService{submitErr: errors.New("quota exceeded")}
	collector := NewCollector()

	client, err := newTestFactory(t, svc).CreateClient("c", []string{"alice"}, 2, 1,
		entities.DefaultFormat(entities.ContainerRaw), collector)
	require.NoError(t, err)

	require.NoError(t, client.Append(pcm(3)))
	require.NoError(t, client.Append(pcm(2)))
	require.NoError(t, client.Complete())
	client.Wait()

	require.Equal(t, 5, collector.Len())
	for _, o := range collector.Outcomes() {
		assert.False(t, o.Succeeded)
		assert.Equal(t, "quota exceeded", o.FailureReason)
	}
}

func TestClientHeaderErrorIsFatal(t *testing.T) {
	client, err := newTestFactory(t, &fakeService{}).CreateClient("c", []string{"alice"}, 2, 1,
		entities.DefaultFormat(entities.ContainerWav), NewCollector())
	require.NoError(t, err)

	err = client.Append(make([]byte, entities.WavMaxHeaderSize))
	assert.ErrorIs(t, err, audio.ErrMalformedHeader)
	assert.ErrorIs(t, client.Append([]byte{1}), audio.ErrMalformedHeader)

	assert.ErrorIs(t, client.Complete(), audio.ErrMalformedHeader)
	client.Wait()
	assert.Equal(t, int64(0), client.Dispatched())
}

func TestClientWaitContext(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{delay: func(int) time.Duration {
		<-release
		return 0
	}}

	client, err := newTestFactory(t, svc).CreateClient("c", []string{"alice"}, 1, 1,
		entities.DefaultFormat(entities.ContainerRaw), NewCollector())
	require.NoError(t, err)
	require.NoError(t, client.Append(pcm(1)))
	require.NoError(t, client.Complete())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.WaitContext(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, client.WaitContext(context.Background()))
}

func TestFactoryValidation(t *testing.T) {
	f := newTestFactory(t, &fakeService{})
	raw := entities.DefaultFormat(entities.ContainerRaw)

	_, err := f.CreateClient("c", nil, 2, 1, raw, NewCollector())
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.ErrorIs(t, err, audio.ErrInvalidArgument)

	_, err = f.CreateClient("c", []string{"a"}, 2, 1, raw, nil)
	assert.ErrorIs(t, err, ErrNilSink)

	_, err = f.CreateClient("c", []string{"a"}, 0, 1, raw, NewCollector())
	assert.ErrorIs(t, err, audio.ErrInvalidConfiguration)

	_, err = f.CreateClient("c", []string{"a"}, 2, -3, raw, NewCollector())
	assert.ErrorIs(t, err, audio.ErrInvalidConfiguration)
}

type countingObserver struct {
	mu          sync.Mutex
	snippets    int
	dispatched  int
	outstanding int
	maxInFlight int
	outcomes    int
}

func (o *countingObserver) SnippetEmitted(int) {
	o.mu.Lock()
	o.snippets++
	o.mu.Unlock()
}

func (o *countingObserver) RequestDispatched() {
	o.mu.Lock()
	o.dispatched++
	o.mu.Unlock()
}

func (o *countingObserver) OutstandingChanged(delta int) {
	o.mu.Lock()
	o.outstanding += delta
	o.maxInFlight = max(o.maxInFlight, o.outstanding)
	o.mu.Unlock()
}

func (o *countingObserver) OutcomeRecorded(entities.RecognitionOutcome, time.Duration) {
	o.mu.Lock()
	o.outcomes++
	o.mu.Unlock()
}

func TestClientReportsToObserver(t *testing.T) {
	obs := &countingObserver{}
	svc := &fakeService{}
	identifier := NewIdentifier(svc, zaptest.NewLogger(t), WithPollInterval(time.Millisecond), WithObserver(obs))
	f := NewFactory(identifier, zaptest.NewLogger(t), WithDispatchInterval(time.Millisecond), WithClientObserver(obs))

	client, err := f.CreateClient("c", []string{"alice"}, 2, 1, entities.DefaultFormat(entities.ContainerRaw), NewCollector())
	require.NoError(t, err)
	require.NoError(t, client.Append(pcm(3)))
	require.NoError(t, client.Complete())
	client.Wait()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 3, obs.snippets)
	assert.Equal(t, 3, obs.dispatched)
	assert.Equal(t, 3, obs.outcomes)
	assert.Equal(t, 0, obs.outstanding)
	assert.GreaterOrEqual(t, obs.maxInFlight, 1)
}
