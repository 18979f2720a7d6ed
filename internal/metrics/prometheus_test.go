package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

func TestObserverUpdatesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	req := entities.RecognitionRequest{ClientID: "c", RequestID: 1}

	m.SnippetEmitted(2)
	m.SnippetEmitted(1)
	m.RequestDispatched()
	m.OutstandingChanged(1)
	m.OutstandingChanged(1)
	m.OutstandingChanged(-1)
	m.OutcomeRecorded(entities.NewSuccessOutcome(req, "alice", 1), time.Second)
	m.OutcomeRecorded(entities.NewSuccessOutcome(req, "", 0), time.Second)
	m.OutcomeRecorded(entities.NewFailureOutcome(req, "request timeout"), 6*time.Second)
	m.OutcomeRecorded(entities.NewFailureOutcome(req, "bad gateway"), time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnippetsEmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsDispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutstandingOps))
	for _, label := range []string{ResultSuccess, ResultUnknown, ResultTimeout, ResultFailure} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues(label)), label)
	}

	count, err := testutil.GatherAndCount(reg, "speakerid_identification_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	m.SessionClosed(entities.SessionStatusCompleted)
	m.AudioReceived(32000)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsClosed.WithLabelValues("completed")))
	assert.Equal(t, 32000.0, testutil.ToFloat64(m.BytesReceived))
}

func TestNewMetricsOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
