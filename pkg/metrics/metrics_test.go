package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordAttempt(t *testing.T) {
	m := New()
	m.RecordAttempt("retryable", 429, 100, 10*time.Millisecond)
	m.RecordAttempt("retryable", 429, 100, 10*time.Millisecond)
	m.RecordAttempt("retryable", 0, 100, time.Second)
	m.RecordAttempt("success", 200, 100, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("retryable", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("retryable", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("success", "200")))
	assert.Equal(t, 400.0, testutil.ToFloat64(m.bytesSent))
}

func TestMetrics_BatchesAndFailures(t *testing.T) {
	m := New()
	m.RecordBatch("succeeded", 500)
	m.RecordBatch("succeeded", 250)
	m.RecordBatch("exhausted", 10)
	m.RecordSplit()
	m.RecordPersisted("exhausted")
	m.RecordPersistError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches.WithLabelValues("succeeded")))
	assert.Equal(t, 750.0, testutil.ToFloat64(m.records.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.splits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persisted.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistErrors))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordSplit()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "bulkship_splits_total 1"), string(body))
}

func TestNoopObserver(t *testing.T) {
	var o Observer = NoopObserver{}
	o.RecordAttempt("success", 200, 1, time.Millisecond)
	o.RecordSplit()
	o.RecordBatch("succeeded", 1)
	o.RecordPersisted("rejected")
	o.RecordPersistError()
}

func TestMetrics_Registry(t *testing.T) {
	m := New()
	m.RecordSplit()
	m.RecordSplit()
	m.RecordPersistError()

	expected := `
# HELP bulkship_splits_total Batches split because they encoded too large
# TYPE bulkship_splits_total counter
bulkship_splits_total 2
# HELP bulkship_failure_persist_errors_total Failure log writes that did not succeed
# TYPE bulkship_failure_persist_errors_total counter
bulkship_failure_persist_errors_total 1
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"bulkship_splits_total", "bulkship_failure_persist_errors_total")
	require.NoError(t, err)
}
