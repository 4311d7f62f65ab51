package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPollAndOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPoll("processing")
	m.RecordPoll("processing")
	m.RecordPoll("completed")
	m.RecordOutcome("success", 42)

	if got := testutil.ToFloat64(m.SongPolls.WithLabelValues("processing")); got != 2 {
		t.Errorf("Expected 2 processing polls, got %v", got)
	}
	if got := testutil.ToFloat64(m.SongPolls.WithLabelValues("completed")); got != 1 {
		t.Errorf("Expected 1 completed poll, got %v", got)
	}
	if got := testutil.ToFloat64(m.SongOutcomes.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 success outcome, got %v", got)
	}
}

func TestRecordDownload(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDownload(true, 1024)
	m.RecordDownload(false, 0)
	m.RecordDownload(true, 2048)

	if got := testutil.ToFloat64(m.Downloads.WithLabelValues("ok")); got != 2 {
		t.Errorf("Expected 2 successful downloads, got %v", got)
	}
	if got := testutil.ToFloat64(m.Downloads.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed download, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.RecordSubmission("ok")
	m.RecordPoll("processing")
	m.RecordOutcome("failed", 1)
	m.RecordDownload(true, 1)
	m.RecordSpeech(false, 1)
	m.SetActiveJobs(3)
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
	m.RecordHTTPError("GET", "/health", "server_error")
}
