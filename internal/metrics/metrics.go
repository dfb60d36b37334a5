package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InterviewsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_sessions_active",
		Help: "Currently active interview sessions",
	})

	InterviewsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_total",
		Help: "Total interview sessions served",
	})

	InterviewDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_session_duration_seconds",
		Help:    "Wall-clock duration of finalized sessions",
		Buckets: []float64{60, 180, 300, 600, 900, 1200, 1800, 2700, 3600},
	})

	FinalizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_finalizations_total",
		Help: "Finalizations committed, by cause",
	}, []string{"cause"})

	FinalizeCommitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_finalize_commit_retries_total",
		Help: "Transient terminal-commit failures that were retried",
	})

	TranscriptWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcript_writes_total",
		Help: "Durable transcript writes issued",
	})

	TranscriptWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcript_write_failures_total",
		Help: "Transcript writes dropped after a persistence failure",
	})

	AgentReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_reconnect_attempts_total",
		Help: "Reconnect attempts to the conversational agent",
	})

	AgentReconnectExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_reconnect_exhausted_total",
		Help: "Outages where the bounded reconnect budget ran out",
	})

	RecordingChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recording_chunks_total",
		Help: "Media chunks buffered for recording",
	})

	RecordingUploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recording_upload_bytes_total",
		Help: "Recording bytes successfully uploaded",
	})

	RecordingUploadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recording_upload_failures_total",
		Help: "Recording uploads that failed and were absorbed",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_errors_total",
		Help: "Error counts by component",
	}, []string{"component", "error_type"})
)
