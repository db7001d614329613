package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transcription metrics
	transcriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pronunciation_gateway_transcriptions_total",
		Help: "Total number of transcription calls",
	}, []string{"backend", "status"})

	transcriptionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pronunciation_gateway_transcription_latency_seconds",
		Help:    "Transcription latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
	}, []string{"backend"})

	audioBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pronunciation_gateway_audio_bytes_total",
		Help: "Total uploaded audio bytes",
	})

	audioDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pronunciation_gateway_audio_duration_seconds",
		Help:    "Duration of uploaded WAV clips in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	// Scoring metrics
	accuracyScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pronunciation_gateway_accuracy_score",
		Help:    "Accuracy scores of submitted answers",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	answerSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pronunciation_gateway_answers_total",
		Help: "Total answer submissions by outcome",
	}, []string{"outcome"}) // outcome: "pass" or "fail"

	// Question store metrics
	questionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pronunciation_gateway_questions",
		Help: "Number of questions currently stored",
	})

	batchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pronunciation_gateway_batch_items_total",
		Help: "Audio clips processed by batch question imports",
	}, []string{"outcome"}) // outcome: "added", "empty", "error"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pronunciation_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pronunciation_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pronunciation_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// RecordTranscription records the outcome and latency of one transcription call
func RecordTranscription(backend string, started time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	transcriptionRequests.WithLabelValues(backend, status).Inc()
	transcriptionLatency.WithLabelValues(backend).Observe(time.Since(started).Seconds())
}

// RecordAudio records an uploaded clip's size and, when known, its duration
func RecordAudio(bytes int64, duration time.Duration) {
	audioBytesReceived.Add(float64(bytes))
	if duration > 0 {
		audioDuration.Observe(duration.Seconds())
	}
}

// RecordAnswer records a scored answer
func RecordAnswer(accuracy float64, passed bool) {
	accuracyScores.Observe(accuracy)
	outcome := "fail"
	if passed {
		outcome = "pass"
	}
	answerSubmissions.WithLabelValues(outcome).Inc()
}

// SetQuestionCount updates the question store size gauge
func SetQuestionCount(n int) {
	questionCount.Set(float64(n))
}

// RecordBatchItem records the outcome of one clip in a batch import
func RecordBatchItem(outcome string) {
	batchItems.WithLabelValues(outcome).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
