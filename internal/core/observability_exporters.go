package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"refinerycore/internal/model"
	"refinerycore/internal/solver"
)

// PrometheusRecorder publishes operation timings, model sizes and solve
// outcomes on a caller-owned registry.
type PrometheusRecorder struct {
	durations    *prometheus.HistogramVec
	variables    *prometheus.GaugeVec
	constraints  *prometheus.GaugeVec
	bilinear     *prometheus.GaugeVec
	terminations *prometheus.CounterVec
}

var (
	_ MetricsRecorder = (*PrometheusRecorder)(nil)
	_ ModelObserver   = (*PrometheusRecorder)(nil)
	_ SolveObserver   = (*PrometheusRecorder)(nil)
)

// NewPrometheusRecorder registers the refinery collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "refinery",
			Name:      "operation_duration_seconds",
			Help:      "Duration of service operations by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"operation", "status"}),
		variables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "refinery",
			Name:      "model_variables",
			Help:      "Declared variables of the last build by domain.",
		}, []string{"case", "domain"}),
		constraints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "refinery",
			Name:      "model_constraints",
			Help:      "Generated constraint rows of the last build by family.",
		}, []string{"case", "family"}),
		bilinear: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "refinery",
			Name:      "model_bilinear_terms",
			Help:      "Bilinear terms of the last build.",
		}, []string{"case"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refinery",
			Name:      "solve_total",
			Help:      "Solver runs by termination condition.",
		}, []string{"case", "solver", "termination"}),
	}
	for _, c := range []prometheus.Collector{r.durations, r.variables, r.constraints, r.bilinear, r.terminations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// ObserveModel implements ModelObserver.
func (r *PrometheusRecorder) ObserveModel(caseID string, stats model.Stats) {
	for d, n := range stats.VariablesByDomain {
		r.variables.WithLabelValues(caseID, d).Set(float64(n))
	}
	for f, n := range stats.ConstraintsByFamily {
		r.constraints.WithLabelValues(caseID, f).Set(float64(n))
	}
	r.bilinear.WithLabelValues(caseID).Set(float64(stats.BilinearTerms))
}

// ObserveSolve implements SolveObserver.
func (r *PrometheusRecorder) ObserveSolve(caseID, solverName string, termination solver.Termination) {
	r.terminations.WithLabelValues(caseID, solverName, string(termination)).Inc()
}

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes spans to a writer and retains them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
	clock   Clock
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to w.
// A nil writer only retains spans for Entries.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{enc: enc, clock: ClockFunc(time.Now)}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: t.clock.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	status := "success"
	var errMsg string
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	ended := s.tracer.clock.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
