package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline records report pipeline events. A nil *Pipeline is valid and
// records nothing.
type Pipeline struct {
	classifications *prometheus.CounterVec
	classifyLatency *prometheus.HistogramVec
	analyses        *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	reviewActions   *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// NewPipeline registers the pipeline collectors with reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classification attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		classifyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Latency of classification calls by provider.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Image analyses by outcome.",
		}, []string{"outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Submitted reports by issue type and severity.",
		}, []string{"issue_type", "severity"}),
		reviewActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_actions_total",
			Help:      "Review actions by action and outcome.",
		}, []string{"action", "outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live sessions.",
		}),
	}

	for _, c := range []prometheus.Collector{
		p.classifications, p.classifyLatency, p.analyses,
		p.submissions, p.reviewActions, p.activeSessions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) ObserveClassification(provider, outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.classifications.WithLabelValues(provider, outcome).Inc()
	p.classifyLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (p *Pipeline) ObserveAnalysis(outcome string, _ time.Duration) {
	if p == nil {
		return
	}
	p.analyses.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) ObserveSubmission(issueType, severity string) {
	if p == nil {
		return
	}
	p.submissions.WithLabelValues(issueType, severity).Inc()
}

func (p *Pipeline) ObserveReviewAction(action, outcome string) {
	if p == nil {
		return
	}
	p.reviewActions.WithLabelValues(action, outcome).Inc()
}

// SetActiveSessions records the live session count.
func (p *Pipeline) SetActiveSessions(n int) {
	if p == nil {
		return
	}
	p.activeSessions.Set(float64(n))
}
