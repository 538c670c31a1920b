// Package metrics exposes Prometheus counters for chat turns and tool
// dispatch outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sdrlabs/leadqual/internal/domain"
)

// Recorder implements agent.Metrics over a dedicated registry, so tests
// can build isolated instances without colliding on the default one.
type Recorder struct {
	registry *prometheus.Registry

	turns *prometheus.CounterVec
	tools *prometheus.CounterVec
}

// NewRecorder builds a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadqual",
			Name:      "chat_turns_total",
			Help:      "Chat turns processed, labeled by outcome.",
		}, []string{"outcome"}),
		tools: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadqual",
			Name:      "tool_invocations_total",
			Help:      "Tool invocations resolved, labeled by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}
	r.registry.MustRegister(r.turns, r.tools)
	return r
}

func (r *Recorder) TurnProcessed(outcome string) {
	r.turns.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ToolResolved(tool domain.ToolName, outcome string) {
	r.tools.WithLabelValues(string(tool), outcome).Inc()
}

// Handler returns the scrape endpoint for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
