// Package metrics exports campaign progress as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mdmestre/enroller/pkg/api"
)

const namespace = "enroller"

// Observer is an api.Observer that records actions and cycles.
type Observer struct {
	api.NoopObserver

	actions   *prometheus.CounterVec
	cycles    *prometheus.CounterVec
	pending   prometheus.Gauge
	remaining prometheus.Gauge
	linkDown  prometheus.Counter
}

var _ api.Observer = (*Observer)(nil)

// NewObserver registers the campaign metrics on reg.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Outreach actions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Finished enrollment cycles by result.",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_contacts",
			Help:      "Unprocessed contacts at the start of the last cycle.",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remaining_contacts",
			Help:      "Unprocessed contacts at the end of the last cycle.",
		}),
		linkDown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invite_link_failures_total",
			Help:      "Cycles in which the invite link could not be fetched.",
		}),
	}

	for _, c := range []prometheus.Collector{o.actions, o.cycles, o.pending, o.remaining, o.linkDown} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) OnAction(ctx context.Context, res api.ActionResult) {
	o.actions.WithLabelValues(string(res.Kind), string(res.Outcome)).Inc()
}

func (o *Observer) OnLinkUnavailable(ctx context.Context, cycleID string, err error) {
	o.linkDown.Inc()
}

func (o *Observer) OnCycleEnd(ctx context.Context, report api.CycleReport, err error) {
	if err != nil {
		o.cycles.WithLabelValues("failed").Inc()
		return
	}
	o.cycles.WithLabelValues("completed").Inc()
	o.pending.Set(float64(report.Pending))
	o.remaining.Set(float64(report.Remaining))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
