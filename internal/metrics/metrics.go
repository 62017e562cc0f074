// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts settled upload attempts by outcome.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapbatch",
		Name:      "uploads_total",
		Help:      "Upload attempts by outcome (ok, error).",
	}, []string{"outcome"})

	// BatchesTotal counts submissions by result.
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapbatch",
		Name:      "batches_total",
		Help:      "Batch submissions by result (accepted, rejected).",
	}, []string{"result"})

	// ProbesTotal counts head-object probes by result.
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapbatch",
		Name:      "probes_total",
		Help:      "Head-object probes by result (hit, miss, error).",
	}, []string{"result"})

	// VariantsReadyTotal counts variants observed in the store.
	VariantsReadyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapbatch",
		Name:      "variants_ready_total",
		Help:      "Derived variants observed in the store.",
	})

	// InFlightFiles tracks files uploaded but not yet resolved.
	InFlightFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "snapbatch",
		Name:      "inflight_files",
		Help:      "Files waiting for their variant set.",
	})

	// ReconcileCyclesTotal counts reconciliation cycles run.
	ReconcileCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapbatch",
		Name:      "reconcile_cycles_total",
		Help:      "Reconciliation cycles executed.",
	})
)
