// Package reconcile drives uploaded files toward completion by polling
// the object store for the derived variants the worker writes back.
package reconcile

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/snapbatch/backend/internal/metrics"
	"github.com/snapbatch/backend/internal/models"
	"github.com/snapbatch/backend/internal/storage"
)

// Default cadence: the worker gets a grace period after the last
// upload before the first probe, then cycles run at a fixed interval
// while any file is still in flight.
const (
	DefaultGraceDelay = 2000 * time.Millisecond
	DefaultInterval   = 3000 * time.Millisecond
)

// Notifier receives reconciliation outcomes. Implementations must not
// block; the loop calls them inline between probes.
type Notifier interface {
	// OnVariantReady fires at most once per (file, variant) pair.
	OnVariantReady(batchID string, ev models.VariantEvent)

	// OnBatchResolved fires once, when the in-flight set empties.
	OnBatchResolved(b *models.Batch)
}

// NopNotifier ignores all events.
type NopNotifier struct{}

func (NopNotifier) OnVariantReady(string, models.VariantEvent) {}
func (NopNotifier) OnBatchResolved(*models.Batch)              {}

// MultiNotifier fans events out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) OnVariantReady(batchID string, ev models.VariantEvent) {
	for _, n := range m {
		n.OnVariantReady(batchID, ev)
	}
}

func (m MultiNotifier) OnBatchResolved(b *models.Batch) {
	for _, n := range m {
		n.OnBatchResolved(b)
	}
}

// Options tunes a Loop. Zero values pick the defaults above.
type Options struct {
	GraceDelay time.Duration
	Interval   time.Duration

	// MaxCycles stops the loop after that many cycles even if files
	// are still in flight, leaving them Processing. Zero means poll
	// until the batch resolves, matching the store's lack of any
	// "will never exist" signal.
	MaxCycles int
}

// Loop polls the store for derived variants of in-flight files.
type Loop struct {
	store    storage.ObjectStore
	notifier Notifier
	logger   *log.Logger
	opts     Options
}

// New creates a reconciliation loop.
func New(store storage.ObjectStore, notifier Notifier, logger *log.Logger, opts Options) *Loop {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = log.Default()
	}
	if opts.GraceDelay <= 0 {
		opts.GraceDelay = DefaultGraceDelay
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Loop{store: store, notifier: notifier, logger: logger, opts: opts}
}

// Schedule runs the loop for the batch on its own goroutine.
func (l *Loop) Schedule(ctx context.Context, b *models.Batch) {
	go l.Run(ctx, b)
}

// Run polls until the batch's in-flight set empties, the cycle budget
// is spent, or ctx is cancelled. The first cycle starts after the
// grace delay so the worker has a chance to produce something.
func (l *Loop) Run(ctx context.Context, b *models.Batch) {
	logger := l.logger.With("batch", shortID(b.ID))

	if !l.wait(ctx, l.opts.GraceDelay) {
		logger.Info("reconciliation cancelled before first cycle")
		return
	}

	cycles := 0
	for {
		inflight := b.InFlight()
		if len(inflight) == 0 {
			logger.Info("batch resolved", "cycles", cycles)
			l.notifier.OnBatchResolved(b)
			return
		}

		cycles++
		metrics.ReconcileCyclesTotal.Inc()
		l.runCycle(ctx, b, inflight, logger)

		if b.InFlightCount() == 0 {
			logger.Info("batch resolved", "cycles", cycles)
			l.notifier.OnBatchResolved(b)
			return
		}
		if l.opts.MaxCycles > 0 && cycles >= l.opts.MaxCycles {
			logger.Warn("cycle budget exhausted, files left processing",
				"cycles", cycles, "inflight", b.InFlightCount())
			return
		}
		if !l.wait(ctx, l.opts.Interval) {
			logger.Info("reconciliation cancelled", "cycles", cycles, "inflight", b.InFlightCount())
			return
		}
	}
}

// runCycle probes every missing (file, variant) pair once.
func (l *Loop) runCycle(ctx context.Context, b *models.Batch, inflight []string, logger *log.Logger) {
	for _, name := range inflight {
		rec, ok := b.Record(name)
		if !ok {
			continue
		}
		for _, v := range rec.MissingVariants() {
			if ctx.Err() != nil {
				return
			}
			key := storage.DerivedKey(v, name)

			exists, err := l.store.Head(ctx, key)
			if err != nil {
				// Indistinguishable from "not yet produced"; retry
				// next cycle like a miss.
				metrics.ProbesTotal.WithLabelValues("error").Inc()
				logger.Debug("probe failed", "key", key, "err", err)
				continue
			}
			if !exists {
				metrics.ProbesTotal.WithLabelValues("miss").Inc()
				continue
			}
			metrics.ProbesTotal.WithLabelValues("hit").Inc()

			l.announce(b, name, v, key, logger)
		}
	}
}

func (l *Loop) announce(b *models.Batch, name string, v models.Variant, key string, logger *log.Logger) {
	added, completed, err := b.MarkVariantReady(name, v)
	if err != nil {
		logger.Warn("could not record variant", "file", name, "variant", v, "err", err)
		return
	}
	if !added {
		return
	}

	metrics.VariantsReadyTotal.Inc()

	url, err := l.store.SignedURL(key, storage.DisplayURLTTL)
	if err != nil {
		logger.Warn("could not sign display url", "key", key, "err", err)
	}
	l.notifier.OnVariantReady(b.ID, models.VariantEvent{File: name, Variant: v, URL: url})
	logger.Info("variant ready", "file", name, "variant", v)

	if completed {
		metrics.InFlightFiles.Dec()
		logger.Info("file complete", "file", name)
	}
}

// wait sleeps for d unless ctx is cancelled first.
func (l *Loop) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
