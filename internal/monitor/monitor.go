// Package monitor runs the reconciliation loop: it snapshots the cluster,
// evaluates the snapshots against tracked state and hands the resulting
// changes to the alert engine.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/kubesentry/kubesentry/internal/alerter"
	"github.com/kubesentry/kubesentry/internal/collector"
	"github.com/kubesentry/kubesentry/internal/evaluator"
	"github.com/kubesentry/kubesentry/internal/metrics"
	"github.com/kubesentry/kubesentry/internal/types"
	"github.com/rs/zerolog"
)

// Options tune the loop
type Options struct {
	PollInterval        time.Duration
	FailureBackoff      time.Duration
	DashboardAlertLimit int
	// Fallback, when set, is read for display when a kind's primary fetch failed
	Fallback collector.Source
}

// View is the immutable result of the latest cycle. It is replaced, never mutated.
type View struct {
	Nodes         []types.Node
	Pods          []types.Pod
	NodesFallback bool
	PodsFallback  bool
	// Stale is set for a kind whose fetch failed; its data is from an earlier cycle
	NodesStale   bool
	PodsStale    bool
	TrackedNodes int
	TrackedPods  int
	UpdatedAt    time.Time
	Cycle        int64
}

// Dashboard is the read model served to clients
type Dashboard struct {
	Nodes         []types.Node  `json:"nodes"`
	Pods          []types.Pod   `json:"pods"`
	ActiveAlerts  []types.Alert `json:"alerts"`
	NodesFallback bool          `json:"nodes_fallback"`
	PodsFallback  bool          `json:"pods_fallback"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Monitor owns the evaluator state and drives it from a single goroutine
type Monitor struct {
	source collector.Source
	engine *alerter.Engine
	eval   *evaluator.Evaluator
	opts   Options
	logger zerolog.Logger

	view   atomic.Pointer[View]
	cycles atomic.Int64
}

// New creates a monitor. The returned monitor does nothing until Run or RunCycle is called.
func New(source collector.Source, engine *alerter.Engine, opts Options, logger zerolog.Logger) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 60 * time.Second
	}
	if opts.FailureBackoff <= 0 {
		opts.FailureBackoff = 60 * time.Second
	}
	logger = logger.With().Str("component", "monitor").Logger()
	return &Monitor{
		source: source,
		engine: engine,
		eval:   evaluator.NewEvaluator(logger),
		opts:   opts,
		logger: logger,
	}
}

// Run executes cycles until ctx is cancelled. A panicking cycle is logged and
// followed by the failure backoff instead of the poll interval.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info().
		Dur("poll_interval", m.opts.PollInterval).
		Dur("failure_backoff", m.opts.FailureBackoff).
		Bool("fallback", m.opts.Fallback != nil).
		Msg("Monitor started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Monitor stopped")
			return
		case <-timer.C:
		}

		wait := m.opts.PollInterval
		if err := m.safeCycle(ctx); err != nil {
			m.logger.Error().Err(err).Dur("backoff", m.opts.FailureBackoff).Msg("Monitoring cycle failed")
			wait = m.opts.FailureBackoff
		}
		timer.Reset(wait)
	}
}

func (m *Monitor) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CyclesTotal.WithLabelValues("panic").Inc()
			m.logger.Error().Str("stack", string(debug.Stack())).Msg("Recovered panic in monitoring cycle")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	m.RunCycle(ctx)
	return nil
}

// RunCycle performs one reconciliation pass: nodes, then pods. A failed fetch
// for one kind does not affect the other. Fallback data is shown in the view
// but never evaluated, so trackers and alerts keep describing the live cluster.
func (m *Monitor) RunCycle(ctx context.Context) {
	start := time.Now()
	prev := m.view.Load()
	next := &View{UpdatedAt: start.UTC(), Cycle: m.cycles.Add(1)}

	if nodes, fallback, ok := fetch(ctx, m, "node", m.source.ListNodes, fallbackList(m.opts.Fallback, collector.Source.ListNodes)); ok {
		if !fallback {
			m.offer(ctx, m.eval.EvaluateNodes(nodes))
		}
		next.Nodes, next.NodesFallback = nodes, fallback
	} else if prev != nil {
		next.Nodes, next.NodesStale = prev.Nodes, true
	}

	if pods, fallback, ok := fetch(ctx, m, "pod", m.source.ListPods, fallbackList(m.opts.Fallback, collector.Source.ListPods)); ok {
		if !fallback {
			m.offer(ctx, m.eval.EvaluatePods(pods))
		}
		next.Pods, next.PodsFallback = pods, fallback
	} else if prev != nil {
		next.Pods, next.PodsStale = prev.Pods, true
	}

	m.engine.Cleanup()

	next.TrackedNodes = m.eval.TrackedNodes()
	next.TrackedPods = m.eval.TrackedPods()
	metrics.TrackedResources.WithLabelValues("node").Set(float64(next.TrackedNodes))
	metrics.TrackedResources.WithLabelValues("pod").Set(float64(next.TrackedPods))
	m.view.Store(next)

	elapsed := time.Since(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	m.logger.Debug().
		Int64("cycle", next.Cycle).
		Int("nodes", len(next.Nodes)).
		Int("pods", len(next.Pods)).
		Dur("duration", elapsed).
		Msg("Monitoring cycle complete")
}

func (m *Monitor) offer(ctx context.Context, changes []evaluator.Change) {
	for _, ch := range changes {
		m.engine.Offer(ctx, ch)
	}
}

func fallbackList[T any](src collector.Source, list func(collector.Source, context.Context) ([]T, error)) func(context.Context) ([]T, error) {
	if src == nil {
		return nil
	}
	return func(ctx context.Context) ([]T, error) { return list(src, ctx) }
}

// fetch reads one kind from the primary source, falling back when configured.
// ok is false when no snapshot could be obtained.
func fetch[T any](ctx context.Context, m *Monitor, kind string, primary, fallback func(context.Context) ([]T, error)) (items []T, usedFallback, ok bool) {
	items, err := primary(ctx)
	if err == nil {
		return items, false, true
	}
	metrics.FetchFailuresTotal.WithLabelValues(kind).Inc()

	if fallback == nil {
		m.logger.Warn().Err(err).Str("kind", kind).Msg("Snapshot fetch failed, skipping evaluation this cycle")
		return nil, false, false
	}

	items, ferr := fallback(ctx)
	if ferr != nil {
		m.logger.Error().Err(err).AnErr("fallback_error", ferr).Str("kind", kind).Msg("Snapshot fetch and fallback both failed")
		return nil, false, false
	}
	m.logger.Warn().Err(err).Str("kind", kind).Int("count", len(items)).Msg("Snapshot fetch failed, showing fallback data without evaluating it")
	return items, true, true
}

// View returns the latest published cycle result, or nil before the first cycle
func (m *Monitor) View() *View {
	return m.view.Load()
}

// GetSnapshot returns the latest resources together with the newest active alerts
func (m *Monitor) GetSnapshot(ctx context.Context) (Dashboard, error) {
	d := Dashboard{Nodes: []types.Node{}, Pods: []types.Pod{}}
	if v := m.view.Load(); v != nil {
		if v.Nodes != nil {
			d.Nodes = v.Nodes
		}
		if v.Pods != nil {
			d.Pods = v.Pods
		}
		d.NodesFallback, d.PodsFallback = v.NodesFallback, v.PodsFallback
		d.UpdatedAt = v.UpdatedAt
	}

	alerts, err := m.engine.ActiveAlerts(ctx, m.opts.DashboardAlertLimit)
	if err != nil {
		return Dashboard{}, fmt.Errorf("loading active alerts: %w", err)
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	d.ActiveAlerts = alerts
	return d, nil
}

// ListAlerts returns alerts matching filter, newest first
func (m *Monitor) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error) {
	return m.engine.ListAlerts(ctx, filter)
}

// ResolveAlert resolves one alert by id
func (m *Monitor) ResolveAlert(ctx context.Context, id string) (*types.Alert, error) {
	return m.engine.ResolveAlert(ctx, id)
}

// DeleteAlert removes one alert by id
func (m *Monitor) DeleteAlert(ctx context.Context, id string) error {
	return m.engine.DeleteAlert(ctx, id)
}
