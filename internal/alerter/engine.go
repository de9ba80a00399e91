package alerter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kubesentry/kubesentry/internal/alertkey"
	"github.com/kubesentry/kubesentry/internal/evaluator"
	"github.com/kubesentry/kubesentry/internal/metrics"
	"github.com/kubesentry/kubesentry/internal/notifier"
	"github.com/kubesentry/kubesentry/internal/store"
	"github.com/kubesentry/kubesentry/internal/types"
	"github.com/rs/zerolog"
)

// DefaultCooldown is the minimum spacing between accepted changes for one key
const DefaultCooldown = 300 * time.Second

const (
	notifyTimeout   = 30 * time.Second
	notifyQueueSize = 256
)

// Outcome is what the engine did with an offered change
type Outcome string

const (
	Created      Outcome = "created"
	Deduplicated Outcome = "deduplicated"
	Suppressed   Outcome = "suppressed"
	Recovered    Outcome = "recovered"
	Removed      Outcome = "removed"
	Failed       Outcome = "failed"
)

// Engine manages the alert lifecycle: cooldown gating, deduplication,
// resolution and notification.
type Engine struct {
	store    store.Store
	notifier notifier.Sink
	logger   zerolog.Logger
	cooldown *Cooldown
	now      func() time.Time

	// mu serializes cooldown and store read-modify-write across the loop and API callers
	mu sync.Mutex

	// notifications are delivered in enqueue order by a single worker
	queue  chan notification
	wg     sync.WaitGroup
	done   chan struct{}
	closed bool
}

type notification struct {
	key     string
	subject string
	body    string
}

// NewEngine creates a new alert engine
func NewEngine(st store.Store, sink notifier.Sink, cooldown time.Duration, logger zerolog.Logger) *Engine {
	logger = logger.With().Str("component", "alerter").Logger()
	e := &Engine{
		store:    st,
		notifier: sink,
		logger:   logger,
		cooldown: NewCooldown(logger, cooldown),
		now:      time.Now,
		queue:    make(chan notification, notifyQueueSize),
		done:     make(chan struct{}),
	}
	go e.deliver()
	return e
}

// Offer processes one condition change
func (e *Engine) Offer(ctx context.Context, change evaluator.Change) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	var outcome Outcome
	switch change.Kind {
	case evaluator.Problem:
		outcome = e.problem(ctx, change)
	case evaluator.Recovery:
		outcome = e.recovery(ctx, change)
	case evaluator.Removed:
		outcome = e.removed(ctx, change)
	default:
		e.logger.Warn().Int("kind", int(change.Kind)).Msg("Ignoring change of unknown kind")
		return Failed
	}

	metrics.AlertChangesTotal.WithLabelValues(change.Kind.String(), string(outcome)).Inc()
	return outcome
}

// gate applies the cooldown and records acceptance. Caller holds e.mu.
func (e *Engine) gate(key string, now time.Time) bool {
	if !e.cooldown.Allow(key, now) {
		e.logger.Debug().Str("alert_key", key).Msg("Change suppressed by cooldown")
		return false
	}
	e.cooldown.Accept(key, now)
	return true
}

func (e *Engine) problem(ctx context.Context, change evaluator.Change) Outcome {
	key := change.Key.String()
	now := e.now().UTC()
	if !e.gate(key, now) {
		return Suppressed
	}

	existing, err := e.store.FindActive(ctx, key)
	if err != nil {
		e.storeError("find_active", key, err)
		return Failed
	}
	if existing != nil {
		e.logger.Debug().
			Str("alert_key", key).
			Str("alert_id", existing.ID).
			Msg("Alert already active, skipping duplicate")
		return Deduplicated
	}

	message := change.Message
	if message == "" {
		message = fmt.Sprintf("Alert triggered for %s '%s' with status: %s at %s",
			change.Key.ResourceType, change.Key.Identity(), change.Key.Status, now.Format(time.RFC3339))
	}
	alert := &types.Alert{
		AlertKey:          key,
		ResourceType:      change.Key.ResourceType,
		ResourceName:      change.Key.Name,
		ResourceNamespace: change.Key.Namespace,
		Status:            change.Key.Status,
		Message:           message,
		CreatedAt:         now,
	}
	if err := e.store.Create(ctx, alert); err != nil {
		e.storeError("create", key, err)
		return Failed
	}

	e.logger.Info().
		Str("alert_key", key).
		Str("alert_id", alert.ID).
		Str("resource", change.Key.Identity()).
		Msg("Alert fired")

	e.notify(key, change.Subject, change.Body)
	return Created
}

func (e *Engine) recovery(ctx context.Context, change evaluator.Change) Outcome {
	key := change.Key.String()
	now := e.now().UTC()
	if !e.gate(key, now) {
		return Suppressed
	}

	resolved := e.resolveResource(ctx, change.Key, now)

	audit := &types.Alert{
		AlertKey:          key,
		ResourceType:      change.Key.ResourceType,
		ResourceName:      change.Key.Name,
		ResourceNamespace: change.Key.Namespace,
		Status:            change.Key.Status,
		Message:           recoveryMessage(change, now),
		CreatedAt:         now,
		ResolvedAt:        &now,
		IsResolved:        true,
	}
	if err := e.store.Create(ctx, audit); err != nil {
		e.storeError("create", key, err)
	}

	e.logger.Info().
		Str("alert_key", key).
		Str("resource", change.Key.Identity()).
		Int("resolved", resolved).
		Msg("Resource recovered")

	e.notify(key, change.Subject, change.Body)
	return Recovered
}

func (e *Engine) removed(ctx context.Context, change evaluator.Change) Outcome {
	resolved := e.resolveResource(ctx, change.Key, e.now().UTC())
	e.logger.Info().
		Str("resource_type", change.Key.ResourceType).
		Str("resource", change.Key.Identity()).
		Int("resolved", resolved).
		Msg("Resource removed, active alerts resolved")
	return Removed
}

// resolveResource resolves the active alerts of the resource named by key,
// restricted to key.SubComponent when set. Failures are isolated per alert.
// Caller holds e.mu.
func (e *Engine) resolveResource(ctx context.Context, key alertkey.Key, at time.Time) int {
	active, err := e.store.FindActiveByResource(ctx, key.ResourceType, key.Name, key.Namespace)
	if err != nil {
		e.storeError("find_active_by_resource", key.Identity(), err)
		return 0
	}

	resolved := 0
	for _, a := range active {
		if key.SubComponent != "" {
			k, err := alertkey.Decode(a.AlertKey)
			if err != nil {
				e.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("Skipping alert with undecodable key")
				continue
			}
			if k.SubComponent != key.SubComponent {
				continue
			}
		}
		if err := e.store.Resolve(ctx, a.ID, at); err != nil {
			e.storeError("resolve", a.AlertKey, err)
			continue
		}
		resolved++
		e.logger.Info().
			Str("alert_key", a.AlertKey).
			Str("alert_id", a.ID).
			Dur("duration", at.Sub(a.CreatedAt)).
			Msg("Alert resolved")
	}
	return resolved
}

func recoveryMessage(change evaluator.Change, at time.Time) string {
	prev := change.Previous
	if prev == "" {
		prev = alertkey.UnknownStatus
	}
	ts := at.Format(time.RFC3339)
	if change.Key.SubComponent != "" {
		return fmt.Sprintf("Container '%s' in %s '%s' has recovered from %s state at %s",
			change.Key.SubComponent, change.Key.ResourceType, change.Key.Identity(), prev, ts)
	}
	return fmt.Sprintf("%s '%s' has recovered from %s state at %s",
		titleCase(change.Key.ResourceType), change.Key.Identity(), prev, ts)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (e *Engine) storeError(op, key string, err error) {
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	e.logger.Error().Err(err).Str("operation", op).Str("alert_key", key).Msg("Alert store operation failed")
}

// notify queues a message for delivery. Callers hold e.mu, so queue order is
// the order in which the engine decided to notify.
func (e *Engine) notify(key, subject, body string) {
	if e.notifier == nil || e.closed {
		return
	}
	e.wg.Add(1)
	select {
	case e.queue <- notification{key: key, subject: subject, body: body}:
	default:
		e.wg.Done()
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		e.logger.Error().
			Str("alert_key", key).
			Str("subject", subject).
			Msg("Notification queue full, dropping notification")
	}
}

// deliver sends queued notifications one at a time; failures are logged and never retried
func (e *Engine) deliver() {
	defer close(e.done)
	for n := range e.queue {
		e.send(n)
		e.wg.Done()
	}
}

func (e *Engine) send(n notification) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := e.notifier.Send(ctx, n.subject, n.body); err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		e.logger.Error().
			Err(err).
			Str("alert_key", n.key).
			Str("subject", n.subject).
			Msg("Failed to send notification")
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}

// Wait blocks until every queued notification has been handled
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close stops accepting notifications, drains the queue and stops the worker
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()
	<-e.done
}

// Cleanup drops expired cooldown entries
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldown.Cleanup(e.now())
}

// ListAlerts returns alerts matching filter, newest first
func (e *Engine) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error) {
	alerts, err := e.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return alerts, nil
}

// ActiveAlerts returns up to limit unresolved alerts, newest first. limit <= 0 means all.
func (e *Engine) ActiveAlerts(ctx context.Context, limit int) ([]types.Alert, error) {
	alerts, err := e.ListAlerts(ctx, types.FilterActive)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

// ResolveAlert marks an alert resolved by operator request and sends a
// resolution notification. Resolving an already resolved alert is a no-op.
func (e *Engine) ResolveAlert(ctx context.Context, id string) (*types.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.IsResolved {
		return alert, nil
	}

	now := e.now().UTC()
	if err := e.store.Resolve(ctx, id, now); err != nil {
		e.storeError("resolve", alert.AlertKey, err)
		return nil, fmt.Errorf("resolving alert %s: %w", id, err)
	}
	alert.IsResolved = true
	alert.ResolvedAt = &now

	e.logger.Info().
		Str("alert_key", alert.AlertKey).
		Str("alert_id", id).
		Msg("Alert resolved manually")

	subject := fmt.Sprintf("RESOLVED: %s alert for %s", titleCase(alert.ResourceType), alert.ResourceRef())
	body := fmt.Sprintf("The following alert has been manually resolved:\n\nResource Type: %s\nResource: %s\nStatus: %s\nMessage: %s\nCreated: %s\nResolved: %s",
		alert.ResourceType, alert.ResourceRef(), alert.Status, alert.Message,
		alert.CreatedAt.Format(time.RFC3339), now.Format(time.RFC3339))
	e.notify(alert.AlertKey, subject, body)
	return alert, nil
}

// DeleteAlert removes an alert record
func (e *Engine) DeleteAlert(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Delete(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.storeError("delete", id, err)
		}
		return err
	}
	e.logger.Info().Str("alert_id", id).Msg("Alert deleted")
	return nil
}
