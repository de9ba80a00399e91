package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kubesentry/kubesentry/internal/alerter"
	"github.com/kubesentry/kubesentry/internal/collector"
	"github.com/kubesentry/kubesentry/internal/store"
	"github.com/kubesentry/kubesentry/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource serves whatever snapshot the test last set
type scriptedSource struct {
	mu       sync.Mutex
	nodes    []types.Node
	pods     []types.Pod
	nodesErr error
	podsErr  error
	panics   int
}

func (s *scriptedSource) ListNodes(context.Context) ([]types.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics > 0 {
		s.panics--
		panic("unexpected nil")
	}
	return s.nodes, s.nodesErr
}

func (s *scriptedSource) ListPods(context.Context) ([]types.Pod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pods, s.podsErr
}

func (s *scriptedSource) set(fn func(*scriptedSource)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

type recordingSink struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingSink) Send(_ context.Context, subject, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

func (r *recordingSink) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.subjects...)
}

type fixture struct {
	src    *scriptedSource
	sink   *recordingSink
	store  *store.MemoryStore
	engine *alerter.Engine
	mon    *Monitor
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		src:   &scriptedSource{},
		sink:  &recordingSink{},
		store: store.NewMemoryStore(),
	}
	f.engine = alerter.NewEngine(f.store, f.sink, alerter.DefaultCooldown, zerolog.Nop())
	f.mon = New(f.src, f.engine, opts, zerolog.Nop())
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) alerts(t *testing.T, filter types.AlertFilter) []types.Alert {
	t.Helper()
	alerts, err := f.mon.ListAlerts(context.Background(), filter)
	require.NoError(t, err)
	return alerts
}

func alertKeys(alerts []types.Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.AlertKey)
	}
	return out
}

func TestRunCycle_NodeNotReadyThenReady(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.src.set(func(s *scriptedSource) {
		s.nodes = []types.Node{
			{Name: "node-1", Ready: true},
			{Name: "node-3", Ready: false, Reason: "NodeNotReady", Message: "Node is not ready"},
		}
	})
	f.mon.RunCycle(ctx)
	f.engine.Wait()

	assert.Equal(t, []string{"Node node-3 is NotReady"}, f.sink.sent())
	assert.Equal(t, []string{"node:node-3:NotReady"}, alertKeys(f.alerts(t, types.FilterActive)))

	// persisting problem: deduplicated, nothing new
	f.mon.RunCycle(ctx)
	f.engine.Wait()
	assert.Len(t, f.sink.sent(), 1)
	assert.Len(t, f.alerts(t, types.FilterAll), 1)

	f.src.set(func(s *scriptedSource) {
		s.nodes = []types.Node{{Name: "node-1", Ready: true}, {Name: "node-3", Ready: true}}
	})
	f.mon.RunCycle(ctx)
	f.engine.Wait()

	assert.Equal(t, []string{"Node node-3 is NotReady", "Node node-3 recovered"}, f.sink.sent())
	assert.Empty(t, f.alerts(t, types.FilterActive))
	resolved := f.alerts(t, types.FilterResolved)
	assert.ElementsMatch(t, []string{"node:node-3:NotReady", "node:node-3:Recovery"}, alertKeys(resolved))
	for _, a := range resolved {
		assert.True(t, a.IsResolved)
		assert.NotNil(t, a.ResolvedAt)
	}
}

func TestRunCycle_PodDisappearsResolvesAlerts(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.src.set(func(s *scriptedSource) {
		s.pods = []types.Pod{{
			Namespace: "default", Name: "app-pod-1", Phase: "Running",
			Containers: []types.Container{{Name: "web", State: types.ContainerRunning, RestartCount: 9}},
		}}
	})
	f.mon.RunCycle(ctx)
	assert.Equal(t, []string{"pod:default/app-pod-1:web:restarts"}, alertKeys(f.alerts(t, types.FilterActive)))

	f.src.set(func(s *scriptedSource) { s.pods = nil })
	f.mon.RunCycle(ctx)
	f.engine.Wait()

	assert.Empty(t, f.alerts(t, types.FilterActive))
	assert.Len(t, f.alerts(t, types.FilterAll), 1, "removal creates no record")
	assert.Len(t, f.sink.sent(), 1)
	assert.Zero(t, f.mon.View().TrackedPods)
}

func TestRunCycle_FailedPodWithCrashLoop(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.src.set(func(s *scriptedSource) {
		s.pods = []types.Pod{{
			Namespace: "app", Name: "api", Phase: "Failed",
			Containers: []types.Container{{Name: "c1", State: types.ContainerWaiting, Reason: "CrashLoopBackOff"}},
		}}
	})
	f.mon.RunCycle(ctx)
	assert.ElementsMatch(t, []string{"pod:app/api:Failed", "pod:app/api:c1:CrashLoopBackOff"},
		alertKeys(f.alerts(t, types.FilterActive)))

	// container recovers first, pod still failed
	f.src.set(func(s *scriptedSource) {
		s.pods[0].Containers[0] = types.Container{Name: "c1", State: types.ContainerRunning}
	})
	f.mon.RunCycle(ctx)
	assert.Equal(t, []string{"pod:app/api:Failed"}, alertKeys(f.alerts(t, types.FilterActive)))

	f.src.set(func(s *scriptedSource) { s.pods[0].Phase = "Running" })
	f.mon.RunCycle(ctx)
	assert.Empty(t, f.alerts(t, types.FilterActive))
	f.engine.Wait()
}

func TestRunCycle_FetchFailureSkipsKind(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.src.set(func(s *scriptedSource) {
		s.nodes = []types.Node{{Name: "node-1", Ready: true}}
		s.pods = []types.Pod{{Namespace: "db", Name: "pg", Phase: "Pending"}}
	})
	f.mon.RunCycle(ctx)
	require.Equal(t, []string{"pod:db/pg:Pending"}, alertKeys(f.alerts(t, types.FilterActive)))

	f.src.set(func(s *scriptedSource) { s.podsErr = errors.New("apiserver timeout") })
	f.mon.RunCycle(ctx)

	v := f.mon.View()
	require.NotNil(t, v)
	assert.True(t, v.PodsStale)
	assert.False(t, v.NodesStale)
	assert.Len(t, v.Pods, 1, "previous pods kept in view")
	assert.Equal(t, 1, v.TrackedPods, "tracker untouched")
	assert.Equal(t, []string{"pod:db/pg:Pending"}, alertKeys(f.alerts(t, types.FilterActive)), "no spurious removal")
	f.engine.Wait()
}

func TestRunCycle_FallbackSnapshotIsDisplayOnly(t *testing.T) {
	f := newFixture(t, Options{Fallback: collector.NewMockCollector(zerolog.Nop())})
	ctx := context.Background()

	f.src.set(func(s *scriptedSource) {
		s.nodes = []types.Node{{Name: "prod-node-9", Ready: false, Reason: "KubeletNotReady"}}
	})
	f.mon.RunCycle(ctx)
	f.engine.Wait()
	require.Equal(t, []string{"node:prod-node-9:NotReady"}, alertKeys(f.alerts(t, types.FilterActive)))
	require.Equal(t, []string{"Node prod-node-9 is NotReady"}, f.sink.sent())

	// API unreachable: demo data is shown, nothing is evaluated
	f.src.set(func(s *scriptedSource) {
		s.nodesErr = errors.New("connection refused")
		s.podsErr = errors.New("connection refused")
	})
	f.mon.RunCycle(ctx)
	f.engine.Wait()

	v := f.mon.View()
	require.NotNil(t, v)
	assert.True(t, v.NodesFallback)
	assert.True(t, v.PodsFallback)
	assert.Len(t, v.Nodes, 3)
	assert.Len(t, v.Pods, 15)
	assert.Equal(t, 1, v.TrackedNodes, "tracker untouched")
	assert.Zero(t, v.TrackedPods)
	assert.Equal(t, []string{"node:prod-node-9:NotReady"}, alertKeys(f.alerts(t, types.FilterActive)))
	assert.Len(t, f.alerts(t, types.FilterAll), 1, "no alerts from demo data")
	assert.Len(t, f.sink.sent(), 1, "no notifications from demo data")

	// API back, outage still ongoing: the original alert is still active
	f.src.set(func(s *scriptedSource) { s.nodesErr, s.podsErr = nil, nil })
	f.mon.RunCycle(ctx)
	f.engine.Wait()

	v = f.mon.View()
	assert.False(t, v.NodesFallback)
	assert.Equal(t, []string{"node:prod-node-9:NotReady"}, alertKeys(f.alerts(t, types.FilterActive)))
	assert.Len(t, f.sink.sent(), 1)
}

func TestGetSnapshot(t *testing.T) {
	f := newFixture(t, Options{DashboardAlertLimit: 2})
	ctx := context.Background()

	d, err := f.mon.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.NotNil(t, d.Nodes)
	assert.NotNil(t, d.Pods)
	assert.Empty(t, d.ActiveAlerts)

	f.src.set(func(s *scriptedSource) {
		s.nodes = []types.Node{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	})
	f.mon.RunCycle(ctx)
	f.engine.Wait()

	d, err = f.mon.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Nodes, 3)
	assert.Len(t, d.ActiveAlerts, 2, "limited")
	assert.False(t, d.UpdatedAt.IsZero())
}

func TestResolveAndDeleteThroughMonitor(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.src.set(func(s *scriptedSource) { s.nodes = []types.Node{{Name: "n1"}, {Name: "n2"}} })
	f.mon.RunCycle(ctx)
	active := f.alerts(t, types.FilterActive)
	require.Len(t, active, 2)

	resolved, err := f.mon.ResolveAlert(ctx, active[0].ID)
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)

	require.NoError(t, f.mon.DeleteAlert(ctx, active[1].ID))
	_, err = f.mon.ResolveAlert(ctx, active[1].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Empty(t, f.alerts(t, types.FilterActive))
	f.engine.Wait()
	assert.Contains(t, f.sink.sent(), "RESOLVED: Node alert for "+active[0].ResourceName)
}

func TestRun_RecoversFromPanicAndStops(t *testing.T) {
	f := newFixture(t, Options{PollInterval: 5 * time.Millisecond, FailureBackoff: 5 * time.Millisecond})
	f.src.set(func(s *scriptedSource) {
		s.panics = 1
		s.nodes = []types.Node{{Name: "node-1", Ready: true}}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.mon.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		v := f.mon.View()
		return v != nil && len(v.Nodes) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	f.engine.Wait()
}
