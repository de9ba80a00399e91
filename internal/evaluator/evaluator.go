package evaluator

import (
	"fmt"
	"strings"

	"github.com/kubesentry/kubesentry/internal/alertkey"
	"github.com/kubesentry/kubesentry/internal/tracker"
	"github.com/kubesentry/kubesentry/internal/types"
	"github.com/rs/zerolog"
)

// restartThreshold is the restart count above which a container is alerted on
const restartThreshold = 5

// ChangeKind classifies a detected condition change
type ChangeKind int

const (
	Problem ChangeKind = iota
	Recovery
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Problem:
		return "problem"
	case Recovery:
		return "recovery"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Change represents a detected condition change on one resource
type Change struct {
	Kind ChangeKind
	Key  alertkey.Key
	// Subject and Body form the notification
	Subject string
	Body    string
	// Message is the short description persisted on the alert record
	Message string
	// Previous is the status a recovery recovered from
	Previous string
}

// waitingReasons are container waiting reasons that raise an alert
var waitingReasons = map[string]struct{}{
	"CrashLoopBackOff":           {},
	"ImagePullBackOff":           {},
	"ErrImagePull":               {},
	"CreateContainerConfigError": {},
	"CreateContainerError":       {},
}

func alertableWait(reason string) bool {
	_, ok := waitingReasons[reason]
	return ok
}

func problemPhase(phase string) bool {
	return phase == "Failed" || phase == "Pending"
}

// Evaluator compares fresh snapshots against the last observed state.
// It is driven by the reconciliation goroutine only.
type Evaluator struct {
	logger zerolog.Logger
	nodes  *tracker.Tracker[string]
	pods   *tracker.Tracker[types.PodStatus]
}

// NewEvaluator creates an evaluator with empty tracked state
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With().Str("component", "evaluator").Logger(),
		nodes:  tracker.New[string](),
		pods:   tracker.New[types.PodStatus](),
	}
}

// TrackedNodes returns how many nodes are tracked
func (e *Evaluator) TrackedNodes() int { return e.nodes.Len() }

// TrackedPods returns how many pods are tracked
func (e *Evaluator) TrackedPods() int { return e.pods.Len() }

// EvaluateNodes processes a node snapshot and returns the resulting changes
func (e *Evaluator) EvaluateNodes(nodes []types.Node) []Change {
	var changes []Change
	seen := make(map[string]struct{}, len(nodes))

	for _, n := range nodes {
		seen[n.Name] = struct{}{}
		prev, had := e.nodes.Observe(n.Name, n.Status())

		if !n.Ready {
			changes = append(changes, nodeNotReady(n))
			continue
		}
		if had && prev == alertkey.StatusNotReady {
			changes = append(changes, nodeRecovered(n))
		}
	}

	for _, name := range e.nodes.Missing(seen) {
		e.logger.Info().Str("node", name).Msg("Node no longer present, removing tracking")
		changes = append(changes, Change{
			Kind:    Removed,
			Key:     alertkey.Resource(types.ResourceNode, "", name),
			Message: fmt.Sprintf("Node %s was removed from the cluster", name),
		})
		e.nodes.Forget(name)
	}

	return changes
}

// EvaluatePods processes a pod snapshot and returns the resulting changes
func (e *Evaluator) EvaluatePods(pods []types.Pod) []Change {
	var changes []Change
	seen := make(map[string]struct{}, len(pods))

	for _, p := range pods {
		id := p.Identity()
		seen[id] = struct{}{}
		prev, had := e.pods.Observe(id, types.StatusOf(p))

		if problemPhase(p.Phase) {
			changes = append(changes, podPhaseProblem(p))
		}
		for _, c := range p.Containers {
			if c.RestartCount > restartThreshold {
				changes = append(changes, containerRestarts(p, c))
			}
			if c.State == types.ContainerWaiting && alertableWait(c.Reason) {
				changes = append(changes, containerWaiting(p, c))
			}
		}

		if !had {
			continue
		}
		if p.Phase == "Running" && problemPhase(prev.Phase) {
			changes = append(changes, podRecovered(p, prev.Phase))
		}
		for _, c := range p.Containers {
			if c.State != types.ContainerRunning {
				continue
			}
			pc, ok := prev.Containers[c.Name]
			if ok && pc.State == types.ContainerWaiting && alertableWait(pc.Reason) {
				changes = append(changes, containerRecovered(p, c, pc.Reason))
			}
		}
	}

	for _, id := range e.pods.Missing(seen) {
		namespace, name, _ := strings.Cut(id, "/")
		e.logger.Info().Str("pod", id).Msg("Pod no longer present, removing tracking")
		changes = append(changes, Change{
			Kind:    Removed,
			Key:     alertkey.Resource(types.ResourcePod, namespace, name),
			Message: fmt.Sprintf("Pod %s was deleted", id),
		})
		e.pods.Forget(id)
	}

	return changes
}

func nodeNotReady(n types.Node) Change {
	transition := "unknown"
	if !n.LastTransition.IsZero() {
		transition = n.LastTransition.UTC().Format("2006-01-02 15:04:05")
	}
	return Change{
		Kind:    Problem,
		Key:     alertkey.Node(n.Name, alertkey.StatusNotReady),
		Subject: fmt.Sprintf("Node %s is NotReady", n.Name),
		Body: fmt.Sprintf("Kubernetes Node Alert: %s is NotReady\n\nNode: %s\nStatus: NotReady\nReason: %s\nMessage: %s\nLast Transition: %s",
			n.Name, n.Name, orDefault(n.Reason, "Not available"), orDefault(n.Message, "Not available"), transition),
		Message: fmt.Sprintf("Node NotReady: %s - %s", orDefault(n.Reason, "Unknown reason"), orDefault(n.Message, "No details")),
	}
}

func nodeRecovered(n types.Node) Change {
	return Change{
		Kind:     Recovery,
		Key:      alertkey.Node(n.Name, alertkey.StatusRecovery),
		Subject:  fmt.Sprintf("Node %s recovered", n.Name),
		Body:     fmt.Sprintf("Kubernetes Node Recovery: %s is Ready\n\nNode: %s\nStatus: Ready", n.Name, n.Name),
		Previous: alertkey.StatusNotReady,
	}
}

func podPhaseProblem(p types.Pod) Change {
	return Change{
		Kind:    Problem,
		Key:     alertkey.Pod(p.Namespace, p.Name, p.Phase),
		Subject: fmt.Sprintf("Pod %s is %s", p.Name, p.Phase),
		Body: fmt.Sprintf("Kubernetes Pod Alert: %s is in %s state\n\nPod: %s\nNamespace: %s\nPhase: %s\nReason: %s\nMessage: %s",
			p.Identity(), p.Phase, p.Name, p.Namespace, p.Phase, orDefault(p.Reason, "Not available"), orDefault(p.Message, "Not available")),
		Message: fmt.Sprintf("Pod %s: %s - %s", p.Phase, orDefault(p.Reason, "Unknown reason"), orDefault(p.Message, "No details")),
	}
}

func containerRestarts(p types.Pod, c types.Container) Change {
	return Change{
		Kind:    Problem,
		Key:     alertkey.Container(p.Namespace, p.Name, c.Name, alertkey.StatusRestarts),
		Subject: fmt.Sprintf("Container %s has excessive restarts", c.Name),
		Body: fmt.Sprintf("Kubernetes Container Alert: %s in pod %s has restarted %d times\n\nPod: %s\nNamespace: %s\nContainer: %s\nRestart Count: %d",
			c.Name, p.Identity(), c.RestartCount, p.Name, p.Namespace, c.Name, c.RestartCount),
		Message: fmt.Sprintf("Container %s restarted %d times", c.Name, c.RestartCount),
	}
}

func containerWaiting(p types.Pod, c types.Container) Change {
	return Change{
		Kind:    Problem,
		Key:     alertkey.Container(p.Namespace, p.Name, c.Name, c.Reason),
		Subject: fmt.Sprintf("Container %s is in %s", c.Name, c.Reason),
		Body: fmt.Sprintf("Kubernetes Container Alert: %s in pod %s is in %s\n\nPod: %s\nNamespace: %s\nContainer: %s\nStatus: %s\nMessage: %s",
			c.Name, p.Identity(), c.Reason, p.Name, p.Namespace, c.Name, c.Reason, orDefault(c.Message, "No message")),
		Message: fmt.Sprintf("Container %s: %s", c.Reason, orDefault(c.Message, "No message")),
	}
}

func podRecovered(p types.Pod, prevPhase string) Change {
	return Change{
		Kind:    Recovery,
		Key:     alertkey.Pod(p.Namespace, p.Name, alertkey.StatusRecovery),
		Subject: fmt.Sprintf("Pod %s recovered", p.Name),
		Body: fmt.Sprintf("Kubernetes Pod Recovery: %s is now Running\n\nPod: %s\nNamespace: %s\nPrevious Status: %s\nCurrent Status: Running",
			p.Identity(), p.Name, p.Namespace, prevPhase),
		Previous: prevPhase,
	}
}

func containerRecovered(p types.Pod, c types.Container, prevReason string) Change {
	return Change{
		Kind:    Recovery,
		Key:     alertkey.Container(p.Namespace, p.Name, c.Name, alertkey.StatusContainerRecovery),
		Subject: fmt.Sprintf("Container %s recovered", c.Name),
		Body: fmt.Sprintf("Kubernetes Container Recovery: %s in pod %s is now Running\n\nPod: %s\nNamespace: %s\nContainer: %s\nPrevious Status: %s\nCurrent Status: Running",
			c.Name, p.Identity(), p.Name, p.Namespace, c.Name, prevReason),
		Previous: prevReason,
	}
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
