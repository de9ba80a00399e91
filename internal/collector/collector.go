// Package collector reads node and pod snapshots from the Kubernetes API.
package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kubesentry/kubesentry/internal/types"
	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	defaultListTimeout = 30 * time.Second
	roleLabelPrefix    = "node-role.kubernetes.io/"
)

// Source produces point-in-time snapshots of cluster resources
type Source interface {
	ListNodes(ctx context.Context) ([]types.Node, error)
	ListPods(ctx context.Context) ([]types.Pod, error)
}

// KubeCollector lists nodes and pods through a Kubernetes clientset
type KubeCollector struct {
	client  kubernetes.Interface
	logger  zerolog.Logger
	timeout time.Duration
}

// NewKubeCollector creates a collector over client
func NewKubeCollector(client kubernetes.Interface, logger zerolog.Logger) *KubeCollector {
	return &KubeCollector{
		client:  client,
		logger:  logger.With().Str("component", "collector").Logger(),
		timeout: defaultListTimeout,
	}
}

// ListNodes returns every node in the cluster
func (c *KubeCollector) ListNodes(ctx context.Context) ([]types.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	nodes := make([]types.Node, 0, len(list.Items))
	for i := range list.Items {
		nodes = append(nodes, ConvertNode(&list.Items[i]))
	}
	c.logger.Debug().Int("count", len(nodes)).Msg("Nodes listed")
	return nodes, nil
}

// ListPods returns every pod across all namespaces
func (c *KubeCollector) ListPods(ctx context.Context) ([]types.Pod, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}

	pods := make([]types.Pod, 0, len(list.Items))
	for i := range list.Items {
		pods = append(pods, ConvertPod(&list.Items[i]))
	}
	c.logger.Debug().Int("count", len(pods)).Msg("Pods listed")
	return pods, nil
}

// ConvertNode maps an API node to a snapshot. A node without a Ready
// condition is reported not ready.
func ConvertNode(n *corev1.Node) types.Node {
	out := types.Node{
		Name:           n.Name,
		KubeletVersion: n.Status.NodeInfo.KubeletVersion,
		Roles:          nodeRoles(n.Labels),
	}
	if q, ok := n.Status.Capacity[corev1.ResourceCPU]; ok {
		out.CPU = q.String()
	}
	if q, ok := n.Status.Capacity[corev1.ResourceMemory]; ok {
		out.Memory = q.String()
	}

	for _, cond := range n.Status.Conditions {
		if cond.Type != corev1.NodeReady {
			continue
		}
		out.Ready = cond.Status == corev1.ConditionTrue
		out.Reason = cond.Reason
		out.Message = cond.Message
		out.LastTransition = cond.LastTransitionTime.Time
		break
	}
	return out
}

func nodeRoles(labels map[string]string) []string {
	var roles []string
	for k := range labels {
		if role, ok := strings.CutPrefix(k, roleLabelPrefix); ok && role != "" {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return roles
}

// ConvertPod maps an API pod and its container statuses to a snapshot
func ConvertPod(p *corev1.Pod) types.Pod {
	out := types.Pod{
		Namespace: p.Namespace,
		Name:      p.Name,
		Phase:     string(p.Status.Phase),
		Reason:    p.Status.Reason,
		Message:   p.Status.Message,
		NodeName:  p.Spec.NodeName,
		PodIP:     p.Status.PodIP,
	}
	if out.Phase == "" {
		out.Phase = string(corev1.PodUnknown)
	}

	out.Containers = make([]types.Container, 0, len(p.Status.ContainerStatuses))
	for _, cs := range p.Status.ContainerStatuses {
		c := types.Container{
			Name:         cs.Name,
			State:        types.ContainerUnknown,
			RestartCount: cs.RestartCount,
			Ready:        cs.Ready,
		}
		switch {
		case cs.State.Running != nil:
			c.State = types.ContainerRunning
		case cs.State.Waiting != nil:
			c.State = types.ContainerWaiting
			c.Reason = cs.State.Waiting.Reason
			c.Message = cs.State.Waiting.Message
		case cs.State.Terminated != nil:
			c.State = types.ContainerTerminated
			c.Reason = cs.State.Terminated.Reason
			c.Message = cs.State.Terminated.Message
		}
		out.Containers = append(out.Containers, c)
	}
	return out
}
