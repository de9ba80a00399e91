package collector

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
)

var (
	demoNamespaces = []string{"default", "kube-system", "monitoring", "app", "database"}
	demoPhases     = []corev1.PodPhase{corev1.PodRunning, corev1.PodRunning, corev1.PodPending, corev1.PodRunning, corev1.PodFailed}
	demoPlacement  = []string{"node-1", "node-2", "node-1", "", "node-3"}
)

// NewMockCollector returns a collector over a fake clientset seeded with a
// small demo cluster: three nodes (node-3 NotReady) and fifteen pods across
// five namespaces in a mix of healthy and failing states.
func NewMockCollector(logger zerolog.Logger) *KubeCollector {
	objs := DemoObjects(time.Now())
	logger.Info().Int("objects", len(objs)).Msg("Using mock Kubernetes cluster")
	return NewKubeCollector(fake.NewSimpleClientset(objs...), logger)
}

// DemoObjects builds the demo cluster's nodes and pods
func DemoObjects(now time.Time) []runtime.Object {
	var objs []runtime.Object
	for i := 0; i < 3; i++ {
		objs = append(objs, demoNode(i, now))
	}
	for nsIdx, ns := range demoNamespaces {
		for i := 0; i < 3; i++ {
			objs = append(objs, demoPod(nsIdx, ns, i))
		}
	}
	return objs
}

func demoNode(i int, now time.Time) *corev1.Node {
	role := "worker"
	if i == 0 {
		role = "master"
	}
	cond := corev1.NodeCondition{
		Type:               corev1.NodeReady,
		Status:             corev1.ConditionTrue,
		Reason:             "KubeletReady",
		Message:            "kubelet is posting ready status",
		LastTransitionTime: metav1.NewTime(now),
	}
	if i == 2 {
		cond.Status = corev1.ConditionFalse
		cond.Reason = "NodeNotReady"
		cond.Message = "Node is not ready"
	}

	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{
			Name:   fmt.Sprintf("node-%d", i+1),
			Labels: map[string]string{roleLabelPrefix + role: ""},
		},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{cond},
			NodeInfo: corev1.NodeSystemInfo{
				KubeletVersion:          fmt.Sprintf("v1.21.%d", i),
				OperatingSystem:         "linux",
				Architecture:            "amd64",
				ContainerRuntimeVersion: "containerd://1.4.6",
			},
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(fmt.Sprintf("%d", 2+i*2)),
				corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%dGi", 4+i*4)),
			},
		},
	}
}

func demoPod(nsIdx int, ns string, i int) *corev1.Pod {
	idx := nsIdx + i
	phase := demoPhases[idx%len(demoPhases)]

	var statuses []corev1.ContainerStatus
	for j := 0; j < 1+i%2; j++ {
		cs := corev1.ContainerStatus{
			Name:  fmt.Sprintf("container-%d", j+1),
			Image: "k8s.gcr.io/pause:3.5",
			Ready: phase == corev1.PodRunning,
		}
		switch phase {
		case corev1.PodRunning:
			cs.State.Running = &corev1.ContainerStateRunning{}
		case corev1.PodPending:
			if idx%3 == 0 {
				cs.State.Waiting = &corev1.ContainerStateWaiting{
					Reason:  "ImagePullBackOff",
					Message: "Back-off pulling image example.com/my-app:latest - Error: ErrImagePull",
				}
			} else {
				cs.State.Waiting = &corev1.ContainerStateWaiting{
					Reason:  "ContainerCreating",
					Message: "Container is being created",
				}
			}
		case corev1.PodFailed:
			cs.RestartCount = int32(5 + i)
			if j == 0 {
				cs.State.Waiting = &corev1.ContainerStateWaiting{
					Reason:  "CrashLoopBackOff",
					Message: "Back-off restarting failed container",
				}
			} else {
				cs.State.Terminated = &corev1.ContainerStateTerminated{
					Reason:   "Error",
					ExitCode: 1,
					Message:  "Container exited with error",
				}
			}
		}
		statuses = append(statuses, cs)
	}

	containers := make([]corev1.Container, 0, len(statuses))
	for _, cs := range statuses {
		containers = append(containers, corev1.Container{Name: cs.Name, Image: cs.Image})
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s-pod-%d", ns, i+1),
			Namespace: ns,
		},
		Spec: corev1.PodSpec{
			NodeName:   demoPlacement[idx%len(demoPlacement)],
			Containers: containers,
		},
		Status: corev1.PodStatus{
			Phase:             phase,
			ContainerStatuses: statuses,
		},
	}
	if phase == corev1.PodRunning {
		pod.Status.PodIP = fmt.Sprintf("10.0.%d.%d", nsIdx, i+1)
	}
	return pod
}
