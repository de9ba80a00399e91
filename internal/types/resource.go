package types

import "time"

const (
	ResourceNode = "node"
	ResourcePod  = "pod"
)

// Container states as seen in a pod snapshot
const (
	ContainerRunning    = "Running"
	ContainerWaiting    = "Waiting"
	ContainerTerminated = "Terminated"
	ContainerUnknown    = "Unknown"
)

// Node is a point-in-time read of one cluster node
type Node struct {
	Name           string    `json:"name"`
	Ready          bool      `json:"ready"`
	Reason         string    `json:"reason,omitempty"`
	Message        string    `json:"message,omitempty"`
	LastTransition time.Time `json:"last_transition,omitempty"`
	Roles          []string  `json:"roles"`
	KubeletVersion string    `json:"version"`
	CPU            string    `json:"cpu"`
	Memory         string    `json:"memory"`
}

// Status returns "Ready" or "NotReady"
func (n Node) Status() string {
	if n.Ready {
		return "Ready"
	}
	return "NotReady"
}

// Pod is a point-in-time read of one pod and its containers
type Pod struct {
	Namespace  string      `json:"namespace"`
	Name       string      `json:"name"`
	Phase      string      `json:"phase"`
	Reason     string      `json:"reason,omitempty"`
	Message    string      `json:"message,omitempty"`
	NodeName   string      `json:"node,omitempty"`
	PodIP      string      `json:"ip,omitempty"`
	Containers []Container `json:"containers"`
}

// Identity is the tracking identity of the pod, "namespace/name"
func (p Pod) Identity() string {
	return p.Namespace + "/" + p.Name
}

// Container is the observed status of one container in a pod
type Container struct {
	Name         string `json:"name"`
	State        string `json:"state"`
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
	RestartCount int32  `json:"restarts"`
	Ready        bool   `json:"ready"`
}

// PodStatus is the composite status remembered between cycles for one pod
type PodStatus struct {
	Phase      string
	Containers map[string]ContainerStatus
}

// ContainerStatus is the remembered part of a container's status
type ContainerStatus struct {
	State  string
	Reason string
	Ready  bool
}

// StatusOf condenses a pod snapshot into the status tracked between cycles
func StatusOf(p Pod) PodStatus {
	st := PodStatus{
		Phase:      p.Phase,
		Containers: make(map[string]ContainerStatus, len(p.Containers)),
	}
	for _, c := range p.Containers {
		st.Containers[c.Name] = ContainerStatus{State: c.State, Reason: c.Reason, Ready: c.Ready}
	}
	return st
}
