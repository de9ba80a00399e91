// Package alertkey encodes condition descriptors to the canonical key strings used for
// deduplication and correlation, and decodes them back.
//
// Canonical forms:
//
//	type:identity:status          node:node-3:NotReady
//	type:identity:sub:status      pod:default/web-1:nginx:CrashLoopBackOff
//
// The identity of namespaced resources is "namespace/name".
package alertkey

import (
	"errors"
	"fmt"
	"strings"
)

const (
	separator = ":"

	// UnknownStatus is substituted when a decoded key carries no status component
	UnknownStatus = "Unknown"

	StatusRecovery          = "Recovery"
	StatusContainerRecovery = "ContainerRecovery"
	StatusRestarts          = "restarts"
	StatusNotReady          = "NotReady"
)

// ErrMalformed is returned when a key string cannot be decoded
var ErrMalformed = errors.New("malformed alert key")

// Key names one logical condition instance on one resource
type Key struct {
	ResourceType string
	Namespace    string
	Name         string
	SubComponent string
	Status       string
}

// Identity returns "namespace/name", or the name for cluster-scoped resources
func (k Key) Identity() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// String is Encode
func (k Key) String() string {
	return Encode(k)
}

// Encode renders the canonical form of k
func Encode(k Key) string {
	parts := []string{k.ResourceType, k.Identity()}
	if k.SubComponent != "" {
		parts = append(parts, k.SubComponent)
	}
	status := k.Status
	if status == "" {
		status = UnknownStatus
	}
	parts = append(parts, status)
	return strings.Join(parts, separator)
}

// Decode parses a canonical key. Two to four components are accepted; a missing status
// decodes as UnknownStatus.
func Decode(s string) (Key, error) {
	parts := strings.Split(s, separator)
	if len(parts) < 2 || len(parts) > 4 {
		return Key{}, fmt.Errorf("%w: %q has %d components", ErrMalformed, s, len(parts))
	}
	if parts[0] == "" || parts[1] == "" {
		return Key{}, fmt.Errorf("%w: %q lacks type or identity", ErrMalformed, s)
	}

	k := Key{ResourceType: parts[0], Status: UnknownStatus}
	if ns, name, ok := strings.Cut(parts[1], "/"); ok {
		k.Namespace, k.Name = ns, name
	} else {
		k.Name = parts[1]
	}

	switch len(parts) {
	case 3:
		k.Status = parts[2]
	case 4:
		k.SubComponent = parts[2]
		k.Status = parts[3]
	}
	if k.Status == "" {
		k.Status = UnknownStatus
	}
	return k, nil
}

// Node builds a node condition key
func Node(name, status string) Key {
	return Key{ResourceType: "node", Name: name, Status: status}
}

// Pod builds a whole-pod condition key
func Pod(namespace, name, status string) Key {
	return Key{ResourceType: "pod", Namespace: namespace, Name: name, Status: status}
}

// Container builds a per-container condition key on a pod
func Container(namespace, pod, container, status string) Key {
	return Key{ResourceType: "pod", Namespace: namespace, Name: pod, SubComponent: container, Status: status}
}

// Resource builds a key naming only the resource, as used for removal
func Resource(resourceType, namespace, name string) Key {
	return Key{ResourceType: resourceType, Namespace: namespace, Name: name}
}
