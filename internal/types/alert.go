package types

import "time"

// Alert is a persisted alert record. At most one unresolved record exists per AlertKey.
type Alert struct {
	ID                string     `json:"id"`
	AlertKey          string     `json:"alert_key"`
	ResourceType      string     `json:"resource_type"`
	ResourceName      string     `json:"resource_name"`
	ResourceNamespace string     `json:"resource_namespace,omitempty"`
	Status            string     `json:"status"`
	Message           string     `json:"message"`
	CreatedAt         time.Time  `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	IsResolved        bool       `json:"is_resolved"`
}

// ResourceRef renders the resource as "namespace/name", or just the name for cluster-scoped kinds.
func (a Alert) ResourceRef() string {
	if a.ResourceNamespace == "" {
		return a.ResourceName
	}
	return a.ResourceNamespace + "/" + a.ResourceName
}

// AlertFilter selects alerts by resolution state
type AlertFilter string

const (
	FilterActive   AlertFilter = "active"
	FilterResolved AlertFilter = "resolved"
	FilterAll      AlertFilter = "all"
)

// ParseAlertFilter maps a query value to a filter. Empty defaults to active.
func ParseAlertFilter(s string) (AlertFilter, bool) {
	switch AlertFilter(s) {
	case "", FilterActive:
		return FilterActive, true
	case FilterResolved:
		return FilterResolved, true
	case FilterAll:
		return FilterAll, true
	}
	return "", false
}

// Matches reports whether the alert passes the filter
func (f AlertFilter) Matches(a Alert) bool {
	switch f {
	case FilterActive:
		return !a.IsResolved
	case FilterResolved:
		return a.IsResolved
	default:
		return true
	}
}
