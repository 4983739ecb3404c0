package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Component represents a lifecycle-managed part of the process.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description is logged once a component starts.
type Description struct {
	Type    string
	Details string
}

// Describable is optionally implemented by components that report how they
// are configured.
type Describable interface {
	Describe() Description
}

// Aggregate folds component health into one status: any unhealthy
// component makes the whole unhealthy, otherwise any degraded one degrades it.
func Aggregate(items []Health) HealthStatus {
	status := StatusHealthy
	for _, h := range items {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
