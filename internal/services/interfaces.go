package services

import (
	"context"
	"time"
)

// ServiceState represents the current state of a managed service.
type ServiceState string

const (
	StateUnknown  ServiceState = "Unknown"
	StateWaiting  ServiceState = "Waiting" // queued behind unready dependencies, process never spawned
	StateStarting ServiceState = "Starting"
	StateRunning  ServiceState = "Running"
	StateStopping ServiceState = "Stopping"
	StateStopped  ServiceState = "Stopped"
	StateFailed   ServiceState = "Failed"
	StateRetrying ServiceState = "Retrying" // crashed, restart pending after backoff
)

// HealthStatus represents the health of a service as seen by its probe.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "Unknown"
	HealthHealthy   HealthStatus = "Healthy"
	HealthUnhealthy HealthStatus = "Unhealthy"
	HealthChecking  HealthStatus = "Checking"
)

// Service is the core interface that all managed services implement.
type Service interface {
	// Lifecycle management
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error

	// State management
	GetState() ServiceState
	GetHealth() HealthStatus
	GetLastError() error

	// Service metadata
	GetLabel() string
	GetDependencies() []string

	// State change notifications
	// The service calls this callback whenever its state or health changes.
	SetStateChangeCallback(callback StateChangeCallback)
}

// StateChangeCallback is called when a service's state changes.
type StateChangeCallback func(label string, oldState, newState ServiceState, health HealthStatus, err error)

// StateUpdater is an optional interface for services that allow external
// state updates. The orchestrator uses it to park services in StateWaiting
// when a dependency never becomes ready.
type StateUpdater interface {
	UpdateState(state ServiceState, health HealthStatus, err error)
}

// HealthChecker is an optional interface for services that support health checking.
type HealthChecker interface {
	// CheckHealth performs a health check and returns the current health status
	CheckHealth(ctx context.Context) (HealthStatus, error)

	// GetHealthCheckInterval returns the interval at which health checks should be performed
	GetHealthCheckInterval() time.Duration
}

// RuntimeInfo carries process-level facts about a running service.
type RuntimeInfo struct {
	PID          int
	RestartCount int
	StartedAt    time.Time
}

// RuntimeInfoProvider is an optional interface for services backed by an
// operating-system process.
type RuntimeInfoProvider interface {
	GetRuntimeInfo() RuntimeInfo
}

// ServiceRegistry manages all registered services.
type ServiceRegistry interface {
	// Register adds a service to the registry
	Register(service Service) error

	// Unregister removes a service from the registry
	Unregister(label string) error

	// Get returns a service by label
	Get(label string) (Service, bool)

	// GetAll returns all registered services in registration order
	GetAll() []Service

	// Labels returns all registered labels in registration order
	Labels() []string
}
