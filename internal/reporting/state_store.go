// Package reporting holds the shared system-health document: one snapshot
// per managed service plus the aggregate verdict the container platform's
// liveness check consumes. The orchestrator is the only writer; readers
// always receive a fully-formed copy.
package reporting

import (
	"sort"
	"sync"
	"time"

	"github.com/antinozorionktr/healthconnect-a2a/internal/services"
)

// ServiceHealthSnapshot is one service's latest observed state and probe result.
type ServiceHealthSnapshot struct {
	Name         string                 `json:"name"`
	State        services.ServiceState  `json:"state"`
	Health       services.HealthStatus  `json:"health"`
	LastProbeOK  bool                   `json:"lastProbeOk"`
	LastProbeAt  time.Time              `json:"lastProbeAt"`
	LastError    string                 `json:"lastError,omitempty"`
	BlockedBy    string                 `json:"blockedBy,omitempty"` // dependency that kept this service from starting
	PID          int                    `json:"pid,omitempty"`
	RestartCount int                    `json:"restartCount"`
}

// SystemHealth is the merged status document. Healthy is true if and only if
// every registered service's latest probe succeeded within its staleness
// window; there is no partial/degraded tier.
type SystemHealth struct {
	Healthy     bool                             `json:"healthy"`
	GeneratedAt time.Time                        `json:"generatedAt"`
	Services    map[string]ServiceHealthSnapshot `json:"services"`
}

// HealthStore keeps the latest snapshot per registered service.
type HealthStore struct {
	mu        sync.RWMutex
	snapshots map[string]ServiceHealthSnapshot
	windows   map[string]time.Duration // per-service staleness window (the spec's probe timeout)
	order     []string
}

// NewHealthStore creates an empty store.
func NewHealthStore() *HealthStore {
	return &HealthStore{
		snapshots: make(map[string]ServiceHealthSnapshot),
		windows:   make(map[string]time.Duration),
	}
}

// Register adds a service to the document with an Unknown snapshot. Until
// its first successful probe the aggregate verdict stays unhealthy, which is
// exactly what a container platform should see during startup.
func (hs *HealthStore) Register(name string, stalenessWindow time.Duration) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if _, exists := hs.snapshots[name]; !exists {
		hs.order = append(hs.order, name)
	}
	hs.snapshots[name] = ServiceHealthSnapshot{
		Name:   name,
		State:  services.StateWaiting,
		Health: services.HealthUnknown,
	}
	hs.windows[name] = stalenessWindow
}

// SetServiceHealth replaces a service's snapshot. Only the orchestrator's
// reporting loop calls this (one writer, many readers).
func (hs *HealthStore) SetServiceHealth(snapshot ServiceHealthSnapshot) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if _, exists := hs.snapshots[snapshot.Name]; !exists {
		hs.order = append(hs.order, snapshot.Name)
	}
	hs.snapshots[snapshot.Name] = snapshot
}

// UpdateServiceHealth applies fn to a service's snapshot under the store's
// lock, so a read-modify-write from one goroutine cannot interleave with a
// probe result landing from another. fn receives the current snapshot (a
// Name-only zero snapshot if the service has never been seen) and returns
// the replacement.
func (hs *HealthStore) UpdateServiceHealth(name string, fn func(ServiceHealthSnapshot) ServiceHealthSnapshot) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	current, exists := hs.snapshots[name]
	if !exists {
		hs.order = append(hs.order, name)
		current = ServiceHealthSnapshot{Name: name}
	}
	hs.snapshots[name] = fn(current)
}

// GetServiceHealth returns a service's latest snapshot.
func (hs *HealthStore) GetServiceHealth(name string) (ServiceHealthSnapshot, bool) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	snapshot, exists := hs.snapshots[name]
	return snapshot, exists
}

// Names returns the registered service names in registration order.
func (hs *HealthStore) Names() []string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return append([]string(nil), hs.order...)
}

// SystemHealth computes the merged document from the latest snapshots
// without issuing any fresh probe; callers accept staleness bounded by the
// probe interval.
func (hs *HealthStore) SystemHealth() SystemHealth {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	doc := SystemHealth{
		Healthy:     true,
		GeneratedAt: time.Now(),
		Services:    make(map[string]ServiceHealthSnapshot, len(hs.snapshots)),
	}
	for name, snapshot := range hs.snapshots {
		doc.Services[name] = snapshot
		if !hs.snapshotHealthyLocked(name, snapshot, doc.GeneratedAt) {
			doc.Healthy = false
		}
	}
	if len(hs.snapshots) == 0 {
		doc.Healthy = false
	}
	return doc
}

// UnhealthyServices returns the names of services currently dragging the
// aggregate down, sorted for stable log and status output.
func (hs *HealthStore) UnhealthyServices() []string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	now := time.Now()
	var unhealthy []string
	for name, snapshot := range hs.snapshots {
		if !hs.snapshotHealthyLocked(name, snapshot, now) {
			unhealthy = append(unhealthy, name)
		}
	}
	sort.Strings(unhealthy)
	return unhealthy
}

// snapshotHealthyLocked applies the aggregate rule to one snapshot: the last
// probe must have succeeded, and recently enough to still be trusted.
func (hs *HealthStore) snapshotHealthyLocked(name string, snapshot ServiceHealthSnapshot, now time.Time) bool {
	if !snapshot.LastProbeOK {
		return false
	}
	window := hs.windows[name]
	if window > 0 && now.Sub(snapshot.LastProbeAt) > window {
		return false
	}
	return true
}
