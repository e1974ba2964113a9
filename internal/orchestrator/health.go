package orchestrator

import (
	"context"
	"time"

	"github.com/antinozorionktr/healthconnect-a2a/internal/reporting"
	"github.com/antinozorionktr/healthconnect-a2a/internal/services"
	"github.com/antinozorionktr/healthconnect-a2a/pkg/logging"
)

// startHealthCheckers launches one health-check goroutine per service that
// implements HealthChecker. Each goroutine re-probes at the service's own
// interval and writes the result into the health document, keeping the
// aggregate verdict fresh between control-surface reads.
func (o *Orchestrator) startHealthCheckers(ctx context.Context) {
	for _, service := range o.registry.GetAll() {
		checker, ok := service.(services.HealthChecker)
		if !ok {
			continue
		}

		o.mu.Lock()
		if o.healthCheckers[service.GetLabel()] {
			o.mu.Unlock()
			continue
		}
		o.healthCheckers[service.GetLabel()] = true
		o.mu.Unlock()

		go o.runHealthChecksForService(ctx, service, checker)
	}
}

// runHealthChecksForService is the per-service probe loop. It exits when the
// orchestrator's context is cancelled.
func (o *Orchestrator) runHealthChecksForService(ctx context.Context, service services.Service, checker services.HealthChecker) {
	label := service.GetLabel()
	interval := checker.GetHealthCheckInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Debug("Orchestrator", "Health check loop started for %s (interval %s)", label, interval)
	for {
		select {
		case <-ctx.Done():
			logging.Debug("Orchestrator", "Health check loop stopped for %s", label)
			return
		case <-ticker.C:
			o.performHealthCheck(ctx, service, checker)
		}
	}
}

// performHealthCheck runs one probe and folds the observation into the
// health document.
func (o *Orchestrator) performHealthCheck(ctx context.Context, service services.Service, checker services.HealthChecker) {
	label := service.GetLabel()

	// Only probe services that own a live process. Everything else keeps its
	// last snapshot, which the staleness window ages into unhealthy.
	if service.GetState() != services.StateRunning {
		o.recordStateChange(label, service.GetState(), service.GetHealth(), service.GetLastError())
		return
	}

	health, err := checker.CheckHealth(ctx)
	if err != nil {
		logging.Debug("Orchestrator", "Health check for %s: %v", label, err)
	}

	snapshot := o.buildSnapshot(service, service.GetState(), health, err)
	snapshot.LastProbeOK = health == services.HealthHealthy
	snapshot.LastProbeAt = time.Now()
	o.healthStore.SetServiceHealth(snapshot)
}

// recordStateChange folds a state transition into the health document,
// preserving the last probe observation so a transient state change does
// not erase probe history.
func (o *Orchestrator) recordStateChange(label string, state services.ServiceState, health services.HealthStatus, err error) {
	service, exists := o.registry.Get(label)
	if !exists {
		return
	}

	snapshot := o.buildSnapshot(service, state, health, err)
	// Transitions arrive on callback goroutines while probe loops write
	// their own results; fold them under the store's lock so neither side
	// clobbers the other's probe observation.
	o.healthStore.UpdateServiceHealth(label, func(prev reporting.ServiceHealthSnapshot) reporting.ServiceHealthSnapshot {
		snapshot.LastProbeOK = prev.LastProbeOK
		snapshot.LastProbeAt = prev.LastProbeAt
		// A service that is not running cannot be passing its probe,
		// whatever the history says.
		if state != services.StateRunning {
			snapshot.LastProbeOK = false
		}
		return snapshot
	})
}

// recordReady marks the first successful readiness probe during ordered
// startup, so the aggregate flips healthy without waiting a full health
// check interval.
func (o *Orchestrator) recordReady(label string) {
	service, exists := o.registry.Get(label)
	if !exists {
		return
	}
	snapshot := o.buildSnapshot(service, services.StateRunning, services.HealthHealthy, nil)
	snapshot.LastProbeOK = true
	snapshot.LastProbeAt = time.Now()
	o.healthStore.SetServiceHealth(snapshot)
}

// recordBlocked marks a service parked behind a failed dependency.
func (o *Orchestrator) recordBlocked(label, blockedBy string) {
	service, exists := o.registry.Get(label)
	if !exists {
		return
	}
	snapshot := o.buildSnapshot(service, services.StateWaiting, services.HealthUnknown, nil)
	snapshot.BlockedBy = blockedBy
	o.healthStore.SetServiceHealth(snapshot)
}

// buildSnapshot assembles a snapshot from a service's current metadata.
func (o *Orchestrator) buildSnapshot(service services.Service, state services.ServiceState, health services.HealthStatus, err error) reporting.ServiceHealthSnapshot {
	label := service.GetLabel()

	snapshot := reporting.ServiceHealthSnapshot{
		Name:   label,
		State:  state,
		Health: health,
	}
	if err != nil {
		snapshot.LastError = err.Error()
	}
	if provider, ok := service.(services.RuntimeInfoProvider); ok {
		info := provider.GetRuntimeInfo()
		snapshot.PID = info.PID
		snapshot.RestartCount = info.RestartCount
	}

	o.mu.RLock()
	if blocker, blocked := o.blockedBy[label]; blocked {
		snapshot.BlockedBy = blocker
	}
	o.mu.RUnlock()

	return snapshot
}
