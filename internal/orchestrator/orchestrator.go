package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/antinozorionktr/healthconnect-a2a/internal/config"
	"github.com/antinozorionktr/healthconnect-a2a/internal/dependency"
	"github.com/antinozorionktr/healthconnect-a2a/internal/reporting"
	"github.com/antinozorionktr/healthconnect-a2a/internal/services"
	"github.com/antinozorionktr/healthconnect-a2a/internal/services/process"
	"github.com/antinozorionktr/healthconnect-a2a/pkg/logging"
)

// StopReason tracks why a service was stopped.
// This distinguishes user-initiated stops (which must not be auto-restarted)
// from dependency-related stops (restarted when the dependency recovers).
type StopReason int

const (
	StopReasonManual     StopReason = iota // User explicitly stopped the service
	StopReasonDependency                   // Service stopped because a dependency failed
)

// Orchestrator coordinates the lifecycle of the whole fleet: it computes the
// dependency-ordered start sequence, gates every start on dependency
// readiness, supervises per-service health checking, and maintains the
// aggregate health document.
type Orchestrator struct {
	registry    services.ServiceRegistry
	healthStore *reporting.HealthStore
	depGraph    *dependency.Graph

	// Configuration
	launcherCfg config.LauncherConfig
	specs       []config.ServiceSpec // enabled specs in declaration order
	failFast    bool

	// Service tracking
	stopReasons    map[string]StopReason
	blockedBy      map[string]string // service -> dependency that kept it from starting
	healthCheckers map[string]bool   // which services have a health-check goroutine

	// Global state change callback, fans out to subscribers
	globalStateChangeCallback services.StateChangeCallback
	stateChangeSubscribers    []chan<- ServiceStateChangedEvent

	// Context for cancellation
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu sync.RWMutex // Protects the service tracking maps and subscriber list
}

// Config holds the orchestrator's construction parameters.
type Config struct {
	Launcher config.LauncherConfig
	// Only restricts the fleet to the named services plus their transitive
	// dependencies. Empty means the whole enabled fleet.
	Only []string
	// FailFast aborts the remaining startup sequence when a service never
	// becomes ready (the default). When false, independent branches of the
	// DAG keep starting and only dependents of the failed service are parked.
	FailFast bool
}

// New creates an orchestrator for the configured fleet. No process is
// spawned until Start.
func New(cfg Config) (*Orchestrator, error) {
	specs := config.EnabledServices(cfg.Launcher)
	if len(cfg.Only) > 0 {
		var err error
		specs, err = restrictSpecs(specs, cfg.Only)
		if err != nil {
			return nil, err
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no enabled services to manage")
	}

	o := &Orchestrator{
		registry:       services.NewRegistry(),
		healthStore:    reporting.NewHealthStore(),
		launcherCfg:    cfg.Launcher,
		specs:          specs,
		failFast:       cfg.FailFast,
		stopReasons:    make(map[string]StopReason),
		blockedBy:      make(map[string]string),
		healthCheckers: make(map[string]bool),
		// Control-surface operations may arrive before Start installs the
		// launch context.
		ctx: context.Background(),
	}
	o.depGraph = o.buildDependencyGraph()

	if err := o.registerServices(); err != nil {
		return nil, err
	}
	return o, nil
}

// restrictSpecs narrows the fleet to the requested services and everything
// they depend on, keeping declaration order.
func restrictSpecs(specs []config.ServiceSpec, only []string) ([]config.ServiceSpec, error) {
	byName := make(map[string]config.ServiceSpec, len(specs))
	for _, spec := range specs {
		byName[spec.Name] = spec
	}

	wanted := make(map[string]bool)
	var include func(name string) error
	include = func(name string) error {
		if wanted[name] {
			return nil
		}
		spec, exists := byName[name]
		if !exists {
			return fmt.Errorf("unknown service %q", name)
		}
		wanted[name] = true
		for _, dep := range spec.DependsOn {
			if err := include(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range only {
		if err := include(name); err != nil {
			return nil, err
		}
	}

	var restricted []config.ServiceSpec
	for _, spec := range specs {
		if wanted[spec.Name] {
			restricted = append(restricted, spec)
		}
	}
	return restricted, nil
}

// registerServices creates a process supervisor per spec and registers it.
// Registration does not start anything; it only makes the service available
// for management and seeds the health document.
func (o *Orchestrator) registerServices() error {
	for _, spec := range o.specs {
		svc := process.NewProcessService(spec, o.launcherCfg.GlobalSettings.LogDir, o.launcherCfg.GlobalSettings.GracePeriod.Std())
		if err := o.registry.Register(svc); err != nil {
			return fmt.Errorf("failed to register service %s: %w", spec.Name, err)
		}
		o.healthStore.Register(spec.Name, spec.ProbeTimeout.Std())
		logging.Debug("Orchestrator", "Registered service: %s", spec.Name)
	}
	return nil
}

// RegisterService adds an externally-built service (used by tests to inject
// fakes). It must be called before Start.
func (o *Orchestrator) RegisterService(svc services.Service, stalenessWindow config.Duration) error {
	if err := o.registry.Register(svc); err != nil {
		return err
	}
	o.healthStore.Register(svc.GetLabel(), stalenessWindow.Std())
	return nil
}

// Start launches the fleet: it installs state monitoring, starts services in
// dependency order with readiness gating, and begins continuous health
// checking. The returned error is non-nil when fail-fast startup aborted.
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.ctx = runCtx
	o.cancelFunc = cancel
	o.mu.Unlock()

	// Ensure all services report their transitions through the orchestrator.
	o.installStateChangeCallback()

	if err := o.startServicesInOrder(runCtx); err != nil {
		return err
	}

	// Continuous re-probing, independent of startup sequencing.
	o.startHealthCheckers(runCtx)
	return nil
}

// Stop gracefully stops all services, dependents strictly before their
// dependencies, all within one shared grace deadline.
func (o *Orchestrator) Stop() error {
	o.mu.RLock()
	cancel := o.cancelFunc
	o.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return o.stopAllServices()
}

// runContext returns the context lifecycle operations run under: the launch
// context once Start has installed it, context.Background() before that.
func (o *Orchestrator) runContext() context.Context {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ctx
}

// StartService starts a specific service by name. All dependencies must
// already be running; this method does not cascade-start them.
func (o *Orchestrator) StartService(name string) error {
	service, exists := o.registry.Get(name)
	if !exists {
		return fmt.Errorf("service %s not found", name)
	}

	if err := o.checkDependencies(name); err != nil {
		o.mu.Lock()
		o.stopReasons[name] = StopReasonDependency
		o.mu.Unlock()
		return fmt.Errorf("dependency check failed: %w", err)
	}

	if err := service.Start(o.runContext()); err != nil {
		return fmt.Errorf("failed to start service %s: %w", name, err)
	}

	o.mu.Lock()
	delete(o.stopReasons, name)
	delete(o.blockedBy, name)
	o.mu.Unlock()

	logging.Info("Orchestrator", "Started service: %s", name)
	return nil
}

// StopService stops a specific service and cascades the stop to everything
// that depends on it, dependents first. The service is marked manually
// stopped so it will not be restarted behind the user's back.
func (o *Orchestrator) StopService(name string) error {
	_, exists := o.registry.Get(name)
	if !exists {
		return fmt.Errorf("service %s not found", name)
	}

	o.mu.Lock()
	o.stopReasons[name] = StopReasonManual
	o.mu.Unlock()

	return o.stopServiceWithDependents(name)
}

// RestartService restarts a specific service by name.
func (o *Orchestrator) RestartService(name string) error {
	service, exists := o.registry.Get(name)
	if !exists {
		return fmt.Errorf("service %s not found", name)
	}

	o.mu.Lock()
	delete(o.stopReasons, name)
	o.mu.Unlock()

	if err := service.Restart(o.runContext()); err != nil {
		return fmt.Errorf("failed to restart service %s: %w", name, err)
	}

	logging.Info("Orchestrator", "Restarted service: %s", name)
	return nil
}

// Status returns the latest aggregate health document. It never blocks on a
// fresh probe; staleness is bounded by the probe interval.
func (o *Orchestrator) Status() reporting.SystemHealth {
	return o.healthStore.SystemHealth()
}

// GetServiceRegistry exposes the registry for the control API.
func (o *Orchestrator) GetServiceRegistry() services.ServiceRegistry {
	return o.registry
}

// installStateChangeCallback wires every registered service's transitions
// into the health document and the event subscribers.
func (o *Orchestrator) installStateChangeCallback() {
	callback := func(label string, oldState, newState services.ServiceState, health services.HealthStatus, err error) {
		o.recordStateChange(label, newState, health, err)

		event := ServiceStateChangedEvent{
			Label:    label,
			OldState: string(oldState),
			NewState: string(newState),
			Health:   string(health),
			Error:    err,
		}

		o.mu.RLock()
		subscribers := make([]chan<- ServiceStateChangedEvent, len(o.stateChangeSubscribers))
		copy(subscribers, o.stateChangeSubscribers)
		o.mu.RUnlock()

		for _, ch := range subscribers {
			select {
			case ch <- event:
			default:
				logging.Warn("Orchestrator", "Dropped state change event for %s (subscriber channel full)", label)
			}
		}
	}

	o.mu.Lock()
	o.globalStateChangeCallback = callback
	o.mu.Unlock()

	for _, service := range o.registry.GetAll() {
		service.SetStateChangeCallback(callback)
	}
}

// SubscribeToStateChanges returns a channel delivering service state change
// events, e.g. for the foreground launch log.
func (o *Orchestrator) SubscribeToStateChanges() <-chan ServiceStateChangedEvent {
	eventChan := make(chan ServiceStateChangedEvent, 100)
	o.mu.Lock()
	o.stateChangeSubscribers = append(o.stateChangeSubscribers, eventChan)
	o.mu.Unlock()
	return eventChan
}

// ServiceStateChangedEvent represents a service state change event.
type ServiceStateChangedEvent struct {
	Label    string
	OldState string
	NewState string
	Health   string
	Error    error
}
