package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/antinozorionktr/healthconnect-a2a/internal/config"
	"github.com/antinozorionktr/healthconnect-a2a/internal/dependency"
	"github.com/antinozorionktr/healthconnect-a2a/internal/probe"
	"github.com/antinozorionktr/healthconnect-a2a/internal/services"
	"github.com/antinozorionktr/healthconnect-a2a/pkg/logging"
)

// buildDependencyGraph constructs the service dependency graph from the
// fleet's specs. Config validation already rejected cycles and dangling
// references, so the graph here is a well-formed DAG.
func (o *Orchestrator) buildDependencyGraph() *dependency.Graph {
	graph := dependency.New()
	for _, spec := range o.specs {
		deps := make([]dependency.NodeID, 0, len(spec.DependsOn))
		for _, dep := range spec.DependsOn {
			deps = append(deps, dependency.NodeID(dep))
		}
		graph.AddNode(dependency.Node{
			ID:        dependency.NodeID(spec.Name),
			DependsOn: deps,
		})
	}
	return graph
}

// groupSpecsByDependencyLevel buckets the fleet by dependency depth: level 0
// has no dependencies, level N depends only on levels below N. Services
// within a level are independent of each other and start concurrently;
// levels run strictly in sequence.
func (o *Orchestrator) groupSpecsByDependencyLevel() [][]config.ServiceSpec {
	depth := make(map[string]int, len(o.specs))
	var depthOf func(name string) int
	depthOf = func(name string) int {
		if d, done := depth[name]; done {
			return d
		}
		spec := o.specByName(name)
		max := 0
		for _, dep := range spec.DependsOn {
			if d := depthOf(dep) + 1; d > max {
				max = d
			}
		}
		depth[name] = max
		return max
	}

	maxDepth := 0
	for _, spec := range o.specs {
		if d := depthOf(spec.Name); d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]config.ServiceSpec, maxDepth+1)
	for _, spec := range o.specs {
		d := depth[spec.Name]
		levels[d] = append(levels[d], spec)
	}
	return levels
}

func (o *Orchestrator) specByName(name string) config.ServiceSpec {
	for _, spec := range o.specs {
		if spec.Name == name {
			return spec
		}
	}
	return config.ServiceSpec{}
}

// startServicesInOrder runs the ordered startup sequence: level by level,
// concurrently within a level, and gated per service on its readiness probe.
// A service whose probe never succeeds within its timeout fails the launch
// (fail-fast) or parks its transitive dependents (keep-going).
func (o *Orchestrator) startServicesInOrder(ctx context.Context) error {
	levels := o.groupSpecsByDependencyLevel()

	// Services that failed to become ready, and services parked because a
	// dependency failed. Both block their dependents.
	failed := make(map[string]error)
	parked := make(map[string]string)

	for levelIdx, level := range levels {
		names := make([]string, len(level))
		for i, spec := range level {
			names[i] = spec.Name
		}
		logging.Info("Orchestrator", "Starting dependency level %d: %v", levelIdx, names)

		// Decide parking for the whole level before spawning anything, so the
		// failure maps are only written between levels.
		var toStart []config.ServiceSpec
		for _, spec := range level {
			if blocker := o.findFailedDependency(spec.Name, failed, parked); blocker != "" {
				o.parkService(spec.Name, blocker)
				parked[spec.Name] = blocker
				continue
			}
			toStart = append(toStart, spec)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, spec := range toStart {
			wg.Add(1)
			go func(spec config.ServiceSpec) {
				defer wg.Done()
				if err := o.startAndAwaitReady(ctx, spec); err != nil {
					mu.Lock()
					failed[spec.Name] = err
					mu.Unlock()
				}
			}(spec)
		}
		wg.Wait()

		if len(failed) > 0 && o.failFast {
			// Name one blocking service in the launch error; tear down
			// whatever already came up.
			for name, err := range failed {
				logging.Error("Orchestrator", err, "Aborting launch: %s never became ready", name)
				if stopErr := o.stopAllServices(); stopErr != nil {
					logging.Error("Orchestrator", stopErr, "Teardown after failed launch was not fully clean")
				}
				return fmt.Errorf("launch aborted: service %s failed to become ready: %w", name, err)
			}
		}
	}

	ready := len(o.specs) - len(failed) - len(parked)
	if len(failed) > 0 || len(parked) > 0 {
		logging.Warn("Orchestrator", "Launch finished degraded: %d/%d services ready (%d failed, %d blocked)",
			ready, len(o.specs), len(failed), len(parked))
	} else {
		logging.Info("Orchestrator", "%d/%d services ready", ready, len(o.specs))
	}
	return nil
}

// startAndAwaitReady spawns one service and blocks until its readiness
// probe succeeds or the spec's probe timeout elapses.
func (o *Orchestrator) startAndAwaitReady(ctx context.Context, spec config.ServiceSpec) error {
	service, exists := o.registry.Get(spec.Name)
	if !exists {
		return fmt.Errorf("service %s not registered", spec.Name)
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("spawn failed: %w", err)
	}

	prober := probe.New(spec.ProbeInterval.Std(), spec.ProbeInterval.Std())
	waitCtx, cancel := context.WithTimeout(ctx, spec.ProbeTimeout.Std())
	defer cancel()

	logging.Info("Orchestrator", "Waiting for %s to become ready at %s", spec.Name, spec.ReadinessURL())
	if err := prober.AwaitReady(waitCtx, spec.ReadinessURL()); err != nil {
		if updater, ok := service.(services.StateUpdater); ok {
			updater.UpdateState(services.StateFailed, services.HealthUnhealthy, err)
		}
		return err
	}

	o.recordReady(spec.Name)
	logging.Info("Orchestrator", "Service %s is ready", spec.Name)
	return nil
}

// findFailedDependency walks the transitive dependencies of a service and
// returns the first one known to have failed or been parked, or "".
func (o *Orchestrator) findFailedDependency(name string, failed map[string]error, parked map[string]string) string {
	spec := o.specByName(name)
	for _, dep := range spec.DependsOn {
		if _, bad := failed[dep]; bad {
			return dep
		}
		if _, blocked := parked[dep]; blocked {
			return dep
		}
		if blocker := o.findFailedDependency(dep, failed, parked); blocker != "" {
			return blocker
		}
	}
	return ""
}

// parkService marks a service Waiting because a dependency never became
// ready. Its process is never spawned.
func (o *Orchestrator) parkService(name, blockedBy string) {
	logging.Warn("Orchestrator", "Not starting %s: dependency %s is unavailable", name, blockedBy)

	o.mu.Lock()
	o.blockedBy[name] = blockedBy
	o.stopReasons[name] = StopReasonDependency
	o.mu.Unlock()

	if service, exists := o.registry.Get(name); exists {
		if updater, ok := service.(services.StateUpdater); ok {
			updater.UpdateState(services.StateWaiting, services.HealthUnknown, fmt.Errorf("blocked by dependency %s", blockedBy))
		}
	}
	o.recordBlocked(name, blockedBy)
}

// stopAllServices stops the whole fleet, dependents strictly before their
// dependencies. Within a level stops run concurrently, and the whole
// teardown shares one deadline derived from the grace period so a stuck
// process cannot stall the services behind it indefinitely.
func (o *Orchestrator) stopAllServices() error {
	levels := o.groupSpecsByDependencyLevel()

	grace := o.launcherCfg.GlobalSettings.GracePeriod.Std()
	if grace <= 0 {
		grace = config.DefaultGracePeriod
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), grace+5*time.Second)
	defer cancel()

	var errs []error
	for levelIdx := len(levels) - 1; levelIdx >= 0; levelIdx-- {
		var wg sync.WaitGroup
		var mu sync.Mutex

		for _, spec := range levels[levelIdx] {
			service, exists := o.registry.Get(spec.Name)
			if !exists {
				continue
			}
			switch service.GetState() {
			case services.StateStopped, services.StateWaiting, services.StateUnknown:
				continue
			}

			wg.Add(1)
			go func(name string, service services.Service) {
				defer wg.Done()
				logging.Info("Orchestrator", "Stopping service: %s", name)
				if err := service.Stop(stopCtx); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
					mu.Unlock()
				}
			}(spec.Name, service)
		}
		wg.Wait()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors stopping services: %v", errs)
	}
	return nil
}

// stopServiceWithDependents stops a service after stopping everything that
// transitively depends on it.
func (o *Orchestrator) stopServiceWithDependents(name string) error {
	dependents := o.depGraph.TransitiveDependents(dependency.NodeID(name))

	// Deepest dependents first so nothing loses a dependency while still up.
	for i := len(dependents) - 1; i >= 0; i-- {
		depName := string(dependents[i])
		service, exists := o.registry.Get(depName)
		if !exists {
			continue
		}
		switch service.GetState() {
		case services.StateStopped, services.StateWaiting, services.StateUnknown:
			continue
		}

		o.mu.Lock()
		o.stopReasons[depName] = StopReasonDependency
		o.mu.Unlock()

		logging.Info("Orchestrator", "Stopping %s (depends on %s)", depName, name)
		if err := service.Stop(context.Background()); err != nil {
			return fmt.Errorf("failed to stop dependent %s: %w", depName, err)
		}
	}

	service, exists := o.registry.Get(name)
	if !exists {
		return fmt.Errorf("service %s not found", name)
	}
	if err := service.Stop(context.Background()); err != nil {
		return fmt.Errorf("failed to stop service %s: %w", name, err)
	}

	logging.Info("Orchestrator", "Stopped service: %s", name)
	return nil
}

// checkDependencies verifies that every direct dependency of a service is
// running and healthy. Used for individual (non-sequenced) starts.
func (o *Orchestrator) checkDependencies(name string) error {
	node := o.depGraph.Get(dependency.NodeID(name))
	if node == nil {
		return nil
	}
	for _, dep := range node.DependsOn {
		depService, registered := o.registry.Get(string(dep))
		if !registered {
			return fmt.Errorf("dependency %s is not registered", dep)
		}
		if depService.GetState() != services.StateRunning {
			return fmt.Errorf("dependency %s is not running (state: %s)", dep, depService.GetState())
		}
	}
	return nil
}
