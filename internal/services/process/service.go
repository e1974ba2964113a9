// Package process implements the Service interface for services backed by a
// local operating-system process: spawn via os/exec with the stdout/stderr
// stream routed to a per-service log file, watch for exit, and apply the
// spec's restart policy with exponential backoff.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/antinozorionktr/healthconnect-a2a/internal/config"
	"github.com/antinozorionktr/healthconnect-a2a/internal/probe"
	"github.com/antinozorionktr/healthconnect-a2a/internal/services"
	"github.com/antinozorionktr/healthconnect-a2a/pkg/logging"
)

// ProcessService supervises exactly one service's OS process. The process
// handle is owned exclusively by this value; nothing else signals or waits
// on it.
type ProcessService struct {
	mu sync.Mutex

	spec        config.ServiceSpec
	logDir      string
	gracePeriod time.Duration

	state         services.ServiceState
	health        services.HealthStatus
	lastError     error
	stateCallback services.StateChangeCallback

	cmd          *exec.Cmd
	exited       chan struct{} // closed by the watcher once Wait returns
	startedAt    time.Time
	restartCount int

	// generation invalidates watchers and pending retries from a previous
	// process after an explicit stop or restart.
	generation    int
	stopRequested bool

	backoff Backoff
	prober  *probe.Prober

	// runCtx is the context Start was called with; restart backoff sleeps
	// are cancelled through it.
	runCtx context.Context
}

// NewProcessService creates a supervisor for the given spec. No process is
// spawned until Start.
func NewProcessService(spec config.ServiceSpec, logDir string, gracePeriod time.Duration) *ProcessService {
	return &ProcessService{
		spec:        spec,
		logDir:      logDir,
		gracePeriod: gracePeriod,
		state:       services.StateWaiting,
		health:      services.HealthUnknown,
		prober:      probe.New(spec.ProbeInterval.Std(), spec.ProbeInterval.Std()),
	}
}

// Spec returns the immutable spec this service was built from.
func (ps *ProcessService) Spec() config.ServiceSpec {
	return ps.spec
}

// Start spawns the service process. It fails when the process cannot be
// created (missing binary, permission denied) and when an instance is
// already live.
func (ps *ProcessService) Start(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	switch ps.state {
	case services.StateStarting, services.StateRunning, services.StateStopping, services.StateRetrying:
		return fmt.Errorf("service %s is %s, refusing to start a second instance", ps.spec.Name, ps.state)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ps.runCtx = ctx
	ps.stopRequested = false
	ps.restartCount = 0
	ps.backoff.Reset()

	ps.updateStateInternal(services.StateStarting, services.HealthUnknown, nil)
	if err := ps.spawnLocked(); err != nil {
		ps.updateStateInternal(services.StateFailed, services.HealthUnhealthy, err)
		return err
	}
	return nil
}

// spawnLocked creates and starts the OS process. Must be called with the
// mutex held and state already set to Starting.
func (ps *ProcessService) spawnLocked() error {
	if err := os.MkdirAll(ps.logDir, 0o755); err != nil {
		return fmt.Errorf("spawn %s: creating log directory: %w", ps.spec.Name, err)
	}

	logPath := filepath.Join(ps.logDir, ps.spec.Name+".log")
	logf, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("spawn %s: opening log sink: %w", ps.spec.Name, err)
	}

	cmd := exec.Command(ps.spec.Command[0], ps.spec.Command[1:]...)
	cmd.Dir = ps.spec.WorkingDir
	cmd.Env = buildEnv(ps.spec.Env)
	// The log sink is an opaque byte stream; the launcher never parses it.
	cmd.Stdout = logf
	cmd.Stderr = logf

	if err := cmd.Start(); err != nil {
		logf.Close()
		return fmt.Errorf("spawn %s: %w", ps.spec.Name, err)
	}
	// Child holds its own descriptor now.
	logf.Close()

	ps.cmd = cmd
	ps.startedAt = time.Now()
	ps.exited = make(chan struct{})
	ps.generation++

	logging.Info("ProcessService", "Started %s (pid %d), logging to %s", ps.spec.Name, cmd.Process.Pid, logPath)
	ps.updateStateInternal(services.StateRunning, services.HealthChecking, nil)

	go ps.watch(cmd, ps.generation, ps.exited)
	return nil
}

// watch blocks on the process and routes its exit status to onExit.
func (ps *ProcessService) watch(cmd *exec.Cmd, generation int, exited chan struct{}) {
	err := cmd.Wait()
	close(exited)
	ps.onExit(generation, err)
}

// onExit applies the restart policy after the supervised process terminates.
func (ps *ProcessService) onExit(generation int, exitErr error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if generation != ps.generation {
		// A newer process replaced the one this watcher belonged to.
		return
	}
	ps.cmd = nil

	if ps.stopRequested {
		ps.updateStateInternal(services.StateStopped, services.HealthUnknown, nil)
		return
	}

	cleanExit := exitErr == nil
	if cleanExit {
		logging.Info("ProcessService", "%s exited cleanly", ps.spec.Name)
	} else {
		logging.Warn("ProcessService", "%s exited: %v", ps.spec.Name, exitErr)
	}

	switch ps.spec.Restart {
	case config.RestartNever:
		ps.finishLocked(cleanExit, exitErr)
	case config.RestartOnFailure:
		if cleanExit {
			ps.updateStateInternal(services.StateStopped, services.HealthUnknown, nil)
			return
		}
		ps.maybeRestartLocked(exitErr)
	case config.RestartAlways:
		ps.maybeRestartLocked(exitErr)
	default:
		ps.finishLocked(cleanExit, exitErr)
	}
}

// finishLocked settles the terminal state for an exit that will not be retried.
func (ps *ProcessService) finishLocked(cleanExit bool, exitErr error) {
	if cleanExit {
		ps.updateStateInternal(services.StateStopped, services.HealthUnknown, nil)
	} else {
		ps.updateStateInternal(services.StateFailed, services.HealthUnhealthy, exitErr)
	}
}

// maybeRestartLocked schedules a restart when the budget allows, otherwise
// settles the terminal state.
func (ps *ProcessService) maybeRestartLocked(exitErr error) {
	if ps.restartCount >= ps.spec.MaxRestarts {
		logging.Error("ProcessService", exitErr, "%s exhausted its restart budget (%d)", ps.spec.Name, ps.spec.MaxRestarts)
		ps.finishLocked(exitErr == nil, fmt.Errorf("restart budget exhausted after %d attempts: %w",
			ps.restartCount, coalesceErr(exitErr)))
		return
	}

	ps.restartCount++
	delay := ps.backoff.Next()
	generation := ps.generation
	ps.updateStateInternal(services.StateRetrying, services.HealthUnhealthy, exitErr)
	logging.Info("ProcessService", "Restarting %s in %s (attempt %d/%d)", ps.spec.Name, delay, ps.restartCount, ps.spec.MaxRestarts)

	runCtx := ps.runCtx
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-runCtx.Done():
			return
		}

		ps.mu.Lock()
		defer ps.mu.Unlock()
		if ps.stopRequested || ps.generation != generation {
			return
		}
		ps.updateStateInternal(services.StateStarting, services.HealthUnknown, nil)
		if err := ps.spawnLocked(); err != nil {
			// A spawn failure consumes budget like a crash does.
			logging.Error("ProcessService", err, "Restart of %s failed to spawn", ps.spec.Name)
			ps.maybeRestartLocked(err)
		}
	}()
}

// Stop requests graceful termination and escalates to SIGKILL after the
// grace period. It is idempotent on an already-stopped instance. The no-op
// path is keyed off the process handle, not the state: a service parked in
// Failed by an external state update may still own a live process, and that
// process must be terminated.
func (ps *ProcessService) Stop(ctx context.Context) error {
	ps.mu.Lock()

	ps.stopRequested = true
	ps.generation++ // cancel any pending retry

	cmd := ps.cmd
	exited := ps.exited
	if cmd == nil || cmd.Process == nil {
		// Nothing live to terminate. Stopped and Failed keep their state;
		// anything queued settles in Stopped.
		switch ps.state {
		case services.StateStopped, services.StateFailed:
		default:
			ps.updateStateInternal(services.StateStopped, services.HealthUnknown, nil)
		}
		ps.mu.Unlock()
		return nil
	}

	ps.updateStateInternal(services.StateStopping, services.HealthUnknown, nil)
	ps.mu.Unlock()

	logging.Info("ProcessService", "Stopping %s (pid %d)", ps.spec.Name, cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone; the watcher settles the state.
		logging.Debug("ProcessService", "Signal to %s failed: %v", ps.spec.Name, err)
	}

	grace := ps.gracePeriod
	if grace <= 0 {
		grace = config.DefaultGracePeriod
	}

	select {
	case <-exited:
	case <-time.After(grace):
		logging.Warn("ProcessService", "%s did not exit within %s, killing", ps.spec.Name, grace)
		_ = cmd.Process.Kill()
		<-exited
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-exited
	}

	ps.mu.Lock()
	if ps.cmd == cmd {
		// The watcher skipped its cleanup because the stop bumped the
		// generation; release the handle here.
		ps.cmd = nil
	}
	ps.updateStateInternal(services.StateStopped, services.HealthUnknown, nil)
	ps.mu.Unlock()
	return nil
}

// Restart stops the service if needed and starts it again with a fresh
// restart budget.
func (ps *ProcessService) Restart(ctx context.Context) error {
	if err := ps.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop %s during restart: %w", ps.spec.Name, err)
	}
	if err := ps.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s during restart: %w", ps.spec.Name, err)
	}
	return nil
}

// GetState implements the Service interface.
func (ps *ProcessService) GetState() services.ServiceState {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.state
}

// GetHealth implements the Service interface.
func (ps *ProcessService) GetHealth() services.HealthStatus {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.health
}

// GetLastError implements the Service interface.
func (ps *ProcessService) GetLastError() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastError
}

// GetLabel implements the Service interface.
func (ps *ProcessService) GetLabel() string {
	return ps.spec.Name
}

// GetDependencies implements the Service interface.
func (ps *ProcessService) GetDependencies() []string {
	return append([]string(nil), ps.spec.DependsOn...)
}

// SetStateChangeCallback implements the Service interface.
func (ps *ProcessService) SetStateChangeCallback(callback services.StateChangeCallback) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.stateCallback = callback
}

// UpdateState implements the StateUpdater interface; the orchestrator uses
// it to park the service in Waiting when a dependency never becomes ready.
func (ps *ProcessService) UpdateState(state services.ServiceState, health services.HealthStatus, err error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.updateStateInternal(state, health, err)
}

// CheckHealth implements the HealthChecker interface by probing the
// service's readiness endpoint once.
func (ps *ProcessService) CheckHealth(ctx context.Context) (services.HealthStatus, error) {
	ps.mu.Lock()
	if ps.state != services.StateRunning {
		health := ps.health
		ps.mu.Unlock()
		return health, nil
	}
	url := ps.spec.ReadinessURL()
	ps.mu.Unlock()

	result, probeErr := ps.prober.Probe(ctx, url)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.state != services.StateRunning {
		// Exited while we were probing; keep the watcher's verdict.
		return ps.health, nil
	}
	if result == probe.Ready {
		ps.updateStateInternal(ps.state, services.HealthHealthy, nil)
		return services.HealthHealthy, nil
	}
	ps.updateStateInternal(ps.state, services.HealthUnhealthy, probeErr)
	return services.HealthUnhealthy, probeErr
}

// GetHealthCheckInterval implements the HealthChecker interface.
func (ps *ProcessService) GetHealthCheckInterval() time.Duration {
	return ps.spec.ProbeInterval.Std()
}

// GetRuntimeInfo implements the RuntimeInfoProvider interface.
func (ps *ProcessService) GetRuntimeInfo() services.RuntimeInfo {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	info := services.RuntimeInfo{
		RestartCount: ps.restartCount,
		StartedAt:    ps.startedAt,
	}
	if ps.cmd != nil && ps.cmd.Process != nil {
		info.PID = ps.cmd.Process.Pid
	}
	return info
}

// updateStateInternal updates state/health and fires the callback when
// either changed. Must be called with the mutex held.
func (ps *ProcessService) updateStateInternal(newState services.ServiceState, newHealth services.HealthStatus, err error) {
	oldState := ps.state
	oldHealth := ps.health

	ps.state = newState
	ps.health = newHealth
	ps.lastError = err

	if ps.stateCallback != nil && (oldState != newState || oldHealth != newHealth) {
		// Callback without holding the lock to prevent deadlocks.
		go ps.stateCallback(ps.spec.Name, oldState, newState, newHealth, err)
	}

	logging.Debug("ProcessService", "%s state: %s -> %s (health: %s -> %s)",
		ps.spec.Name, oldState, newState, oldHealth, newHealth)
}

// buildEnv layers the spec's env on top of the launcher's own environment,
// sorted for stable startup logs.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

func coalesceErr(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("process exited")
}
