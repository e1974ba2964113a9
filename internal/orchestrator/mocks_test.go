package orchestrator

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antinozorionktr/healthconnect-a2a/internal/config"
	"github.com/antinozorionktr/healthconnect-a2a/internal/reporting"
	"github.com/antinozorionktr/healthconnect-a2a/internal/services"
)

// eventLog records lifecycle events across all mock services so tests can
// assert on ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
	times  []time.Time
}

func (l *eventLog) append(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.times = append(l.times, time.Now())
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) timeOf(event string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.events {
		if e == event {
			return l.times[i], true
		}
	}
	return time.Time{}, false
}

func (l *eventLog) indexOf(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.events {
		if e == event {
			return i
		}
	}
	return -1
}

// mockService is a controllable fake: Start flips a readiness endpoint after
// a configurable delay (or never), and all lifecycle calls land in the
// shared event log.
type mockService struct {
	label string
	deps  []string

	becomeReady bool
	readyDelay  time.Duration

	ready  atomic.Bool
	server *httptest.Server
	log    *eventLog

	mu       sync.Mutex
	state    services.ServiceState
	health   services.HealthStatus
	lastErr  error
	callback services.StateChangeCallback
	startCtx context.Context
}

func newMockService(t *testing.T, label string, deps []string, becomeReady bool, readyDelay time.Duration, log *eventLog) (*mockService, int) {
	t.Helper()

	m := &mockService{
		label:       label,
		deps:        deps,
		becomeReady: becomeReady,
		readyDelay:  readyDelay,
		log:         log,
		state:       services.StateUnknown,
		health:      services.HealthUnknown,
	}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.ready.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(m.server.Close)

	_, portStr, err := net.SplitHostPort(m.server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return m, port
}

func (m *mockService) Start(ctx context.Context) error {
	m.log.append("start:" + m.label)
	m.mu.Lock()
	m.startCtx = ctx
	m.mu.Unlock()
	m.setState(services.StateRunning, services.HealthChecking, nil)
	if m.becomeReady {
		if m.readyDelay <= 0 {
			m.ready.Store(true)
		} else {
			time.AfterFunc(m.readyDelay, func() { m.ready.Store(true) })
		}
	}
	return nil
}

func (m *mockService) Stop(ctx context.Context) error {
	m.log.append("stop:" + m.label)
	m.ready.Store(false)
	m.setState(services.StateStopped, services.HealthUnknown, nil)
	return nil
}

func (m *mockService) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}
	return m.Start(ctx)
}

func (m *mockService) GetState() services.ServiceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockService) GetHealth() services.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

func (m *mockService) GetLastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *mockService) startContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCtx
}

func (m *mockService) GetLabel() string          { return m.label }
func (m *mockService) GetDependencies() []string { return m.deps }

func (m *mockService) SetStateChangeCallback(callback services.StateChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = callback
}

func (m *mockService) UpdateState(state services.ServiceState, health services.HealthStatus, err error) {
	m.setState(state, health, err)
}

func (m *mockService) CheckHealth(ctx context.Context) (services.HealthStatus, error) {
	if m.ready.Load() {
		return services.HealthHealthy, nil
	}
	return services.HealthUnhealthy, nil
}

func (m *mockService) GetHealthCheckInterval() time.Duration { return 50 * time.Millisecond }

func (m *mockService) setState(state services.ServiceState, health services.HealthStatus, err error) {
	m.mu.Lock()
	old := m.state
	m.state = state
	m.health = health
	m.lastErr = err
	callback := m.callback
	m.mu.Unlock()

	if callback != nil && old != state {
		callback(m.label, old, state, health, err)
	}
}

// fleet bundles the mocks and specs for a test orchestrator.
type fleet struct {
	log   *eventLog
	mocks map[string]*mockService
	specs []config.ServiceSpec
}

type mockSpec struct {
	name        string
	deps        []string
	becomeReady bool
	readyDelay  time.Duration
}

func newTestOrchestrator(t *testing.T, failFast bool, defs []mockSpec) (*Orchestrator, *fleet) {
	t.Helper()

	f := &fleet{
		log:   &eventLog{},
		mocks: make(map[string]*mockService),
	}
	for _, def := range defs {
		mock, port := newMockService(t, def.name, def.deps, def.becomeReady, def.readyDelay, f.log)
		f.mocks[def.name] = mock
		f.specs = append(f.specs, config.ServiceSpec{
			Name:          def.name,
			Enabled:       true,
			Command:       []string{"true"},
			Port:          port,
			ReadinessPath: "/",
			DependsOn:     def.deps,
			Restart:       config.RestartNever,
			ProbeInterval: config.Duration(25 * time.Millisecond),
			ProbeTimeout:  config.Duration(500 * time.Millisecond),
		})
	}

	o := &Orchestrator{
		registry:       services.NewRegistry(),
		healthStore:    reporting.NewHealthStore(),
		specs:          f.specs,
		failFast:       failFast,
		stopReasons:    make(map[string]StopReason),
		blockedBy:      make(map[string]string),
		healthCheckers: make(map[string]bool),
		ctx:            context.Background(),
	}
	o.depGraph = o.buildDependencyGraph()
	for _, spec := range f.specs {
		require.NoError(t, o.registry.Register(f.mocks[spec.Name]))
		o.healthStore.Register(spec.Name, spec.ProbeTimeout.Std())
	}
	return o, f
}
