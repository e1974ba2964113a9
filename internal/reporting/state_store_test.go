package reporting

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinozorionktr/healthconnect-a2a/internal/services"
)

func passingSnapshot(name string) ServiceHealthSnapshot {
	return ServiceHealthSnapshot{
		Name:        name,
		State:       services.StateRunning,
		Health:      services.HealthHealthy,
		LastProbeOK: true,
		LastProbeAt: time.Now(),
	}
}

func TestEmptyStoreIsUnhealthy(t *testing.T) {
	hs := NewHealthStore()
	assert.False(t, hs.SystemHealth().Healthy, "a fleet with no services has nothing to vouch for")
}

func TestRegisteredServiceStartsUnhealthy(t *testing.T) {
	hs := NewHealthStore()
	hs.Register("patient-agent", time.Minute)

	doc := hs.SystemHealth()
	assert.False(t, doc.Healthy)

	snapshot := doc.Services["patient-agent"]
	assert.Equal(t, services.StateWaiting, snapshot.State)
	assert.Equal(t, services.HealthUnknown, snapshot.Health)
	assert.False(t, snapshot.LastProbeOK)
}

func TestAggregateRequiresEveryServicePassing(t *testing.T) {
	names := []string{"patient", "doctor", "booking", "coordinator", "dashboard"}
	hs := NewHealthStore()
	for _, name := range names {
		hs.Register(name, time.Minute)
	}

	// Flip them healthy one at a time; the verdict only turns once all pass.
	for i, name := range names {
		hs.SetServiceHealth(passingSnapshot(name))
		if i < len(names)-1 {
			assert.False(t, hs.SystemHealth().Healthy, "verdict must stay unhealthy with %d/%d passing", i+1, len(names))
		}
	}
	assert.True(t, hs.SystemHealth().Healthy)

	// One failing service drags the whole fleet down again.
	failing := passingSnapshot("doctor")
	failing.LastProbeOK = false
	failing.LastError = "probe: status 503"
	hs.SetServiceHealth(failing)

	assert.False(t, hs.SystemHealth().Healthy)
	assert.Equal(t, []string{"doctor"}, hs.UnhealthyServices())
}

func TestStaleProbeCountsAsUnhealthy(t *testing.T) {
	hs := NewHealthStore()
	hs.Register("agent", 100*time.Millisecond)

	snapshot := passingSnapshot("agent")
	snapshot.LastProbeAt = time.Now().Add(-time.Second)
	hs.SetServiceHealth(snapshot)

	assert.False(t, hs.SystemHealth().Healthy, "a probe older than the staleness window cannot be trusted")
}

func TestZeroWindowDisablesStalenessCheck(t *testing.T) {
	hs := NewHealthStore()
	hs.Register("agent", 0)

	snapshot := passingSnapshot("agent")
	snapshot.LastProbeAt = time.Now().Add(-time.Hour)
	hs.SetServiceHealth(snapshot)

	assert.True(t, hs.SystemHealth().Healthy)
}

func TestRegisterIsIdempotentForOrder(t *testing.T) {
	hs := NewHealthStore()
	hs.Register("a", time.Minute)
	hs.Register("b", time.Minute)
	hs.Register("a", time.Minute)

	assert.Equal(t, []string{"a", "b"}, hs.Names())
}

func TestRegisterResetsSnapshot(t *testing.T) {
	hs := NewHealthStore()
	hs.Register("a", time.Minute)
	hs.SetServiceHealth(passingSnapshot("a"))
	hs.Register("a", time.Minute)

	snapshot, exists := hs.GetServiceHealth("a")
	require.True(t, exists)
	assert.False(t, snapshot.LastProbeOK)
	assert.Equal(t, services.StateWaiting, snapshot.State)
}

func TestUpdateServiceHealthSeesPreviousSnapshot(t *testing.T) {
	hs := NewHealthStore()
	hs.Register("agent", time.Minute)
	hs.SetServiceHealth(passingSnapshot("agent"))

	hs.UpdateServiceHealth("agent", func(prev ServiceHealthSnapshot) ServiceHealthSnapshot {
		assert.True(t, prev.LastProbeOK)
		prev.State = services.StateStopping
		return prev
	})

	snapshot, exists := hs.GetServiceHealth("agent")
	require.True(t, exists)
	assert.Equal(t, services.StateStopping, snapshot.State)
	assert.True(t, snapshot.LastProbeOK, "the probe history must survive the update")
}

func TestUpdateServiceHealthCreatesUnknownEntry(t *testing.T) {
	hs := NewHealthStore()
	hs.UpdateServiceHealth("late", func(prev ServiceHealthSnapshot) ServiceHealthSnapshot {
		assert.Equal(t, "late", prev.Name)
		prev.State = services.StateStarting
		return prev
	})

	assert.Equal(t, []string{"late"}, hs.Names())
	snapshot, exists := hs.GetServiceHealth("late")
	require.True(t, exists)
	assert.Equal(t, services.StateStarting, snapshot.State)
}

func TestUpdateServiceHealthIsAtomicUnderContention(t *testing.T) {
	// State transitions and probe results land from different goroutines; a
	// read-modify-write outside the store's lock would lose increments here.
	hs := NewHealthStore()
	hs.Register("agent", time.Minute)

	const writers = 8
	const perWriter = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				hs.UpdateServiceHealth("agent", func(prev ServiceHealthSnapshot) ServiceHealthSnapshot {
					prev.RestartCount++
					return prev
				})
			}
		}()
	}
	wg.Wait()

	snapshot, exists := hs.GetServiceHealth("agent")
	require.True(t, exists)
	assert.Equal(t, writers*perWriter, snapshot.RestartCount)
}

func TestUnhealthyServicesSorted(t *testing.T) {
	hs := NewHealthStore()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		hs.Register(name, time.Minute)
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, hs.UnhealthyServices())
}
