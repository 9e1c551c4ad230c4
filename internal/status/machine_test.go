package status

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzsind/dbbench/pkg/types"
)

func observeAll(m *Machine, statuses ...types.BenchmarkStatus) Update {
	var u Update
	for _, s := range statuses {
		u = m.Observe(s)
	}
	return u
}

func TestMachine_TransitionEvents(t *testing.T) {
	tests := []struct {
		name string
		seq  []types.BenchmarkStatus
		want types.TransitionEvent
	}{
		{"first status", []types.BenchmarkStatus{types.StatusLoading}, types.EventNone},
		{"from idle", []types.BenchmarkStatus{types.StatusIdle, types.StatusLoading}, types.EventNone},
		{"idle to error", []types.BenchmarkStatus{types.StatusIdle, types.StatusError}, types.EventNone},
		{"load succeeded", []types.BenchmarkStatus{types.StatusLoading, types.StatusLoaded}, types.EventLoadSucceeded},
		{"load cancelled", []types.BenchmarkStatus{types.StatusLoading, types.StatusCancelled}, types.EventLoadCancelled},
		{"load failed", []types.BenchmarkStatus{types.StatusLoading, types.StatusError}, types.EventLoadFailed},
		{"run completed", []types.BenchmarkStatus{types.StatusRunning, types.StatusStopped}, types.EventRunCompleted},
		{"generic error", []types.BenchmarkStatus{types.StatusRunning, types.StatusError}, types.EventGenericError},
		{"unchanged", []types.BenchmarkStatus{types.StatusRunning, types.StatusRunning}, types.EventNone},
		{"other pair", []types.BenchmarkStatus{types.StatusLoaded, types.StatusRunning}, types.EventNone},
		{"stopping", []types.BenchmarkStatus{types.StatusRunning, types.StatusStopping}, types.EventNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(clockwork.NewFakeClock(), 0)
			defer m.Close()
			u := observeAll(m, tt.seq...)
			assert.Equal(t, tt.want, u.Event)

			tr, ok := u.Transition()
			assert.Equal(t, tt.want != types.EventNone, ok)
			if ok {
				assert.Equal(t, tt.seq[len(tt.seq)-2], tr.From)
			}
		})
	}
}

func TestMachine_Capabilities(t *testing.T) {
	m := New(clockwork.NewFakeClock(), 0)
	defer m.Close()

	u := m.Observe(types.StatusRunning)
	assert.Equal(t, types.Capabilities{CanStop: true}, u.Capabilities)

	u = m.Observe(types.StatusStopping)
	assert.Equal(t, types.Capabilities{CanStart: true, CanLoad: true, CanClean: true}, u.Capabilities)

	u = m.Observe(types.StatusLoaded)
	assert.Equal(t, types.Capabilities{CanStart: true, CanLoad: true, CanClean: true, CanEditConfig: true}, u.Capabilities)
	assert.Equal(t, u.Capabilities, m.Capabilities())
}

func TestMachine_EmptyStatusIgnored(t *testing.T) {
	m := New(clockwork.NewFakeClock(), 0)
	defer m.Close()
	calls := 0
	m.Subscribe(func(Update) { calls++ })

	m.Observe(types.StatusRunning)
	u := m.Observe("")
	assert.False(t, u.Changed)
	assert.Equal(t, types.StatusRunning, m.Status())
	assert.Equal(t, 1, calls)
}

func TestMachine_ListenerFiresOnEveryUpdate(t *testing.T) {
	m := New(clockwork.NewFakeClock(), 0)
	defer m.Close()
	var got []Update
	m.Subscribe(func(u Update) { got = append(got, u) })

	observeAll(m, types.StatusIdle, types.StatusIdle, types.StatusRunning)
	require.Len(t, got, 3)
	assert.True(t, got[0].Changed)
	assert.False(t, got[1].Changed)
	assert.True(t, got[2].Changed)
}

func TestMachine_LoadingArmsProgress(t *testing.T) {
	m := New(clockwork.NewFakeClock(), 0)
	defer m.Close()

	m.Observe(types.StatusLoading)
	p := m.Progress()
	assert.True(t, p.Active)
	assert.True(t, p.CancelArmed)

	m.CancelRequested()
	assert.False(t, m.Progress().CancelArmed)
	assert.True(t, m.Progress().Active)

	m.Observe(types.StatusCancelled)
	assert.False(t, m.Progress().Active)
}

func TestMachine_SetProgress(t *testing.T) {
	m := New(clockwork.NewFakeClock(), 0)
	defer m.Close()
	var seen []types.Progress
	m.SubscribeProgress(func(p types.Progress) { seen = append(seen, p) })

	m.ArmLoad()
	assert.Equal(t, types.Progress{Active: true, Message: "Starting...", CancelArmed: true}, m.Progress())

	m.SetProgress(40, "Loading warehouse 4/10")
	assert.Equal(t, 40, m.Progress().Percent)

	m.SetProgress(-1, "Load failed")
	p := m.Progress()
	assert.True(t, p.Failed)
	assert.Equal(t, 0, p.Percent)
	assert.Equal(t, "Load failed", p.Message)
	assert.Len(t, seen, 3)
}

func TestMachine_GraceDelayHidesProgress(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := New(clock, 3*time.Second)
	defer m.Close()

	m.Observe(types.StatusLoading)
	m.SetProgress(100, "done")
	m.Observe(types.StatusError)
	assert.True(t, m.Progress().Active)

	clock.Advance(2 * time.Second)
	assert.True(t, m.Progress().Active)

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return !m.Progress().Active }, time.Second, 5*time.Millisecond)
}

func TestMachine_GraceDelayNotExtendedByRepeatedStatus(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := New(clock, 3*time.Second)
	defer m.Close()

	m.Observe(types.StatusLoading)
	m.Observe(types.StatusError)

	// the poll fallback keeps reporting ERROR every 2s
	clock.Advance(2 * time.Second)
	m.Observe(types.StatusError)
	assert.True(t, m.Progress().Active)

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return !m.Progress().Active }, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		clock.Advance(2 * time.Second)
		m.Observe(types.StatusError)
	}
	p := m.Progress()
	assert.False(t, p.Active)
	assert.False(t, p.CancelArmed)
}

func TestMachine_GraceDelayRestartsAfterNewLoad(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := New(clock, 3*time.Second)
	defer m.Close()

	m.Observe(types.StatusLoading)
	m.Observe(types.StatusError)
	clock.Advance(2 * time.Second)

	m.Observe(types.StatusLoading)
	m.Observe(types.StatusError)

	// the timer from the first ERROR was cancelled by LOADING
	clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, m.Progress().Active)

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return !m.Progress().Active }, time.Second, 5*time.Millisecond)
}

func TestMachine_GraceDelaySkippedWhenLoadingAgain(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := New(clock, 3*time.Second)
	defer m.Close()

	var mu sync.Mutex
	hidden := 0
	m.SubscribeProgress(func(p types.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if !p.Active {
			hidden++
		}
	})

	m.Observe(types.StatusLoading)
	m.Observe(types.StatusInitialized)
	m.Observe(types.StatusLoading)

	clock.Advance(4 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, m.Progress().Active)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, hidden)
}

func TestMachine_CloseStopsGraceTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := New(clock, time.Second)

	m.Observe(types.StatusLoading)
	m.Observe(types.StatusError)
	m.Close()

	clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, m.Progress().Active)
}
