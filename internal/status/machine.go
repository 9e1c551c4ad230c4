// Package status tracks the benchmark lifecycle as reported by the backend.
//
// The backend is authoritative, so the machine does not enforce a transition
// graph. It records the last observed status, derives the capability flags,
// and classifies the changes the console reacts to. It also owns the data
// load progress indicator, whose visibility follows the status.
package status

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yzsind/dbbench/pkg/types"
)

// DefaultGraceDelay is how long the progress indicator stays visible after
// loading settles.
const DefaultGraceDelay = 3 * time.Second

// Update is the result of observing a status.
type Update struct {
	Previous     types.BenchmarkStatus
	Current      types.BenchmarkStatus
	Changed      bool
	Event        types.TransitionEvent
	Capabilities types.Capabilities
}

// Transition returns the transition carried by the update, if any.
func (u Update) Transition() (types.Transition, bool) {
	if u.Event == types.EventNone {
		return types.Transition{}, false
	}
	return types.Transition{From: u.Previous, To: u.Current, Event: u.Event}, true
}

// Listener is called after every observed status.
type Listener func(Update)

// ProgressListener is called whenever the progress indicator changes.
type ProgressListener func(types.Progress)

// Machine is safe for concurrent use. Listeners run outside the lock.
type Machine struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	grace      time.Duration
	current    types.BenchmarkStatus
	progress   types.Progress
	graceTimer clockwork.Timer
	graceGen   uint64
	closed     bool

	listeners         []Listener
	progressListeners []ProgressListener
}

// New creates a Machine. A nil clock uses the real clock and a non-positive
// grace uses DefaultGraceDelay.
func New(clock clockwork.Clock, grace time.Duration) *Machine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if grace <= 0 {
		grace = DefaultGraceDelay
	}
	return &Machine{clock: clock, grace: grace}
}

// Subscribe registers a status listener.
func (m *Machine) Subscribe(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// SubscribeProgress registers a progress listener.
func (m *Machine) SubscribeProgress(l ProgressListener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.progressListeners = append(m.progressListeners, l)
	m.mu.Unlock()
}

// Observe records s as the current status. An empty status is ignored.
func (m *Machine) Observe(s types.BenchmarkStatus) Update {
	m.mu.Lock()
	if s.IsZero() {
		u := Update{Previous: m.current, Current: m.current, Capabilities: types.CapabilitiesFor(m.current)}
		m.mu.Unlock()
		return u
	}

	prev := m.current
	m.current = s
	u := Update{
		Previous:     prev,
		Current:      s,
		Changed:      prev != s,
		Capabilities: types.CapabilitiesFor(s),
	}
	// IDLE is the boot state; leaving it is never reported as a change.
	if u.Changed && !prev.IsZero() && prev != types.StatusIdle {
		u.Event = classify(prev, s)
	}

	before := m.progress
	switch {
	case s == types.StatusLoading:
		m.progress.Active = true
		m.progress.CancelArmed = true
		m.cancelSettleLocked()
	case u.Event == types.EventLoadSucceeded || u.Event == types.EventLoadCancelled:
		m.progress.Active = false
		m.progress.CancelArmed = false
	}
	if s.SettlesProgress() && !m.closed {
		m.scheduleSettleLocked()
	}
	progress := m.progress
	listeners := m.listeners
	progressListeners := m.progressListeners
	m.mu.Unlock()

	for _, l := range listeners {
		l(u)
	}
	if progress != before {
		for _, l := range progressListeners {
			l(progress)
		}
	}
	return u
}

func classify(from, to types.BenchmarkStatus) types.TransitionEvent {
	switch {
	case from == types.StatusLoading && to == types.StatusLoaded:
		return types.EventLoadSucceeded
	case from == types.StatusLoading && to == types.StatusCancelled:
		return types.EventLoadCancelled
	case from == types.StatusLoading && to == types.StatusError:
		return types.EventLoadFailed
	case from == types.StatusRunning && to == types.StatusStopped:
		return types.EventRunCompleted
	case to == types.StatusError:
		return types.EventGenericError
	default:
		return types.EventNone
	}
}

// scheduleSettleLocked starts the grace timer unless one is already pending.
// Repeated settling statuses keep the first deadline.
func (m *Machine) scheduleSettleLocked() {
	if m.graceTimer != nil {
		return
	}
	gen := m.graceGen
	m.graceTimer = m.clock.AfterFunc(m.grace, func() { m.settle(gen) })
}

func (m *Machine) cancelSettleLocked() {
	m.graceGen++
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
}

func (m *Machine) settle(gen uint64) {
	m.mu.Lock()
	if gen != m.graceGen {
		m.mu.Unlock()
		return
	}
	m.graceTimer = nil
	if m.closed || m.current == types.StatusLoading || !m.progress.Active && !m.progress.CancelArmed {
		m.mu.Unlock()
		return
	}
	m.progress.Active = false
	m.progress.CancelArmed = false
	progress := m.progress
	listeners := m.progressListeners
	m.mu.Unlock()

	for _, l := range listeners {
		l(progress)
	}
}

// SetProgress shows the progress indicator. A negative percent marks the
// load as failed.
func (m *Machine) SetProgress(percent int, message string) {
	m.mu.Lock()
	m.progress.Active = true
	if percent >= 0 {
		m.progress.Percent = percent
		m.progress.Failed = false
	} else {
		m.progress.Percent = 0
		m.progress.Failed = true
	}
	m.progress.Message = message
	m.notifyProgressLocked()
}

// ArmLoad shows the indicator at 0% with the cancel affordance enabled.
func (m *Machine) ArmLoad() {
	m.mu.Lock()
	m.progress = types.Progress{Active: true, Message: "Starting...", CancelArmed: true}
	m.notifyProgressLocked()
}

// CancelRequested disarms the cancel affordance.
func (m *Machine) CancelRequested() {
	m.mu.Lock()
	m.progress.CancelArmed = false
	m.notifyProgressLocked()
}

// notifyProgressLocked releases the lock before calling listeners.
func (m *Machine) notifyProgressLocked() {
	progress := m.progress
	listeners := m.progressListeners
	m.mu.Unlock()
	for _, l := range listeners {
		l(progress)
	}
}

// Status returns the last observed status.
func (m *Machine) Status() types.BenchmarkStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Capabilities returns the flags for the current status.
func (m *Machine) Capabilities() types.Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.CapabilitiesFor(m.current)
}

// Progress returns the progress indicator state.
func (m *Machine) Progress() types.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Close stops the pending grace timer.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cancelSettleLocked()
}
