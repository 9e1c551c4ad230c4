package types

import "strings"

// BenchmarkStatus is the lifecycle state reported by the backend engine.
type BenchmarkStatus string

const (
	StatusIdle         BenchmarkStatus = "IDLE"
	StatusLoading      BenchmarkStatus = "LOADING"
	StatusLoaded       BenchmarkStatus = "LOADED"
	StatusRunning      BenchmarkStatus = "RUNNING"
	StatusStopping     BenchmarkStatus = "STOPPING"
	StatusStopped      BenchmarkStatus = "STOPPED"
	StatusError        BenchmarkStatus = "ERROR"
	StatusCancelled    BenchmarkStatus = "CANCELLED"
	StatusInitialized  BenchmarkStatus = "INITIALIZED"
	StatusInitializing BenchmarkStatus = "INITIALIZING"
	StatusShutdown     BenchmarkStatus = "SHUTDOWN"
)

// ParseStatus normalises a status string. Unknown values are kept verbatim
// because the backend is authoritative.
func ParseStatus(s string) BenchmarkStatus {
	return BenchmarkStatus(strings.ToUpper(strings.TrimSpace(s)))
}

// String returns the status text.
func (s BenchmarkStatus) String() string {
	return string(s)
}

// IsZero reports whether no status has been observed.
func (s BenchmarkStatus) IsZero() bool {
	return s == ""
}

// SettlesProgress reports whether the status ends a loading phase, after
// which the progress indicator is hidden.
func (s BenchmarkStatus) SettlesProgress() bool {
	switch s {
	case StatusLoaded, StatusError, StatusInitialized, StatusCancelled:
		return true
	default:
		return false
	}
}

// Capabilities are the UI affordances derived from the current status.
type Capabilities struct {
	CanStart      bool `json:"canStart"`
	CanStop       bool `json:"canStop"`
	CanLoad       bool `json:"canLoad"`
	CanClean      bool `json:"canClean"`
	CanEditConfig bool `json:"canEditConfig"`
}

// CapabilitiesFor derives the capability flags for a status.
func CapabilitiesFor(s BenchmarkStatus) Capabilities {
	running := s == StatusRunning
	loading := s == StatusLoading
	stopping := s == StatusStopping
	return Capabilities{
		CanStart:      !running && !loading,
		CanStop:       running,
		CanLoad:       !running && !loading,
		CanClean:      !running && !loading,
		CanEditConfig: !running && !loading && !stopping,
	}
}

// TransitionEvent is the notification raised for a meaningful status change.
type TransitionEvent string

const (
	EventNone          TransitionEvent = ""
	EventLoadSucceeded TransitionEvent = "load-succeeded"
	EventLoadCancelled TransitionEvent = "load-cancelled"
	EventLoadFailed    TransitionEvent = "load-failed"
	EventRunCompleted  TransitionEvent = "run-completed"
	EventGenericError  TransitionEvent = "generic-error"
)

// Transition describes a status change that produced an event.
type Transition struct {
	From  BenchmarkStatus `json:"from"`
	To    BenchmarkStatus `json:"to"`
	Event TransitionEvent `json:"event"`
}
