package types

import (
	"bytes"
	"errors"
	"fmt"
)

// MessageKind is the discriminator of push channel messages.
type MessageKind string

const (
	KindLog      MessageKind = "log"
	KindProgress MessageKind = "progress"
	KindStatus   MessageKind = "status"
	KindMetrics  MessageKind = "metrics"
)

// ErrMalformedMessage marks a push message that could not be classified.
var ErrMalformedMessage = errors.New("malformed message")

// Message is a classified push channel message. The set of variants is closed:
// handling code implements MessageVisitor, so a new variant is a compile-time
// change for every consumer.
type Message interface {
	Kind() MessageKind
	Accept(v MessageVisitor)
}

// MessageVisitor handles each message variant.
type MessageVisitor interface {
	VisitLog(m *LogMessage)
	VisitProgress(m *ProgressMessage)
	VisitStatus(m *StatusMessage)
	VisitMetrics(m *MetricsMessage)
}

// LogMessage carries one backend log entry.
type LogMessage struct {
	Entry LogEntry
}

// ProgressMessage reports data-load progress. Progress is negative on failure.
type ProgressMessage struct {
	Progress int
	Message  string
	Status   BenchmarkStatus
}

// StatusMessage announces a lifecycle change.
type StatusMessage struct {
	Status  BenchmarkStatus
	Loading bool
	Running bool
}

// MetricsMessage carries a metric snapshot.
type MetricsMessage struct {
	Snapshot MetricSnapshot
}

func (m *LogMessage) Kind() MessageKind      { return KindLog }
func (m *ProgressMessage) Kind() MessageKind { return KindProgress }
func (m *StatusMessage) Kind() MessageKind   { return KindStatus }
func (m *MetricsMessage) Kind() MessageKind  { return KindMetrics }

func (m *LogMessage) Accept(v MessageVisitor)      { v.VisitLog(m) }
func (m *ProgressMessage) Accept(v MessageVisitor) { v.VisitProgress(m) }
func (m *StatusMessage) Accept(v MessageVisitor)   { v.VisitStatus(m) }
func (m *MetricsMessage) Accept(v MessageVisitor)  { v.VisitMetrics(m) }

type envelope struct {
	Type     string    `json:"type"`
	Log      *LogEntry `json:"log"`
	Progress *int      `json:"progress"`
	Message  string    `json:"message"`
	Status   string    `json:"status"`
	Loading  bool      `json:"loading"`
	Running  bool      `json:"running"`
}

// DecodeMessage parses and classifies a raw push message.
func DecodeMessage(raw []byte) (Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedMessage)
	}

	var env envelope
	if err := Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch MessageKind(env.Type) {
	case KindLog:
		if env.Log == nil {
			return nil, fmt.Errorf("%w: log message without log entry", ErrMalformedMessage)
		}
		return &LogMessage{Entry: *env.Log}, nil

	case KindProgress:
		if env.Progress == nil {
			return nil, fmt.Errorf("%w: progress message without progress", ErrMalformedMessage)
		}
		return &ProgressMessage{
			Progress: *env.Progress,
			Message:  env.Message,
			Status:   ParseStatus(env.Status),
		}, nil

	case KindStatus:
		if env.Status == "" {
			return nil, fmt.Errorf("%w: status message without status", ErrMalformedMessage)
		}
		return &StatusMessage{
			Status:  ParseStatus(env.Status),
			Loading: env.Loading,
			Running: env.Running,
		}, nil
	}

	var snap MetricSnapshot
	if err := Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	snap.Status = ParseStatus(string(snap.Status))
	return &MetricsMessage{Snapshot: snap}, nil
}
