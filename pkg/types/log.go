package types

import (
	"strings"
	"time"
)

// LogLevel is the severity of a log entry as shown by the console.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarn    LogLevel = "warn"
	LevelError   LogLevel = "error"

	// LevelAll matches every level in log queries.
	LevelAll LogLevel = "all"
)

// ParseLogLevel maps backend level names (INFO, WARN, ERROR, ...) onto the
// console levels. Unknown names become info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return LevelSuccess
	case "warn", "warning":
		return LevelWarn
	case "error", "fatal":
		return LevelError
	case "all":
		return LevelAll
	default:
		return LevelInfo
	}
}

// LogEntry is one line of the benchmark log.
type LogEntry struct {
	Timestamp string   `json:"timestamp"`
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
}

// UnmarshalJSON normalises the level.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp string `json:"timestamp"`
		Level     string `json:"level"`
		Message   string `json:"message"`
	}
	if err := Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Timestamp = raw.Timestamp
	e.Level = ParseLogLevel(raw.Level)
	e.Message = raw.Message
	return nil
}

// LogTimestampLayout is the backend's log timestamp format.
const LogTimestampLayout = "2006-01-02 15:04:05.000"

// NewLogEntry creates an entry stamped with t.
func NewLogEntry(t time.Time, level LogLevel, message string) LogEntry {
	return LogEntry{
		Timestamp: t.Format(LogTimestampLayout),
		Level:     level,
		Message:   message,
	}
}
