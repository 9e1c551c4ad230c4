package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusRunning, ParseStatus(" running "))
	assert.Equal(t, BenchmarkStatus("WARMING_UP"), ParseStatus("warming_up"))
	assert.True(t, ParseStatus("").IsZero())
}

func TestCapabilitiesFor(t *testing.T) {
	tests := []struct {
		status BenchmarkStatus
		want   Capabilities
	}{
		{StatusIdle, Capabilities{CanStart: true, CanLoad: true, CanClean: true, CanEditConfig: true}},
		{StatusRunning, Capabilities{CanStop: true}},
		{StatusLoading, Capabilities{}},
		{StatusStopping, Capabilities{CanStart: true, CanLoad: true, CanClean: true}},
		{StatusError, Capabilities{CanStart: true, CanLoad: true, CanClean: true, CanEditConfig: true}},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CapabilitiesFor(tt.status))
		})
	}
}

func TestSettlesProgress(t *testing.T) {
	for _, s := range []BenchmarkStatus{StatusLoaded, StatusError, StatusInitialized, StatusCancelled} {
		assert.True(t, s.SettlesProgress(), s)
	}
	for _, s := range []BenchmarkStatus{StatusIdle, StatusLoading, StatusRunning, StatusStopped} {
		assert.False(t, s.SettlesProgress(), s)
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelInfo, ParseLogLevel("INFO"))
	assert.Equal(t, LevelWarn, ParseLogLevel("Warning"))
	assert.Equal(t, LevelError, ParseLogLevel("FATAL"))
	assert.Equal(t, LevelSuccess, ParseLogLevel("success"))
	assert.Equal(t, LevelInfo, ParseLogLevel("trace"))
}
