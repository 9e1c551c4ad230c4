package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/yzsind/dbbench/internal/sink"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateServerConfig(&cfg.Server)
	v.validateTransportConfig(&cfg.Transport)
	v.validateStoreConfig(&cfg.Store)
	v.validateStatusConfig(&cfg.Status)
	v.validateMetricsConfig(&cfg.Metrics)
	v.validateLoggingConfig(cfg)
	v.validateSinks(cfg.Sinks)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServerConfig(cfg *ServerConfig) {
	if cfg.BaseURL == "" {
		v.addError("server.base_url", "base url is required")
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.addError("server.base_url", "invalid base url, expected http(s)://host[:port]")
	}

	if cfg.RequestTimeout <= 0 {
		v.addError("server.request_timeout", "request timeout must be positive")
	}
}

func (v *Validator) validateTransportConfig(cfg *TransportConfig) {
	if !strings.HasPrefix(cfg.PushPath, "/") {
		v.addError("transport.push_path", "push path must start with /")
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"transport.poll_interval", cfg.PollInterval},
		{"transport.reconnect_delay", cfg.ReconnectDelay},
		{"transport.handshake_timeout", cfg.HandshakeTimeout},
		{"transport.fetch_timeout", cfg.FetchTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			v.addError(d.field, "duration must be positive")
		}
	}
}

func (v *Validator) validateStoreConfig(cfg *StoreConfig) {
	sizes := []struct {
		field string
		value int
	}{
		{"store.series_capacity", cfg.SeriesCapacity},
		{"store.log_history", cfg.LogHistory},
		{"store.log_tail", cfg.LogTail},
		{"store.history_backfill", cfg.HistoryBackfill},
		{"store.startup_log_fetch", cfg.StartupLogFetch},
		{"store.viewer_log_fetch", cfg.ViewerLogFetch},
	}
	for _, s := range sizes {
		if s.value < 1 {
			v.addError(s.field, "must be at least 1")
		}
	}

	if cfg.StartupTailSeed < 0 {
		v.addError("store.startup_tail_seed", "startup tail seed must be non-negative")
	}
	if cfg.LogTail > cfg.LogHistory && cfg.LogHistory > 0 {
		v.addError("store.log_tail", "log tail should not exceed log history")
	}
}

func (v *Validator) validateStatusConfig(cfg *StatusConfig) {
	if cfg.GraceDelay <= 0 {
		v.addError("status.grace_delay", "grace delay must be positive")
	}
}

func (v *Validator) validateMetricsConfig(cfg *MetricsConfig) {
	if cfg.Enabled && !isValidAddress(cfg.Address) {
		v.addError("metrics.address", "invalid address format, expected host:port or :port")
	}
}

func (v *Validator) validateLoggingConfig(cfg *Config) {
	log := cfg.Logging

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if log.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(log.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", log.Level))
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if log.Format == "" {
		v.addError("logging.format", "log format is required")
	} else if !validFormats[strings.ToLower(log.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", log.Format))
	}

	switch strings.ToLower(log.Output) {
	case "", "stdout", "stderr":
	case "file", "both":
		if log.FilePath == "" {
			v.addError("logging.file_path", "file path is required when output is file or both")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, stderr, file, both", log.Output))
	}
}

func (v *Validator) validateSinks(sinks []sink.Config) {
	known := map[sink.Type]bool{
		sink.TypeConsole:    true,
		sink.TypeJSONL:      true,
		sink.TypePrometheus: true,
		sink.TypeWebhook:    true,
	}
	for i, s := range sinks {
		field := fmt.Sprintf("sinks[%d].type", i)
		if s.Type == "" {
			v.addError(field, "sink type is required")
		} else if !known[s.Type] {
			v.addError(field, fmt.Sprintf("unknown sink type '%s'", s.Type))
		}
	}
}

// isValidAddress checks if the address is a valid host:port format.
func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil && !isValidHostname(host) {
		return false
	}
	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}
	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}
	return true
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}
