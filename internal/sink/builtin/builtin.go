// Package builtin registers the built-in sinks.
package builtin

import (
	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/internal/sink/console"
	"github.com/yzsind/dbbench/internal/sink/jsonl"
	"github.com/yzsind/dbbench/internal/sink/prometheus"
	"github.com/yzsind/dbbench/internal/sink/webhook"
)

// Register registers all built-in sinks with the registry.
func Register(registry *sink.Registry) error {
	factories := []struct {
		t       sink.Type
		factory sink.Factory
	}{
		{sink.TypeConsole, console.NewFactory()},
		{sink.TypeJSONL, jsonl.NewFactory()},
		{sink.TypePrometheus, prometheus.NewFactory()},
		{sink.TypeWebhook, webhook.NewFactory()},
	}
	for _, f := range factories {
		if err := registry.Register(f.t, f.factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry creates a registry with all built-in sinks registered.
func NewRegistry() (*sink.Registry, error) {
	registry := sink.NewRegistry()
	if err := Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
