// Package sink provides the visualization sink framework of the console.
//
// A sink receives the read-only views published by the synchronization core:
// series updates, status changes and log events. Richer sinks opt into more
// events by implementing the optional interfaces (TransitionSink,
// ProgressSink, ConnectionSink, PanelSink, NotificationSink).
//
// # Architecture
//
//   - Sink: the interface every sink implements
//   - Registry: maps sink types to factories
//   - Manager: fans every event out to the registered sinks
//
// Example:
//
//	registry := sink.NewRegistry()
//	builtin.Register(registry)
//
//	manager := sink.NewManager(registry, logger)
//	manager.AddFromConfig(&sink.Config{Type: sink.TypeConsole, Enabled: true})
//	manager.OnStatusChanged(types.StatusRunning, types.CapabilitiesFor(types.StatusRunning))
//	manager.Close(ctx)
package sink
