// Package syncer coordinates the console's telemetry core.
//
// A Controller owns the stores (series, rates, logs, status), hydrates them
// from the backend at startup, keeps them current through the transport and
// publishes every change to the configured sinks. Commands issued by the
// user are forwarded to the backend and their outcome is reported through
// the live log tail and notifications.
package syncer
