// Package types defines the wire shapes exchanged with the dbbench backend
// and the view types published by the telemetry core.
package types
