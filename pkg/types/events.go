package types

import "time"

// ConnectionState is the state of the push channel.
type ConnectionState string

const (
	ConnConnecting ConnectionState = "connecting"
	ConnOpen       ConnectionState = "open"
	ConnClosed     ConnectionState = "closed"
)

// Progress is the data-load progress indicator.
type Progress struct {
	Active      bool   `json:"active"`
	Percent     int    `json:"percent"`
	Message     string `json:"message"`
	Failed      bool   `json:"failed"`
	CancelArmed bool   `json:"cancelArmed"`
}

// NotificationKind is the severity of a transient notification.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyInfo    NotificationKind = "info"
	NotifyWarning NotificationKind = "warning"
	NotifyError   NotificationKind = "error"
)

// Notification is a transient user-facing message.
type Notification struct {
	ID      string           `json:"id"`
	Kind    NotificationKind `json:"kind"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Time    time.Time        `json:"time"`
}
