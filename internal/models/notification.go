package models

import (
	"time"
)

// Severity of a notification. Unknown values are passed through untouched.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// TargetType selects which connections a notification is delivered to.
type TargetType string

const (
	TargetEveryone TargetType = "everyone"
	TargetUser     TargetType = "user"
	TargetRole     TargetType = "role"
)

// Selector is resolved against the live registry at delivery time.
type Selector struct {
	Type  TargetType `json:"type"`
	Value string     `json:"value,omitempty"`
}

// Everyone matches every live connection, authenticated or not.
func Everyone() Selector { return Selector{Type: TargetEveryone} }

// ByUser matches the connections authenticated as userID.
func ByUser(userID string) Selector { return Selector{Type: TargetUser, Value: userID} }

// ByRole matches the connections authenticated with role.
func ByRole(role string) Selector { return Selector{Type: TargetRole, Value: role} }

// Notification is immutable once constructed.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
	Target    Selector  `json:"target"`
}

// SystemStatus is the heartbeat payload.
type SystemStatus struct {
	ActiveConnections        int       `json:"active_connections"`
	AuthenticatedConnections int       `json:"authenticated_connections"`
	Healthy                  bool      `json:"healthy"`
	ServerTime               time.Time `json:"server_time"`
}

// ConnectionMetrics is what observability collaborators read.
type ConnectionMetrics struct {
	ActiveConnections        int `json:"active_connections"`
	AuthenticatedConnections int `json:"authenticated_connections"`
}
