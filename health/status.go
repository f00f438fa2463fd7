// Package health reports the state of a subgraph process: its HTTP
// listener, its NATS connection and its record store.
//
// A Monitor holds named probes and runs them on demand. Each probe yields a
// Status; Check aggregates them so that any unhealthy part makes the whole
// unhealthy and any degraded part makes it degraded.
package health

import (
	"regexp"
	"time"
)

// Status levels
const (
	LevelHealthy   = "healthy"
	LevelDegraded  = "degraded"
	LevelUnhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|redis|wss?)://[^\s]+`)
	ipPortRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d{2,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one part, or of the whole with SubStatuses
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsDegraded reports whether the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == LevelDegraded
}

// IsUnhealthy reports whether the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == LevelUnhealthy
}

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, LevelHealthy, message)
}

// NewDegraded creates a degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, LevelDegraded, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, LevelUnhealthy, message)
}

func newStatus(component, level, message string) Status {
	return Status{
		Component: component,
		Healthy:   level == LevelHealthy,
		Status:    level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate combines subs into one status for component
func Aggregate(component string, subs []Status) Status {
	var unhealthy, degraded bool
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			unhealthy = true
		case sub.IsDegraded():
			degraded = true
		}
	}

	var status Status
	switch {
	case unhealthy:
		status = NewUnhealthy(component, "one or more parts are unhealthy")
	case degraded:
		status = NewDegraded(component, "one or more parts are degraded")
	default:
		status = NewHealthy(component, "")
	}
	status.SubStatuses = append([]Status(nil), subs...)
	return status
}

// sanitizeErrorMessage strips addresses and credentials from probe errors
// before they are served on an unauthenticated endpoint.
func sanitizeErrorMessage(msg string) string {
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipPortRegex.ReplaceAllString(msg, "[ADDR]")
	return credentialRegex.ReplaceAllString(msg, "[REDACTED]")
}
