// Package alerting delivers severity-filtered operational alerts to chat
// channels.
package alerting

import "time"

// Severity orders alerts from informational to critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityOrder = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is at or above the minimum severity.
func (s Severity) AtLeast(min Severity) bool {
	return severityOrder[s] >= severityOrder[min]
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	_, ok := severityOrder[s]
	return ok
}

// Alert is a single operational notification.
type Alert struct {
	Severity  Severity
	Title     string
	Message   string
	Details   map[string]string
	Timestamp time.Time
}
