package shared

import "time"

// Severity orders log entries from routine to critical. The numeric order
// matters: teachers filter the audit trail by minimum severity.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeveritySevere
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeveritySevere:
		return "severe"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// LogEntry is a client-observed event of interest (e.g. a suspected cheating
// signal) shipped to the server as an append-only audit trail. It is never
// read back by the student client, only by the teacher-facing log viewer.
type LogEntry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	Description   string    `json:"description,omitempty"`
	Severity      Severity  `json:"severity"`
	QuestionIndex *int      `json:"questionIndex,omitempty"`
}
