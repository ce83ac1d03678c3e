package logging

// LogEntry represents a structured log record.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Evolution-specific fields
	Generation int    // Generation the record belongs to, -1 if not applicable
	StrategyID string // Strategy the record concerns, if any

	// General structured data
	Fields map[string]interface{}
}
