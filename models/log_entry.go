package models

// LogEntry is one persisted audit-log row. The same schema backs two
// independent tables: one for gateway (server) calls and one for outbound
// (client) calls. Rows are never mutated after insert; they are only removed
// by an explicit purge or the retention sweep.
type LogEntry struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	// FunctionName holds the service route (group/operation) the entry
	// belongs to.
	FunctionName string `gorm:"column:function_name;type:varchar(90);not null;default:'';index" json:"functionName"`

	// Message is the literal log message, with placeholders unexpanded.
	Message string `gorm:"type:text;not null" json:"message"`

	// Variables is the JSON-encoded placeholder map extracted from the log
	// context, stored alongside the literal message so the entry can be
	// rendered later.
	Variables []byte `gorm:"type:blob;not null" json:"variables"`

	// Severity uses the RFC 5424 numeric scale (0=emergency .. 7=debug).
	Severity int `gorm:"not null;default:0;index" json:"severity"`

	// Location is the full request URI that produced the entry.
	Location string `gorm:"type:text;not null" json:"location"`

	Referer string `gorm:"type:text" json:"referer"`

	// Hostname stores the client IP, truncated to 128 characters.
	Hostname string `gorm:"type:varchar(128);not null;default:''" json:"hostname"`

	// Timestamp is a unix epoch in seconds.
	Timestamp int64 `gorm:"not null;default:0" json:"timestamp"`

	// Data is an optional JSON-encoded context payload.
	Data []byte `gorm:"type:blob" json:"data,omitempty"`

	// UID references the acting user. Weak reference: lookup only, no
	// cascade to the user row.
	UID uint `gorm:"column:uid;not null;default:0;index" json:"uid"`
}

// ServerLogEntry is a LogEntry persisted in the server-side call table.
type ServerLogEntry struct {
	LogEntry
}

// TableName sets the table name for server-side log rows.
func (ServerLogEntry) TableName() string {
	return "api_calls_logs_server"
}

// ClientLogEntry is a LogEntry persisted in the client-side call table.
type ClientLogEntry struct {
	LogEntry
}

// TableName sets the table name for client-side log rows.
func (ClientLogEntry) TableName() string {
	return "api_calls_logs_client"
}
