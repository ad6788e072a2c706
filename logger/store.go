package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oscarbot/gateway-service/models"
	"gorm.io/gorm"
)

// Store is the durable, append-mostly storage for audit-log rows. It manages
// the two tables sharing the LogEntry schema: the server-side call table and
// the client-side call table.
type Store struct {
	db *gorm.DB
}

// NewStore creates the store and migrates both log tables (works with SQLite
// or PostgreSQL).
func NewStore(db *gorm.DB) *Store {
	if err := db.AutoMigrate(&models.ServerLogEntry{}, &models.ClientLogEntry{}); err != nil {
		// Log migration error but don't fail store creation; the actual
		// database operation will fail later if the schema is wrong.
		slog.Warn("Failed to auto-migrate log tables", "error", err)
	}
	return &Store{db: db}
}

// emptyVariables satisfies the NOT NULL constraint on the variables column
// for entries logged without placeholders.
var emptyVariables = []byte("{}")

// CreateServerEntry appends a row to the server-side call table.
func (s *Store) CreateServerEntry(ctx context.Context, entry *models.LogEntry) error {
	if entry.Variables == nil {
		entry.Variables = emptyVariables
	}
	row := &models.ServerLogEntry{LogEntry: *entry}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create server log entry: %w", err)
	}
	entry.ID = row.ID
	return nil
}

// CreateClientEntry appends a row to the client-side call table.
func (s *Store) CreateClientEntry(ctx context.Context, entry *models.LogEntry) error {
	if entry.Variables == nil {
		entry.Variables = emptyVariables
	}
	row := &models.ClientLogEntry{LogEntry: *entry}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create client log entry: %w", err)
	}
	entry.ID = row.ID
	return nil
}

// LoadServerEntry retrieves one server-side row by id.
func (s *Store) LoadServerEntry(ctx context.Context, id uint) (*models.LogEntry, error) {
	var row models.ServerLogEntry
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load server log entry %d: %w", id, err)
	}
	return &row.LogEntry, nil
}

// LoadClientEntry retrieves one client-side row by id.
func (s *Store) LoadClientEntry(ctx context.Context, id uint) (*models.LogEntry, error) {
	var row models.ClientLogEntry
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load client log entry %d: %w", id, err)
	}
	return &row.LogEntry, nil
}

// CountServer returns the number of rows in the server-side call table.
func (s *Store) CountServer(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.ServerLogEntry{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count server log entries: %w", err)
	}
	return total, nil
}

// CountClient returns the number of rows in the client-side call table.
func (s *Store) CountClient(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.ClientLogEntry{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count client log entries: %w", err)
	}
	return total, nil
}

// CountServerBySeverity returns the number of server-side rows at the given
// severity.
func (s *Store) CountServerBySeverity(ctx context.Context, severity int) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.ServerLogEntry{}).
		Where("severity = ?", severity).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count server log entries by severity: %w", err)
	}
	return total, nil
}

// CountClientBySeverity returns the number of client-side rows at the given
// severity.
func (s *Store) CountClientBySeverity(ctx context.Context, severity int) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.ClientLogEntry{}).
		Where("severity = ?", severity).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count client log entries by severity: %w", err)
	}
	return total, nil
}

// PurgeResult reports how many rows each table held before a purge.
type PurgeResult struct {
	NumEventsServer int64 `json:"num_events_server"`
	NumEventsClient int64 `json:"num_events_client"`
}

// Purge irreversibly removes every row from both log tables and returns the
// per-table row counts removed. A purge racing with in-flight inserts may
// also remove entries inserted during the purge window; callers accept this.
func (s *Store) Purge(ctx context.Context) (*PurgeResult, error) {
	result := &PurgeResult{}

	serverDelete := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.ServerLogEntry{})
	if serverDelete.Error != nil {
		return nil, fmt.Errorf("failed to purge server log entries: %w", serverDelete.Error)
	}
	result.NumEventsServer = serverDelete.RowsAffected

	clientDelete := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.ClientLogEntry{})
	if clientDelete.Error != nil {
		return nil, fmt.Errorf("failed to purge client log entries: %w", clientDelete.Error)
	}
	result.NumEventsClient = clientDelete.RowsAffected

	// Second pass clears anything inserted between count and delete.
	if err := s.db.WithContext(ctx).Exec("DELETE FROM " + models.ServerLogEntry{}.TableName()).Error; err != nil {
		return nil, fmt.Errorf("failed to truncate server log table: %w", err)
	}
	if err := s.db.WithContext(ctx).Exec("DELETE FROM " + models.ClientLogEntry{}.TableName()).Error; err != nil {
		return nil, fmt.Errorf("failed to truncate client log table: %w", err)
	}

	return result, nil
}
