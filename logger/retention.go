package logger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oscarbot/gateway-service/models"
)

// RetentionPolicy bounds the size of the log tables. A zero value disables
// the corresponding limit.
type RetentionPolicy struct {
	// MaxAge removes rows whose timestamp is older than now-MaxAge.
	MaxAge time.Duration

	// MaxRows trims the oldest rows once a table exceeds this count.
	MaxRows int64
}

// Enabled reports whether the policy has any active limit.
func (p RetentionPolicy) Enabled() bool {
	return p.MaxAge > 0 || p.MaxRows > 0
}

// SweepResult reports how many rows one sweep removed per table.
type SweepResult struct {
	ServerDeleted int64 `json:"server_deleted"`
	ClientDeleted int64 `json:"client_deleted"`
}

// Sweep applies the retention policy to both log tables: age-based deletion
// first, then a row-count trim of the oldest entries. Sweeps run concurrently
// with live inserts; the result is eventually consistent, not an exact
// snapshot.
func (s *Store) Sweep(ctx context.Context, policy RetentionPolicy) (*SweepResult, error) {
	result := &SweepResult{}

	serverDeleted, err := s.sweepTable(ctx, &models.ServerLogEntry{}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep server log table: %w", err)
	}
	result.ServerDeleted = serverDeleted

	clientDeleted, err := s.sweepTable(ctx, &models.ClientLogEntry{}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep client log table: %w", err)
	}
	result.ClientDeleted = clientDeleted

	return result, nil
}

func (s *Store) sweepTable(ctx context.Context, model any, policy RetentionPolicy) (int64, error) {
	var deleted int64

	if policy.MaxAge > 0 {
		cutoff := time.Now().Add(-policy.MaxAge).Unix()
		aged := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(model)
		if aged.Error != nil {
			return deleted, aged.Error
		}
		deleted += aged.RowsAffected
	}

	if policy.MaxRows > 0 {
		var total int64
		if err := s.db.WithContext(ctx).Model(model).Count(&total).Error; err != nil {
			return deleted, err
		}
		excess := total - policy.MaxRows
		if excess > 0 {
			var ids []uint
			if err := s.db.WithContext(ctx).Model(model).
				Order("id ASC").
				Limit(int(excess)).
				Pluck("id", &ids).Error; err != nil {
				return deleted, err
			}
			if len(ids) > 0 {
				trimmed := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(model)
				if trimmed.Error != nil {
					return deleted, trimmed.Error
				}
				deleted += trimmed.RowsAffected
			}
		}
	}

	return deleted, nil
}

// RunSweeper applies the retention policy on a fixed interval until the
// context is cancelled. Intended to run in its own goroutine from main.
func RunSweeper(ctx context.Context, store *Store, policy RetentionPolicy, interval time.Duration) {
	if !policy.Enabled() {
		slog.Info("Log retention sweeper disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Log retention sweeper started",
		"maxAge", policy.MaxAge,
		"maxRows", policy.MaxRows,
		"interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Log retention sweeper stopped")
			return
		case <-ticker.C:
			result, err := store.Sweep(ctx, policy)
			if err != nil {
				slog.Error("Log retention sweep failed", "error", err)
				continue
			}
			if result.ServerDeleted > 0 || result.ClientDeleted > 0 {
				slog.Info("Log retention sweep completed",
					"serverDeleted", result.ServerDeleted,
					"clientDeleted", result.ClientDeleted)
			}
		}
	}
}
