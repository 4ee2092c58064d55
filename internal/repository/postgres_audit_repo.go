package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/outpost-labs/warden/internal/domain"
)

// PostgresAuditRepo implements domain.AuditLog. Entries are write-once; the
// only delete path is the retention purge.
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo creates a new repository instance.
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Record inserts an immutable audit entry.
func (r *PostgresAuditRepo) Record(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, user_id, action, success, error_message,
			ip_address, user_agent, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	// user_id is nullable: failed logins may have no known actor.
	var uid sql.NullString
	if entry.UserID != "" {
		uid = sql.NullString{String: entry.UserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, uid, entry.Action, entry.Success, entry.ErrorMessage,
		entry.IPAddress, entry.UserAgent, entry.CorrelationID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Purge deletes entries older than the retention horizon.
func (r *PostgresAuditRepo) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit log: %w", err)
	}
	return result.RowsAffected()
}
