package helpdesk

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"receipthub/internal/model"
)

// AuditRepository keeps a durable trail of recovery sweeps so helpdesk
// operators can see what ran, when, and what it touched.
type AuditRepository interface {
	RecordSweep(ctx context.Context, operation string, result *model.MassiveRecoverResult) error
	ListSweeps(ctx context.Context, limit int) ([]SweepRecord, error)
}

type SweepRecord struct {
	ID            string    `json:"id"`
	Operation     string    `json:"operation"`
	Status        string    `json:"status"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	FailedIDs     []string  `json:"failedIds,omitempty"`
	PagesScanned  int       `json:"pagesScanned"`
	ItemsScanned  int       `json:"itemsScanned"`
	ElapsedMillis int64     `json:"elapsedMillis"`
	ExecutedAt    time.Time `json:"executedAt"`
}

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) RecordSweep(ctx context.Context, operation string, result *model.MassiveRecoverResult) error {
	query := `
		INSERT INTO recovery_sweeps (id, operation, status, succeeded, failed, failed_ids, pages_scanned, items_scanned, elapsed_millis, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		uuid.New().String(), operation, result.Status,
		result.Succeeded, result.Failed, pq.Array(result.FailedIDs),
		result.PagesScanned, result.ItemsScanned, result.ElapsedMillis,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record recovery sweep: %w", err)
	}

	return nil
}

func (r *PostgresAuditRepository) ListSweeps(ctx context.Context, limit int) ([]SweepRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, operation, status, succeeded, failed, failed_ids, pages_scanned, items_scanned, elapsed_millis, executed_at
		FROM recovery_sweeps
		ORDER BY executed_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recovery sweeps: %w", err)
	}
	defer rows.Close()

	var records []SweepRecord
	for rows.Next() {
		var rec SweepRecord
		if err := rows.Scan(
			&rec.ID, &rec.Operation, &rec.Status,
			&rec.Succeeded, &rec.Failed, pq.Array(&rec.FailedIDs),
			&rec.PagesScanned, &rec.ItemsScanned, &rec.ElapsedMillis,
			&rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recovery sweep: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recovery sweeps: %w", err)
	}

	return records, nil
}
