package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/songzhibin97/qwork/pkg/market"
)

// FileOpRepository implements market.FileOpRepository using PostgreSQL
type FileOpRepository struct {
	q querier
}

// NewFileOpRepository creates a new PostgreSQL file operation journal
func NewFileOpRepository(repo *Repository) *FileOpRepository {
	return &FileOpRepository{q: repo}
}

// Record journals a file operation
func (fr *FileOpRepository) Record(ctx context.Context, op *market.FileOp) error {
	if op == nil || op.Path == "" {
		return market.NewValidationError("INVALID_FILE_OP", "file operation path cannot be empty")
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}

	err := fr.q.execQueryRow(ctx,
		`INSERT INTO file_ops (kind, path, operation, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		op.Kind, op.Path, op.Operation, op.CreatedAt).Scan(&op.ID)
	if err != nil {
		return market.NewStorageError("INSERT_FAILED", "failed to journal file operation", err)
	}
	return nil
}

// Clear removes journaled operations by ID. Unknown IDs are ignored.
func (fr *FileOpRepository) Clear(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := fr.q.execCommand(ctx, `DELETE FROM file_ops WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// ListStale lists operations created before the cutoff, oldest first
func (fr *FileOpRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*market.FileOp, error) {
	query := `SELECT id, kind, path, operation, created_at FROM file_ops
		WHERE created_at < $1 ORDER BY created_at, id`
	args := []interface{}{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := fr.q.execQuery(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := []*market.FileOp{}
	for rows.Next() {
		op := &market.FileOp{}
		if err := rows.Scan(&op.ID, &op.Kind, &op.Path, &op.Operation, &op.CreatedAt); err != nil {
			return nil, market.NewStorageError("SCAN_FAILED", "failed to scan file operation", err)
		}
		ops = append(ops, op)
	}
	return ops, rowsError(rows)
}
