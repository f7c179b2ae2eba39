package memory

import (
	"context"
	"sort"
	"time"

	"github.com/songzhibin97/qwork/pkg/market"
)

// FileOpRepository implements market.FileOpRepository for in-memory storage
type FileOpRepository struct {
	repo *Repository
	tx   *Transaction
}

// Record journals a file operation
func (fr *FileOpRepository) Record(ctx context.Context, op *market.FileOp) error {
	if op == nil || op.Path == "" {
		return market.NewValidationError("INVALID_FILE_OP", "file operation path cannot be empty")
	}

	return fr.repo.update(fr.tx, "FileOps.Record", func(s *state) error {
		op.ID = s.next("file_ops")
		if op.CreatedAt.IsZero() {
			op.CreatedAt = time.Now()
		}
		cp := *op
		s.fileOps[op.ID] = &cp
		return nil
	})
}

// Clear removes journaled operations by ID. Unknown IDs are ignored.
func (fr *FileOpRepository) Clear(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return fr.repo.update(fr.tx, "FileOps.Clear", func(s *state) error {
		for _, id := range ids {
			delete(s.fileOps, id)
		}
		return nil
	})
}

// ListStale lists operations created before the cutoff, oldest first
func (fr *FileOpRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*market.FileOp, error) {
	out := []*market.FileOp{}
	err := fr.repo.view(fr.tx, "FileOps.ListStale", func(s *state) error {
		for _, op := range s.fileOps {
			if op.CreatedAt.Before(before) {
				cp := *op
				out = append(out, &cp)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
