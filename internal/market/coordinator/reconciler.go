package coordinator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// Reconciler results recorded in metrics
const (
	resultCleared  = "cleared"
	resultDeleted  = "deleted"
	resultDangling = "dangling"
	resultFailed   = "failed"
)

// DefaultSweepBatch bounds the journal rows handled by one sweep
const DefaultSweepBatch = 500

// SweepReport summarizes one reconciler sweep
type SweepReport struct {
	Scanned  int
	Cleared  int
	Deleted  int
	Dangling []string
	Failed   int
}

// Reconciler finishes file operations that a run left in the journal
type Reconciler struct {
	repo   market.Repository
	files  FileStore
	logger log.Logger
	grace  time.Duration
	batch  int
	options
}

// NewReconciler creates a reconciler that only looks at journal rows older
// than grace, so that in-flight runs are left alone.
func NewReconciler(repo market.Repository, files FileStore, logger log.Logger, grace time.Duration, opts ...Option) *Reconciler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Reconciler{
		repo:    repo,
		files:   files,
		logger:  logger.With(log.Component("reconciler")),
		grace:   grace,
		batch:   DefaultSweepBatch,
		options: buildOptions(opts),
	}
}

// Sweep handles every stale journal row once.
//
// A pending delete is retried; the row is cleared once the file is gone.
// A pending write whose file exists is cleared. A pending write whose file
// is missing is a dangling reference: it is reported and kept.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepReport, error) {
	ctx, span := r.tracer.Start(ctx, "reconciler.Sweep")
	defer span.End()

	ops, err := r.repo.FileOps().ListStale(ctx, r.now().Add(-r.grace), r.batch)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := &SweepReport{Scanned: len(ops), Dangling: []string{}}
	r.metrics.stale(len(ops))

	var cleared []int64
	for _, op := range ops {
		logger := r.logger.With(log.Int64(log.FieldFileOpID, op.ID), log.String(log.FieldFilePath, op.Path),
			log.String(log.FieldOperation, op.Operation))

		switch op.Kind {
		case market.FileOpDelete:
			if err := r.files.Remove(op.Path); err != nil {
				report.Failed++
				r.metrics.reconciled(resultFailed)
				logger.Warn("Retry of superseded file deletion failed", log.Error(err))
				continue
			}
			report.Deleted++
			r.metrics.reconciled(resultDeleted)
			cleared = append(cleared, op.ID)

		case market.FileOpWrite:
			exists, err := r.files.Exists(op.Path)
			if err != nil {
				report.Failed++
				r.metrics.reconciled(resultFailed)
				logger.Warn("Failed to check journaled file", log.Error(err))
				continue
			}
			if !exists {
				report.Dangling = append(report.Dangling, op.Path)
				r.metrics.reconciled(resultDangling)
				logger.Error("Dangling file reference: committed row points to a missing file")
				continue
			}
			report.Cleared++
			r.metrics.reconciled(resultCleared)
			cleared = append(cleared, op.ID)

		default:
			logger.Warn("Unknown journaled file operation", log.String("kind", string(op.Kind)))
		}
	}

	if len(cleared) > 0 {
		if err := clearFileOps(ctx, r.repo, cleared); err != nil {
			span.RecordError(err)
			return report, err
		}
	}

	span.SetAttributes(
		attribute.Int("scanned", report.Scanned),
		attribute.Int("dangling", len(report.Dangling)),
	)
	if report.Scanned > 0 {
		r.logger.Info("Reconciler sweep finished",
			log.Int("scanned", report.Scanned),
			log.Int("deleted", report.Deleted),
			log.Int("cleared", report.Cleared),
			log.Int("dangling", len(report.Dangling)),
			log.Int("failed", report.Failed))
	}
	return report, nil
}

// Start sweeps every interval until ctx is cancelled
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Reconciler started", log.Duration("interval", interval), log.Duration("grace", r.grace))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("Reconciler sweep failed", log.Error(err))
			}
		}
	}
}
