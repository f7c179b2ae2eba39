// Package coordinator runs multi-resource writes that touch both the
// relational store and the file store.
//
// A Run stages every new file in memory, writes rows inside one repository
// transaction together with a journal row per pending file operation, and
// only after the commit succeeds materializes staged files and deletes the
// files they supersede. A failed commit leaves the disk untouched. A failed
// file operation after commit is logged, surfaced in Result and left in the
// journal for the Reconciler.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// Outcomes recorded in metrics
const (
	outcomeCommitted  = "committed"
	outcomeRolledBack = "rolled_back"
)

// FileStore is the subset of the file store the coordinator needs
type FileStore interface {
	NewPath(category filestore.Category, ext string) (string, error)
	Write(path string, data []byte) error
	Remove(path string) error
	Exists(path string) (bool, error)
}

// Option configures a Coordinator or Reconciler
type Option func(*options)

type options struct {
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// WithMetrics records runs and file failures in m
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer overrides the global OpenTelemetry tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		tracer: otel.Tracer("github.com/songzhibin97/qwork/coordinator"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Coordinator runs stage-commit-flush writes
type Coordinator struct {
	repo   market.Repository
	files  FileStore
	logger log.Logger
	options
}

// New creates a coordinator over repo and files
func New(repo market.Repository, files FileStore, logger log.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Coordinator{
		repo:    repo,
		files:   files,
		logger:  logger.With(log.Component("coordinator")),
		options: buildOptions(opts),
	}
}

// Func writes rows through u.Tx() and stages files through u.Stage.
// Returning an error rolls the transaction back.
type Func func(ctx context.Context, u *Unit) error

// Inconsistency is a file operation that failed after the commit
type Inconsistency struct {
	Kind market.FileOpKind `json:"kind"`
	Path string            `json:"path"`
	Err  error             `json:"-"`
}

func (i Inconsistency) Error() string {
	return fmt.Sprintf("%s %s: %v", i.Kind, i.Path, i.Err)
}

// Result describes the file side of a committed run
type Result struct {
	Written         []string
	Deleted         []string
	Inconsistencies []Inconsistency
}

// Consistent reports whether every post-commit file operation succeeded
func (r *Result) Consistent() bool {
	return r != nil && len(r.Inconsistencies) == 0
}

type stagedWrite struct {
	path string
	data []byte
	opID int64
}

type supersededFile struct {
	path string
	opID int64
}

// Unit is the handle passed to a Func during a run
type Unit struct {
	coord      *Coordinator
	tx         market.Transaction
	writes     []*stagedWrite
	deletes    []*supersededFile
	hooks      []func(ctx context.Context)
	superseded map[string]bool
}

// Tx returns the transactional store
func (u *Unit) Tx() market.Store {
	return u.tx
}

// Stage assigns a path to file under category and buffers its bytes.
// Nothing touches the disk until the transaction has committed.
func (u *Unit) Stage(category filestore.Category, file *filestore.Prepared) (string, error) {
	if file == nil || len(file.Data) == 0 {
		return "", market.NewValidationError("EMPTY_UPLOAD", "cannot stage an empty file")
	}
	path, err := u.coord.files.NewPath(category, file.Ext)
	if err != nil {
		return "", market.NewInternalError("PATH_FAILED", "failed to allocate upload path", err)
	}
	u.writes = append(u.writes, &stagedWrite{path: path, data: file.Data})
	return path, nil
}

// Supersede schedules path for deletion once every staged write has been
// materialized. Empty and repeated paths are ignored.
func (u *Unit) Supersede(paths ...string) {
	for _, p := range paths {
		if p == "" || u.superseded[p] {
			continue
		}
		u.superseded[p] = true
		u.deletes = append(u.deletes, &supersededFile{path: p})
	}
}

// AfterCommit registers fn to run once the run has committed and flushed.
// Its outcome never affects the result of the run.
func (u *Unit) AfterCommit(fn func(ctx context.Context)) {
	if fn != nil {
		u.hooks = append(u.hooks, fn)
	}
}

// Run executes fn inside a transaction and flushes its file operations
func (c *Coordinator) Run(ctx context.Context, op string, fn Func) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Run", trace.WithAttributes(attribute.String("operation", op)))
	defer span.End()

	start := c.now()
	logger := c.logger.WithContext(ctx).With(log.String(log.FieldOperation, op))

	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.observeRun(op, outcomeRolledBack, c.now().Sub(start).Seconds())
		logger.Debug("Coordinated write rolled back", log.Error(err))
		return nil, err
	}

	tx, err := c.repo.BeginTx(ctx)
	if err != nil {
		return fail(err)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Warn("Rollback failed", log.Error(rbErr))
		}
	}()

	u := &Unit{coord: c, tx: tx, superseded: map[string]bool{}}
	if err := fn(ctx, u); err != nil {
		return fail(err)
	}

	if err := c.journal(ctx, tx, op, u); err != nil {
		return fail(err)
	}

	finished = true
	if err := tx.Commit(ctx); err != nil {
		return fail(err)
	}
	span.AddEvent("committed")

	result, cleared := c.flush(ctx, logger, op, u)
	c.clearJournal(ctx, logger, cleared)

	for _, hook := range u.hooks {
		hook(context.WithoutCancel(ctx))
	}

	if !result.Consistent() {
		span.SetAttributes(attribute.Int("inconsistencies", len(result.Inconsistencies)))
	}
	c.metrics.observeRun(op, outcomeCommitted, c.now().Sub(start).Seconds())
	return result, nil
}

// journal records one file_ops row per pending file operation inside tx
func (c *Coordinator) journal(ctx context.Context, tx market.Transaction, op string, u *Unit) error {
	now := c.now()
	for _, w := range u.writes {
		entry := &market.FileOp{Kind: market.FileOpWrite, Path: w.path, Operation: op, CreatedAt: now}
		if err := tx.FileOps().Record(ctx, entry); err != nil {
			return err
		}
		w.opID = entry.ID
	}
	for _, d := range u.deletes {
		entry := &market.FileOp{Kind: market.FileOpDelete, Path: d.path, Operation: op, CreatedAt: now}
		if err := tx.FileOps().Record(ctx, entry); err != nil {
			return err
		}
		d.opID = entry.ID
	}
	return nil
}

// flush materializes staged writes and, when all of them succeeded, removes
// superseded files. It returns the journal IDs that can be cleared.
func (c *Coordinator) flush(ctx context.Context, logger log.Logger, op string, u *Unit) (*Result, []int64) {
	result := &Result{Written: []string{}, Deleted: []string{}}
	var cleared []int64

	for _, w := range u.writes {
		if err := c.files.Write(w.path, w.data); err != nil {
			c.metrics.fileFailure(op, string(market.FileOpWrite))
			logger.Error("Committed row references a file that could not be written",
				append(log.FileFields(op, w.path), log.Error(err))...)
			result.Inconsistencies = append(result.Inconsistencies,
				Inconsistency{Kind: market.FileOpWrite, Path: w.path, Err: err})
			continue
		}
		result.Written = append(result.Written, w.path)
		cleared = append(cleared, w.opID)
	}

	if len(result.Inconsistencies) > 0 {
		if len(u.deletes) > 0 {
			logger.Warn("Skipping deletion of superseded files after write failure",
				log.Int("superseded", len(u.deletes)))
		}
		return result, cleared
	}

	for _, d := range u.deletes {
		if err := c.files.Remove(d.path); err != nil {
			c.metrics.fileFailure(op, string(market.FileOpDelete))
			logger.Warn("Failed to delete superseded file",
				append(log.FileFields(op, d.path), log.Error(err))...)
			result.Inconsistencies = append(result.Inconsistencies,
				Inconsistency{Kind: market.FileOpDelete, Path: d.path, Err: err})
			continue
		}
		result.Deleted = append(result.Deleted, d.path)
		cleared = append(cleared, d.opID)
	}
	return result, cleared
}

func (c *Coordinator) clearJournal(ctx context.Context, logger log.Logger, ids []int64) {
	if len(ids) == 0 {
		return
	}
	if err := clearFileOps(ctx, c.repo, ids); err != nil {
		logger.Warn("Failed to clear file journal, reconciler will retry", log.Error(err))
	}
}

func clearFileOps(ctx context.Context, repo market.Repository, ids []int64) error {
	tx, err := repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.FileOps().Clear(ctx, ids); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}
