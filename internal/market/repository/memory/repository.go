package memory

import (
	"context"
	"sync"
	"time"

	"github.com/songzhibin97/qwork/pkg/market"
)

// FaultHook is consulted before every repository operation. Returning an
// error makes the operation fail with that error. Operation names have the
// form "<Repository>.<Method>", plus "Commit" for transaction commits.
type FaultHook func(op string) error

// Repository implements the market.Repository interface using in-memory storage.
// Transactions see a private snapshot and are serialized with every other write.
type Repository struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	data    *state
	closed  bool
	hook    FaultHook
}

// NewRepository creates a new in-memory repository
func NewRepository() *Repository {
	return &Repository{
		data: newState(),
	}
}

// SetFaultHook installs a hook used to inject failures in tests
func (r *Repository) SetFaultHook(hook FaultHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

// Health returns the health status of the repository
func (r *Repository) Health(ctx context.Context) market.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := "healthy"
	message := "In-memory repository is operational"
	details := map[string]interface{}{
		"closed": r.closed,
	}

	if r.closed {
		status = "unhealthy"
		message = "Repository is closed"
	} else {
		details["accounts_count"] = len(r.data.accounts)
		details["portfolios_count"] = len(r.data.portfolios)
		details["pending_file_ops"] = len(r.data.fileOps)
	}

	return market.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// Close closes the repository and releases resources
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.data = nil
	r.closed = true
	return nil
}

// BeginTx begins a transaction. It blocks until every other transaction
// has finished.
func (r *Repository) BeginTx(ctx context.Context) (market.Transaction, error) {
	if err := r.fault("BeginTx"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, market.NewStorageError("TX_BEGIN_FAILED", "failed to begin transaction", err)
	}

	r.writeMu.Lock()

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		r.writeMu.Unlock()
		return nil, closedError()
	}
	snapshot := r.data.clone()
	r.mu.RUnlock()

	return newTransaction(r, snapshot), nil
}

// Accounts returns an account repository reading committed state
func (r *Repository) Accounts() market.AccountRepository {
	return &AccountRepository{repo: r}
}

// Profiles returns a profile repository reading committed state
func (r *Repository) Profiles() market.ProfileRepository {
	return &ProfileRepository{repo: r}
}

// Interests returns the tag repository for kind
func (r *Repository) Interests(kind market.InterestKind) market.TagRepository {
	return &TagRepository{repo: r, kind: kind}
}

// Portfolios returns a portfolio repository reading committed state
func (r *Repository) Portfolios() market.PortfolioRepository {
	return &PortfolioRepository{repo: r}
}

// Admins returns an admin repository reading committed state
func (r *Repository) Admins() market.AdminRepository {
	return &AdminRepository{repo: r}
}

// FileOps returns the file operation journal
func (r *Repository) FileOps() market.FileOpRepository {
	return &FileOpRepository{repo: r}
}

func (r *Repository) fault(op string) error {
	r.mu.RLock()
	hook := r.hook
	r.mu.RUnlock()
	if hook == nil {
		return nil
	}
	if err := hook(op); err != nil {
		return market.NewStorageError("INJECTED_FAULT", "operation "+op+" failed", err)
	}
	return nil
}

// view runs fn against the transaction snapshot, or the committed state
func (r *Repository) view(tx *Transaction, op string, fn func(s *state) error) error {
	if err := r.fault(op); err != nil {
		return err
	}
	if tx != nil {
		return tx.apply(fn)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return closedError()
	}
	return fn(r.data)
}

// update runs fn against the transaction snapshot. Outside a transaction
// fn runs against a clone that replaces the committed state only if fn
// succeeds.
func (r *Repository) update(tx *Transaction, op string, fn func(s *state) error) error {
	if err := r.fault(op); err != nil {
		return err
	}
	if tx != nil {
		return tx.apply(fn)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return closedError()
	}

	next := r.data.clone()
	if err := fn(next); err != nil {
		return err
	}
	r.data = next
	return nil
}

func closedError() error {
	return market.NewStorageError("REPO_CLOSED", "repository is closed", nil)
}
