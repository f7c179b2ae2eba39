package postgres

import (
	"context"
	"database/sql"
	"sync"

	"github.com/songzhibin97/qwork/pkg/market"
)

// Transaction implements the market.Transaction interface for PostgreSQL
type Transaction struct {
	repo       *Repository
	tx         *sql.Tx
	committed  bool
	rolledBack bool
	mu         sync.Mutex
}

// NewTransaction creates a new PostgreSQL transaction
func NewTransaction(repo *Repository, tx *sql.Tx) *Transaction {
	return &Transaction{
		repo: repo,
		tx:   tx,
	}
}

// Commit commits the transaction
func (t *Transaction) Commit(ctx context.Context) error {
	return t.finish(func() error {
		if err := t.tx.Commit(); err != nil {
			t.rolledBack = true
			return market.NewStorageError("TX_COMMIT_FAILED", "failed to commit transaction", err)
		}
		t.committed = true
		return nil
	})
}

// Rollback rolls back the transaction
func (t *Transaction) Rollback(ctx context.Context) error {
	return t.finish(func() error {
		if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
			return market.NewStorageError("TX_ROLLBACK_FAILED", "failed to rollback transaction", err)
		}
		t.rolledBack = true
		return nil
	})
}

// finish runs end once, while the transaction is still open
func (t *Transaction) finish(end func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.doneError(); err != nil {
		return err
	}
	return end()
}

// doneError reports a finished transaction. Callers hold t.mu.
func (t *Transaction) doneError() error {
	switch {
	case t.committed:
		return market.NewStorageError("TX_COMMITTED", "transaction already committed", nil)
	case t.rolledBack:
		return market.NewStorageError("TX_ROLLED_BACK", "transaction already rolled back", nil)
	}
	return nil
}

// Accounts returns an account repository within this transaction
func (t *Transaction) Accounts() market.AccountRepository {
	return &AccountRepository{q: t}
}

// Profiles returns a profile repository within this transaction
func (t *Transaction) Profiles() market.ProfileRepository {
	return &ProfileRepository{q: t}
}

// Interests returns the tag repository for kind within this transaction
func (t *Transaction) Interests(kind market.InterestKind) market.TagRepository {
	return newTagRepository(t, kind)
}

// Portfolios returns a portfolio repository within this transaction
func (t *Transaction) Portfolios() market.PortfolioRepository {
	return &PortfolioRepository{q: t}
}

// Admins returns an admin repository within this transaction
func (t *Transaction) Admins() market.AdminRepository {
	return &AdminRepository{q: t}
}

// FileOps returns the file operation journal within this transaction
func (t *Transaction) FileOps() market.FileOpRepository {
	return &FileOpRepository{q: t}
}

func (t *Transaction) isActive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneError()
}

func (t *Transaction) execQuery(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := t.isActive(); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, market.NewStorageError("QUERY_FAILED", "database query failed", err)
	}
	return rows, nil
}

func (t *Transaction) execQueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *Transaction) execCommand(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := t.isActive(); err != nil {
		return nil, err
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, market.NewStorageError("COMMAND_FAILED", "database command failed", err)
	}
	return result, nil
}
