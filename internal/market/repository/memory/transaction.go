package memory

import (
	"context"
	"sync"

	"github.com/songzhibin97/qwork/pkg/market"
)

// Transaction implements the market.Transaction interface for in-memory storage
type Transaction struct {
	repo       *Repository
	data       *state
	committed  bool
	rolledBack bool
	mu         sync.Mutex
}

func newTransaction(repo *Repository, snapshot *state) *Transaction {
	return &Transaction{
		repo: repo,
		data: snapshot,
	}
}

// Commit publishes the transaction snapshot
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed {
		return market.NewStorageError("TX_ALREADY_COMMITTED", "transaction already committed", nil)
	}
	if tx.rolledBack {
		return market.NewStorageError("TX_ALREADY_ROLLED_BACK", "transaction already rolled back", nil)
	}

	if err := tx.repo.fault("Commit"); err != nil {
		tx.finish(false)
		return market.NewStorageError("TX_COMMIT_FAILED", "failed to commit transaction", err)
	}

	tx.repo.mu.Lock()
	if tx.repo.closed {
		tx.repo.mu.Unlock()
		tx.finish(false)
		return closedError()
	}
	tx.repo.data = tx.data
	tx.repo.mu.Unlock()

	tx.finish(true)
	return nil
}

// Rollback discards the transaction snapshot
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed {
		return market.NewStorageError("TX_ALREADY_COMMITTED", "transaction already committed", nil)
	}
	if tx.rolledBack {
		return market.NewStorageError("TX_ALREADY_ROLLED_BACK", "transaction already rolled back", nil)
	}

	tx.finish(false)
	return nil
}

// finish marks the transaction done and releases the writer lock.
// Callers hold tx.mu.
func (tx *Transaction) finish(committed bool) {
	if committed {
		tx.committed = true
	} else {
		tx.rolledBack = true
	}
	tx.data = nil
	tx.repo.writeMu.Unlock()
}

func (tx *Transaction) apply(fn func(s *state) error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed {
		return market.NewStorageError("TX_COMMITTED", "transaction is committed", nil)
	}
	if tx.rolledBack {
		return market.NewStorageError("TX_ROLLED_BACK", "transaction is rolled back", nil)
	}
	return fn(tx.data)
}

// Accounts returns an account repository within this transaction
func (tx *Transaction) Accounts() market.AccountRepository {
	return &AccountRepository{repo: tx.repo, tx: tx}
}

// Profiles returns a profile repository within this transaction
func (tx *Transaction) Profiles() market.ProfileRepository {
	return &ProfileRepository{repo: tx.repo, tx: tx}
}

// Interests returns the tag repository for kind within this transaction
func (tx *Transaction) Interests(kind market.InterestKind) market.TagRepository {
	return &TagRepository{repo: tx.repo, tx: tx, kind: kind}
}

// Portfolios returns a portfolio repository within this transaction
func (tx *Transaction) Portfolios() market.PortfolioRepository {
	return &PortfolioRepository{repo: tx.repo, tx: tx}
}

// Admins returns an admin repository within this transaction
func (tx *Transaction) Admins() market.AdminRepository {
	return &AdminRepository{repo: tx.repo, tx: tx}
}

// FileOps returns the file operation journal within this transaction
func (tx *Transaction) FileOps() market.FileOpRepository {
	return &FileOpRepository{repo: tx.repo, tx: tx}
}
