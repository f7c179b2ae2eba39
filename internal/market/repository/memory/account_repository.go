package memory

import (
	"context"
	"sort"
	"time"

	"github.com/songzhibin97/qwork/pkg/market"
)

// AccountRepository implements market.AccountRepository for in-memory storage
type AccountRepository struct {
	repo *Repository
	tx   *Transaction
}

// NewAccountRepository creates a new in-memory account repository
func NewAccountRepository(repo *Repository) *AccountRepository {
	return &AccountRepository{repo: repo}
}

// Create inserts a new account
func (ar *AccountRepository) Create(ctx context.Context, account *market.Account) error {
	if account == nil || account.Email == "" {
		return market.NewValidationError("INVALID_ACCOUNT", "account email cannot be empty")
	}

	return ar.repo.update(ar.tx, "Accounts.Create", func(s *state) error {
		for _, existing := range s.accounts {
			if existing.Email == account.Email {
				return market.NewConflictError("EMAIL_EXISTS", "account with this email already exists")
			}
		}

		now := time.Now()
		account.ID = s.next("users")
		if account.Role == "" {
			account.Role = market.RoleUser
		}
		account.CreatedAt = now
		account.UpdatedAt = now
		s.accounts[account.ID] = copyAccount(account)
		return nil
	})
}

// Get retrieves an account by ID
func (ar *AccountRepository) Get(ctx context.Context, id int64) (*market.Account, error) {
	return ar.find("Accounts.Get", func(a *market.Account) bool { return a.ID == id })
}

// GetByEmail retrieves an account by email address
func (ar *AccountRepository) GetByEmail(ctx context.Context, email string) (*market.Account, error) {
	if email == "" {
		return nil, market.NewValidationError("INVALID_EMAIL", "email cannot be empty")
	}
	return ar.find("Accounts.GetByEmail", func(a *market.Account) bool { return a.Email == email })
}

// GetByActivationToken retrieves an account by its pending activation token
func (ar *AccountRepository) GetByActivationToken(ctx context.Context, token string) (*market.Account, error) {
	if token == "" {
		return nil, market.NewValidationError("INVALID_TOKEN", "token cannot be empty")
	}
	return ar.find("Accounts.GetByActivationToken", func(a *market.Account) bool {
		return a.ActivationToken != nil && *a.ActivationToken == token
	})
}

// GetByResetToken retrieves an account by an unexpired password reset token
func (ar *AccountRepository) GetByResetToken(ctx context.Context, token string, now time.Time) (*market.Account, error) {
	if token == "" {
		return nil, market.NewValidationError("INVALID_TOKEN", "token cannot be empty")
	}
	return ar.find("Accounts.GetByResetToken", func(a *market.Account) bool {
		return a.ResetToken != nil && *a.ResetToken == token &&
			a.ResetTokenExpiry != nil && a.ResetTokenExpiry.After(now)
	})
}

// Update writes every mutable column of an existing account
func (ar *AccountRepository) Update(ctx context.Context, account *market.Account) error {
	if account == nil {
		return market.NewValidationError("INVALID_ACCOUNT", "account cannot be nil")
	}

	return ar.repo.update(ar.tx, "Accounts.Update", func(s *state) error {
		existing, ok := s.accounts[account.ID]
		if !ok {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		for _, other := range s.accounts {
			if other.ID != account.ID && other.Email == account.Email {
				return market.NewConflictError("EMAIL_EXISTS", "account with this email already exists")
			}
		}

		updated := copyAccount(account)
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = time.Now()
		account.UpdatedAt = updated.UpdatedAt
		s.accounts[account.ID] = updated
		return nil
	})
}

// Delete removes an account and everything that depends on it
func (ar *AccountRepository) Delete(ctx context.Context, id int64) error {
	return ar.repo.update(ar.tx, "Accounts.Delete", func(s *state) error {
		if _, ok := s.accounts[id]; !ok {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		s.deleteAccount(id)
		return nil
	})
}

// List retrieves accounts matching the filter, newest first
func (ar *AccountRepository) List(ctx context.Context, filter *market.AccountFilter) (*market.PaginatedAccounts, error) {
	if filter == nil {
		filter = &market.AccountFilter{}
	}
	offset, limit := market.NormalizePage(filter.Offset, filter.Limit)

	var matched []*market.Account
	err := ar.repo.view(ar.tx, "Accounts.List", func(s *state) error {
		for _, a := range s.accounts {
			if filter.IsActive != nil && a.IsActive != *filter.IsActive {
				continue
			}
			if filter.IsPremium != nil && a.IsPremium != *filter.IsPremium {
				continue
			}
			matched = append(matched, copyAccount(a))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	page := []*market.Account{}
	if offset < len(matched) {
		end := offset + limit
		if end > len(matched) {
			end = len(matched)
		}
		page = matched[offset:end]
	}

	return &market.PaginatedAccounts{
		Accounts: page,
		Total:    total,
		Offset:   offset,
		Limit:    limit,
		HasMore:  int64(offset+len(page)) < total,
	}, nil
}

func (ar *AccountRepository) find(op string, match func(a *market.Account) bool) (*market.Account, error) {
	var found *market.Account
	err := ar.repo.view(ar.tx, op, func(s *state) error {
		for _, a := range s.accounts {
			if match(a) {
				found = copyAccount(a)
				return nil
			}
		}
		return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
