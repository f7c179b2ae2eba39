package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/songzhibin97/qwork/pkg/market"
)

// AccountRepository implements market.AccountRepository using PostgreSQL
type AccountRepository struct {
	q querier
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(repo *Repository) *AccountRepository {
	return &AccountRepository{q: repo}
}

const accountColumns = `id, email, password_hash, activation_token, reset_token, reset_token_expiry,
		is_active, is_premium, role, created_at, updated_at`

// Create inserts a new account
func (ar *AccountRepository) Create(ctx context.Context, account *market.Account) error {
	if account == nil || account.Email == "" {
		return market.NewValidationError("INVALID_ACCOUNT", "account email cannot be empty")
	}
	if account.Role == "" {
		account.Role = market.RoleUser
	}

	query := `
		INSERT INTO users (email, password_hash, activation_token, reset_token, reset_token_expiry,
			is_active, is_premium, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	row := ar.q.execQueryRow(ctx, query, account.Email, account.PasswordHash, account.ActivationToken,
		account.ResetToken, account.ResetTokenExpiry, account.IsActive, account.IsPremium, account.Role)
	if err := row.Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if isUniqueViolation(err) && constraintOf(err) == "users_email_key" {
			return market.NewConflictError("EMAIL_EXISTS", "account with this email already exists")
		}
		return market.NewStorageError("INSERT_FAILED", "failed to insert account", err)
	}
	return nil
}

// Get retrieves an account by ID
func (ar *AccountRepository) Get(ctx context.Context, id int64) (*market.Account, error) {
	return ar.getOne(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves an account by email address
func (ar *AccountRepository) GetByEmail(ctx context.Context, email string) (*market.Account, error) {
	if email == "" {
		return nil, market.NewValidationError("INVALID_EMAIL", "email cannot be empty")
	}
	return ar.getOne(ctx, `SELECT `+accountColumns+` FROM users WHERE email = $1`, email)
}

// GetByActivationToken retrieves an account by its pending activation token
func (ar *AccountRepository) GetByActivationToken(ctx context.Context, token string) (*market.Account, error) {
	if token == "" {
		return nil, market.NewValidationError("INVALID_TOKEN", "token cannot be empty")
	}
	return ar.getOne(ctx, `SELECT `+accountColumns+` FROM users WHERE activation_token = $1`, token)
}

// GetByResetToken retrieves an account by an unexpired password reset token
func (ar *AccountRepository) GetByResetToken(ctx context.Context, token string, now time.Time) (*market.Account, error) {
	if token == "" {
		return nil, market.NewValidationError("INVALID_TOKEN", "token cannot be empty")
	}
	return ar.getOne(ctx, `SELECT `+accountColumns+` FROM users WHERE reset_token = $1 AND reset_token_expiry > $2`, token, now)
}

// Update writes every mutable column of an existing account
func (ar *AccountRepository) Update(ctx context.Context, account *market.Account) error {
	if account == nil {
		return market.NewValidationError("INVALID_ACCOUNT", "account cannot be nil")
	}

	query := `
		UPDATE users
		SET email = $2, password_hash = $3, activation_token = $4, reset_token = $5,
			reset_token_expiry = $6, is_active = $7, is_premium = $8, role = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	row := ar.q.execQueryRow(ctx, query, account.ID, account.Email, account.PasswordHash, account.ActivationToken,
		account.ResetToken, account.ResetTokenExpiry, account.IsActive, account.IsPremium, account.Role)
	if err := row.Scan(&account.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return market.NewConflictError("EMAIL_EXISTS", "account with this email already exists")
		}
		return scanError(err, "ACCOUNT_NOT_FOUND", "account not found")
	}
	return nil
}

// Delete removes an account; dependent rows cascade
func (ar *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := ar.q.execCommand(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(result, "ACCOUNT_NOT_FOUND", "account not found")
}

// List retrieves accounts matching the filter, newest first
func (ar *AccountRepository) List(ctx context.Context, filter *market.AccountFilter) (*market.PaginatedAccounts, error) {
	if filter == nil {
		filter = &market.AccountFilter{}
	}
	offset, limit := market.NormalizePage(filter.Offset, filter.Limit)

	var conditions []string
	var args []interface{}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.IsPremium != nil {
		args = append(args, *filter.IsPremium)
		conditions = append(conditions, fmt.Sprintf("is_premium = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := ar.q.execQueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, market.NewStorageError("COUNT_FAILED", "failed to count accounts", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		accountColumns, where, len(args)-1, len(args))
	rows, err := ar.q.execQuery(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*market.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, market.NewStorageError("SCAN_FAILED", "failed to scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, market.NewStorageError("ROWS_FAILED", "failed to iterate accounts", err)
	}

	return &market.PaginatedAccounts{
		Accounts: accounts,
		Total:    total,
		Offset:   offset,
		Limit:    limit,
		HasMore:  int64(offset+len(accounts)) < total,
	}, nil
}

func (ar *AccountRepository) getOne(ctx context.Context, query string, args ...interface{}) (*market.Account, error) {
	a, err := scanAccount(ar.q.execQueryRow(ctx, query, args...))
	if err != nil {
		return nil, scanError(err, "ACCOUNT_NOT_FOUND", "account not found")
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(s scanner) (*market.Account, error) {
	a := &market.Account{}
	var activation, reset sql.NullString
	var expiry sql.NullTime
	err := s.Scan(&a.ID, &a.Email, &a.PasswordHash, &activation, &reset, &expiry,
		&a.IsActive, &a.IsPremium, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ActivationToken = nullString(activation)
	a.ResetToken = nullString(reset)
	if expiry.Valid {
		t := expiry.Time
		a.ResetTokenExpiry = &t
	}
	return a, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
