package postgres

import (
	"context"

	"github.com/songzhibin97/qwork/pkg/market"
)

// AdminRepository implements market.AdminRepository using PostgreSQL
type AdminRepository struct {
	q querier
}

// NewAdminRepository creates a new PostgreSQL admin repository
func NewAdminRepository(repo *Repository) *AdminRepository {
	return &AdminRepository{q: repo}
}

const adminColumns = `id, email, name, password_hash, is_active, role, created_at, updated_at`

// Create inserts a new admin
func (ar *AdminRepository) Create(ctx context.Context, admin *market.Admin) error {
	if admin == nil || admin.Email == "" {
		return market.NewValidationError("INVALID_ADMIN", "admin email cannot be empty")
	}
	if admin.Role == "" {
		admin.Role = market.RoleAdmin
	}

	query := `
		INSERT INTO admins (email, name, password_hash, is_active, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := ar.q.execQueryRow(ctx, query, admin.Email, admin.Name, admin.PasswordHash, admin.IsActive, admin.Role).
		Scan(&admin.ID, &admin.CreatedAt, &admin.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return market.NewConflictError("ADMIN_EXISTS", "admin with this email already exists")
		}
		return market.NewStorageError("INSERT_FAILED", "failed to insert admin", err)
	}
	return nil
}

// Get retrieves an admin by ID
func (ar *AdminRepository) Get(ctx context.Context, id int64) (*market.Admin, error) {
	return ar.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id)
}

// GetByEmail retrieves an admin by email
func (ar *AdminRepository) GetByEmail(ctx context.Context, email string) (*market.Admin, error) {
	return ar.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = $1`, email)
}

// UpdatePassword replaces the password hash of an admin
func (ar *AdminRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := ar.q.execCommand(ctx,
		`UPDATE admins SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	return affected(result, "ADMIN_NOT_FOUND", "admin not found")
}

func (ar *AdminRepository) getOne(ctx context.Context, query string, args ...interface{}) (*market.Admin, error) {
	a := &market.Admin{}
	err := ar.q.execQueryRow(ctx, query, args...).Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.IsActive, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, scanError(err, "ADMIN_NOT_FOUND", "admin not found")
	}
	return a, nil
}
