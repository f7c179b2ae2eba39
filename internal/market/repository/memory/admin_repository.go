package memory

import (
	"context"
	"time"

	"github.com/songzhibin97/qwork/pkg/market"
)

// AdminRepository implements market.AdminRepository for in-memory storage
type AdminRepository struct {
	repo *Repository
	tx   *Transaction
}

// Create inserts a new admin
func (ar *AdminRepository) Create(ctx context.Context, admin *market.Admin) error {
	if admin == nil || admin.Email == "" {
		return market.NewValidationError("INVALID_ADMIN", "admin email cannot be empty")
	}

	return ar.repo.update(ar.tx, "Admins.Create", func(s *state) error {
		for _, existing := range s.admins {
			if existing.Email == admin.Email {
				return market.NewConflictError("ADMIN_EXISTS", "admin with this email already exists")
			}
		}
		now := time.Now()
		admin.ID = s.next("admins")
		if admin.Role == "" {
			admin.Role = market.RoleAdmin
		}
		admin.CreatedAt = now
		admin.UpdatedAt = now
		cp := *admin
		s.admins[admin.ID] = &cp
		return nil
	})
}

// Get retrieves an admin by ID
func (ar *AdminRepository) Get(ctx context.Context, id int64) (*market.Admin, error) {
	return ar.find("Admins.Get", func(a *market.Admin) bool { return a.ID == id })
}

// GetByEmail retrieves an admin by email
func (ar *AdminRepository) GetByEmail(ctx context.Context, email string) (*market.Admin, error) {
	return ar.find("Admins.GetByEmail", func(a *market.Admin) bool { return a.Email == email })
}

// UpdatePassword replaces the password hash of an admin
func (ar *AdminRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return ar.repo.update(ar.tx, "Admins.UpdatePassword", func(s *state) error {
		a, ok := s.admins[id]
		if !ok {
			return market.NewNotFoundError("ADMIN_NOT_FOUND", "admin not found")
		}
		a.PasswordHash = passwordHash
		a.UpdatedAt = time.Now()
		return nil
	})
}

func (ar *AdminRepository) find(op string, match func(a *market.Admin) bool) (*market.Admin, error) {
	var found *market.Admin
	err := ar.repo.view(ar.tx, op, func(s *state) error {
		for _, a := range s.admins {
			if match(a) {
				cp := *a
				found = &cp
				return nil
			}
		}
		return market.NewNotFoundError("ADMIN_NOT_FOUND", "admin not found")
	})
	return found, err
}
