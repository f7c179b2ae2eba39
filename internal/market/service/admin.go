package service

import (
	"context"

	"github.com/songzhibin97/qwork/internal/market/auth"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// ChangePasswordInput is the payload of an admin password change
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// AdminService implements moderator authentication
type AdminService struct {
	repo   market.Repository
	hasher *auth.PasswordHasher
	tokens *auth.JWTManager
	mailer Mailer
	logger log.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(repo market.Repository, hasher *auth.PasswordHasher, tokens *auth.JWTManager, mailer Mailer, logger log.Logger) *AdminService {
	if logger == nil {
		logger = log.NewNop()
	}
	return &AdminService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		mailer: mailer,
		logger: logger.With(log.Component("admin_service")),
	}
}

// EnsureAdmin creates an active admin unless one with email exists
func (s *AdminService) EnsureAdmin(ctx context.Context, email, password, name string) (*market.Admin, bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, false, market.NewValidationError("CREDENTIALS_REQUIRED", "email and password are required")
	}

	existing, err := s.repo.Admins().GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !market.IsNotFoundError(err) {
		return nil, false, err
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, false, market.NewInternalError("HASH_FAILED", "failed to hash password", err)
	}
	admin := &market.Admin{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		Role:         market.RoleAdmin,
	}
	if err := s.repo.Admins().Create(ctx, admin); err != nil {
		return nil, false, err
	}
	s.logger.WithContext(ctx).Info("Admin created", log.String(log.FieldEmail, email))
	return admin, true, nil
}

// Login verifies admin credentials and issues tokens carrying the admin role
func (s *AdminService) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	if normalizeEmail(email) == "" || password == "" {
		return nil, market.NewValidationError("CREDENTIALS_REQUIRED", "email and password are required")
	}

	admin, err := s.repo.Admins().GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if market.IsNotFoundError(err) {
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !admin.IsActive {
		return nil, market.NewPermissionError("ADMIN_DEACTIVATED", "admin account is deactivated")
	}
	if err := s.hasher.VerifyPassword(password, admin.PasswordHash); err != nil {
		return nil, invalidCredentials()
	}

	pair, err := s.tokens.IssuePair(admin.ID, admin.Email, market.RoleAdmin)
	if err != nil {
		return nil, market.NewInternalError("TOKEN_FAILED", "failed to issue tokens", err)
	}
	return pair, nil
}

// ForgotPassword replaces the password of an admin with a temporary one
// and emails it
func (s *AdminService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return market.NewValidationError("EMAIL_REQUIRED", "email is required")
	}

	admin, err := s.repo.Admins().GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !admin.IsActive {
		return market.NewPermissionError("ADMIN_DEACTIVATED", "admin account is deactivated")
	}

	password, err := auth.TemporaryPassword()
	if err != nil {
		return market.NewInternalError("PASSWORD_FAILED", "failed to generate temporary password", err)
	}
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return market.NewInternalError("HASH_FAILED", "failed to hash password", err)
	}
	if err := s.repo.Admins().UpdatePassword(ctx, admin.ID, hash); err != nil {
		return err
	}

	if err := s.mailer.SendAdminTemporaryPassword(ctx, admin.Email, password); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to send temporary password",
			log.String(log.FieldEmail, admin.Email), log.Error(err))
	}
	return nil
}

// ChangePassword sets a new password after checking the current one
func (s *AdminService) ChangePassword(ctx context.Context, adminID int64, in *ChangePasswordInput) error {
	if in.CurrentPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return market.NewValidationError("PASSWORDS_REQUIRED", "current, new and confirm passwords are required")
	}
	if in.NewPassword != in.ConfirmPassword {
		return market.NewValidationError("PASSWORD_MISMATCH", "passwords do not match")
	}

	admin, err := s.repo.Admins().Get(ctx, adminID)
	if err != nil {
		return err
	}
	if err := s.hasher.VerifyPassword(in.CurrentPassword, admin.PasswordHash); err != nil {
		return market.NewPermissionError("INVALID_CREDENTIALS", "current password is incorrect")
	}

	hash, err := s.hasher.HashPassword(in.NewPassword)
	if err != nil {
		return market.NewInternalError("HASH_FAILED", "failed to hash password", err)
	}
	return s.repo.Admins().UpdatePassword(ctx, adminID, hash)
}

// Get returns an admin
func (s *AdminService) Get(ctx context.Context, id int64) (*market.Admin, error) {
	return s.repo.Admins().Get(ctx, id)
}
