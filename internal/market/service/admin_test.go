package service

import (
	"context"
	"testing"

	"github.com/songzhibin97/qwork/internal/market/auth"
	"github.com/songzhibin97/qwork/pkg/market"
)

func TestAdminService_EnsureAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin, created, err := env.admins.EnsureAdmin(ctx, "Root@Example.com", "s3cret", "Root")
	if err != nil {
		t.Fatalf("EnsureAdmin() returned error: %v", err)
	}
	if !created || admin.Email != "root@example.com" || !admin.IsActive {
		t.Errorf("EnsureAdmin() = %+v, created %v, want a new active admin", admin, created)
	}

	again, created, err := env.admins.EnsureAdmin(ctx, "root@example.com", "other", "Root")
	if err != nil {
		t.Fatalf("EnsureAdmin() returned error: %v", err)
	}
	if created || again.ID != admin.ID {
		t.Errorf("second EnsureAdmin() should return the existing admin")
	}

	_, _, err = env.admins.EnsureAdmin(ctx, "", "pw", "")
	assertCode(t, err, "CREDENTIALS_REQUIRED")
}

func TestAdminService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin, _, err := env.admins.EnsureAdmin(ctx, "root@example.com", "s3cret", "Root")
	if err != nil {
		t.Fatalf("EnsureAdmin() returned error: %v", err)
	}

	_, err = env.admins.Login(ctx, "root@example.com", "wrong")
	assertCode(t, err, "INVALID_CREDENTIALS")
	_, err = env.admins.Login(ctx, "nobody@example.com", "s3cret")
	assertCode(t, err, "INVALID_CREDENTIALS")

	pair, err := env.admins.Login(ctx, "root@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login() returned error: %v", err)
	}
	claims, err := env.tokens.Validate(pair.AccessToken, auth.TokenAccess)
	if err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if claims.AccountID != admin.ID || claims.Role != market.RoleAdmin {
		t.Errorf("claims = %+v, want admin %d with admin role", claims, admin.ID)
	}

	// user accounts cannot sign in as admins
	env.activeAccount(t, "user@example.com")
	_, err = env.admins.Login(ctx, "user@example.com", "password")
	assertCode(t, err, "INVALID_CREDENTIALS")
}

func TestAdminService_ForgotPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.admins.EnsureAdmin(ctx, "root@example.com", "s3cret", "Root"); err != nil {
		t.Fatalf("EnsureAdmin() returned error: %v", err)
	}

	if err := env.admins.ForgotPassword(ctx, "nobody@example.com"); !market.IsNotFoundError(err) {
		t.Errorf("expected not found error, got %v", err)
	}

	if err := env.admins.ForgotPassword(ctx, "root@example.com"); err != nil {
		t.Fatalf("ForgotPassword() returned error: %v", err)
	}
	temporary := env.mail.last(t, "admin_password")
	if len(temporary) != 8 {
		t.Errorf("temporary password length = %d, want 8", len(temporary))
	}

	if _, err := env.admins.Login(ctx, "root@example.com", "s3cret"); err == nil {
		t.Error("old password should no longer work")
	}
	if _, err := env.admins.Login(ctx, "root@example.com", temporary); err != nil {
		t.Errorf("Login() with temporary password returned error: %v", err)
	}
}

func TestAdminService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin, _, err := env.admins.EnsureAdmin(ctx, "root@example.com", "s3cret", "Root")
	if err != nil {
		t.Fatalf("EnsureAdmin() returned error: %v", err)
	}

	tests := []struct {
		name string
		in   *ChangePasswordInput
		code string
	}{
		{"missing fields", &ChangePasswordInput{CurrentPassword: "s3cret"}, "PASSWORDS_REQUIRED"},
		{"mismatch", &ChangePasswordInput{CurrentPassword: "s3cret", NewPassword: "a", ConfirmPassword: "b"}, "PASSWORD_MISMATCH"},
		{"wrong current", &ChangePasswordInput{CurrentPassword: "nope", NewPassword: "a", ConfirmPassword: "a"}, "INVALID_CREDENTIALS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCode(t, env.admins.ChangePassword(ctx, admin.ID, tt.in), tt.code)
		})
	}

	err = env.admins.ChangePassword(ctx, admin.ID, &ChangePasswordInput{
		CurrentPassword: "s3cret",
		NewPassword:     "fresh",
		ConfirmPassword: "fresh",
	})
	if err != nil {
		t.Fatalf("ChangePassword() returned error: %v", err)
	}
	if _, err := env.admins.Login(ctx, "root@example.com", "fresh"); err != nil {
		t.Errorf("Login() with new password returned error: %v", err)
	}
}
