package memory

import (
	"context"
	"testing"
	"time"

	"github.com/songzhibin97/qwork/pkg/market"
)

func TestAccountRepository_Create(t *testing.T) {
	repo := NewRepository()
	accounts := NewAccountRepository(repo)
	ctx := context.Background()

	account := &market.Account{Email: "a@x.com", PasswordHash: "hash"}
	if err := accounts.Create(ctx, account); err != nil {
		t.Fatalf("Create() returned error: %v", err)
	}
	if account.ID == 0 {
		t.Error("Expected ID to be assigned")
	}
	if account.Role != market.RoleUser {
		t.Errorf("Expected role %s, got %s", market.RoleUser, account.Role)
	}

	err := accounts.Create(ctx, &market.Account{Email: "a@x.com"})
	if !market.IsConflictError(err) {
		t.Errorf("Expected conflict error, got: %v", err)
	}

	if err := accounts.Create(ctx, &market.Account{}); !market.IsValidationError(err) {
		t.Errorf("Expected validation error, got: %v", err)
	}
}

func TestAccountRepository_Tokens(t *testing.T) {
	repo := NewRepository()
	accounts := NewAccountRepository(repo)
	ctx := context.Background()
	now := time.Now()

	activation := "act-token"
	reset := "reset-token"
	expiry := now.Add(time.Hour)
	account := &market.Account{
		Email:            "a@x.com",
		ActivationToken:  &activation,
		ResetToken:       &reset,
		ResetTokenExpiry: &expiry,
	}
	if err := accounts.Create(ctx, account); err != nil {
		t.Fatalf("Create() returned error: %v", err)
	}

	got, err := accounts.GetByActivationToken(ctx, "act-token")
	if err != nil {
		t.Fatalf("GetByActivationToken() returned error: %v", err)
	}
	if got.ID != account.ID {
		t.Errorf("Expected account %d, got %d", account.ID, got.ID)
	}

	if _, err := accounts.GetByResetToken(ctx, "reset-token", now); err != nil {
		t.Errorf("GetByResetToken() returned error: %v", err)
	}
	if _, err := accounts.GetByResetToken(ctx, "reset-token", now.Add(2*time.Hour)); !market.IsNotFoundError(err) {
		t.Errorf("Expected expired token to be not found, got: %v", err)
	}

	// Mutating the returned copy does not touch stored state
	got.IsActive = true
	stored, _ := accounts.Get(ctx, account.ID)
	if stored.IsActive {
		t.Error("Returned account aliases stored state")
	}

	got.ActivationToken = nil
	if err := accounts.Update(ctx, got); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	if _, err := accounts.GetByActivationToken(ctx, "act-token"); !market.IsNotFoundError(err) {
		t.Errorf("Expected cleared token to be not found, got: %v", err)
	}
}

func TestAccountRepository_List(t *testing.T) {
	repo := NewRepository()
	accounts := NewAccountRepository(repo)
	ctx := context.Background()

	for i, tc := range []struct {
		active, premium bool
	}{{true, true}, {true, false}, {false, false}, {true, true}} {
		a := &market.Account{Email: string(rune('a'+i)) + "@x.com", IsActive: tc.active, IsPremium: tc.premium}
		if err := accounts.Create(ctx, a); err != nil {
			t.Fatalf("Create() returned error: %v", err)
		}
	}

	yes := true
	tests := []struct {
		name   string
		filter *market.AccountFilter
		total  int64
		size   int
		more   bool
	}{
		{"all", nil, 4, 4, false},
		{"active", &market.AccountFilter{IsActive: &yes}, 3, 3, false},
		{"premium", &market.AccountFilter{IsPremium: &yes}, 2, 2, false},
		{"paged", &market.AccountFilter{Limit: 3}, 4, 3, true},
		{"second page", &market.AccountFilter{Offset: 3, Limit: 3}, 4, 1, false},
		{"past end", &market.AccountFilter{Offset: 10, Limit: 3}, 4, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := accounts.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() returned error: %v", err)
			}
			if page.Total != tt.total {
				t.Errorf("Expected total %d, got %d", tt.total, page.Total)
			}
			if len(page.Accounts) != tt.size {
				t.Errorf("Expected %d accounts, got %d", tt.size, len(page.Accounts))
			}
			if page.HasMore != tt.more {
				t.Errorf("Expected HasMore %v, got %v", tt.more, page.HasMore)
			}
		})
	}
}

func TestAccountRepository_DeleteCascades(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	account := createTestAccount(t, repo, "a@x.com")
	other := createTestAccount(t, repo, "b@x.com")

	if err := repo.Profiles().Create(ctx, &market.Profile{AccountID: account.ID}); err != nil {
		t.Fatalf("Profiles().Create() returned error: %v", err)
	}
	tag, _ := repo.Interests(market.InterestCategory).Ensure(ctx, "Design")
	if err := repo.Interests(market.InterestCategory).ReplaceForAccount(ctx, account.ID, []int64{tag.ID}); err != nil {
		t.Fatalf("ReplaceForAccount() returned error: %v", err)
	}
	p := &market.Portfolio{AccountID: account.ID, Title: "Work"}
	if err := repo.Portfolios().Create(ctx, p); err != nil {
		t.Fatalf("Portfolios().Create() returned error: %v", err)
	}
	repo.Portfolios().AddImages(ctx, p.ID, []string{"/uploads/portfolio_images/1.png"})
	repo.Portfolios().AddKeywords(ctx, p.ID, []string{"go"})
	keep := &market.Portfolio{AccountID: other.ID, Title: "Other"}
	repo.Portfolios().Create(ctx, keep)

	if err := repo.Accounts().Delete(ctx, account.ID); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}

	if _, err := repo.Profiles().Get(ctx, account.ID); !market.IsNotFoundError(err) {
		t.Errorf("Expected profile to cascade, got: %v", err)
	}
	if _, err := repo.Portfolios().Get(ctx, p.ID); !market.IsNotFoundError(err) {
		t.Errorf("Expected portfolio to cascade, got: %v", err)
	}
	if len(repo.data.images) != 0 || len(repo.data.keywords) != 0 {
		t.Errorf("Expected portfolio children to cascade, got %d images %d keywords", len(repo.data.images), len(repo.data.keywords))
	}
	if len(repo.data.interests[market.InterestCategory]) != 0 {
		t.Error("Expected interest associations to cascade")
	}
	// Tags themselves are shared and survive
	if _, err := repo.Interests(market.InterestCategory).GetByName(ctx, "Design"); err != nil {
		t.Errorf("Expected tag to survive, got: %v", err)
	}
	if _, err := repo.Portfolios().Get(ctx, keep.ID); err != nil {
		t.Errorf("Expected other account's portfolio to survive, got: %v", err)
	}

	if err := repo.Accounts().Delete(ctx, account.ID); !market.IsNotFoundError(err) {
		t.Errorf("Expected not found for second delete, got: %v", err)
	}
}
