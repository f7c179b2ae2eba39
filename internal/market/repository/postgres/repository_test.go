package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/songzhibin97/qwork/pkg/market"
)

var testRepo *Repository

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn != "" {
		if err := setupTestDB(dsn); err != nil {
			fmt.Printf("Failed to setup test database: %v\n", err)
			os.Exit(1)
		}
	}

	code := m.Run()

	if testRepo != nil {
		testRepo.Close()
	}

	os.Exit(code)
}

func setupTestDB(dsn string) error {
	config := &Config{
		DSN:             dsn,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}

	var err error
	testRepo, err = NewRepository(config)
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}

	if err := testRepo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func requireDB(t *testing.T) {
	t.Helper()
	if testRepo == nil {
		t.Skip("Test database not available, set TEST_POSTGRES_DSN")
	}
	cleanupTestData(t)
}

func cleanupTestData(t *testing.T) {
	ctx := context.Background()
	for _, table := range []string{"file_ops", "admins", "users", "categories", "keywords"} {
		if _, err := testRepo.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Logf("Failed to clean %s: %v", table, err)
		}
	}
}

func createTestAccount(t *testing.T, store market.Store, email string) *market.Account {
	t.Helper()
	account := &market.Account{Email: email, PasswordHash: "hash"}
	if err := store.Accounts().Create(context.Background(), account); err != nil {
		t.Fatalf("Create() returned error: %v", err)
	}
	return account
}

func TestRepository_Health(t *testing.T) {
	requireDB(t)

	health := testRepo.Health(context.Background())
	if health.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", health.Status)
	}
	if health.Details["database_type"] != "postgresql" {
		t.Errorf("Expected database_type 'postgresql', got '%v'", health.Details["database_type"])
	}
}

func TestRepository_TransactionRollback(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	tx, err := testRepo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() returned error: %v", err)
	}
	account := createTestAccount(t, tx, "rollback@x.com")
	if err := tx.FileOps().Record(ctx, &market.FileOp{Kind: market.FileOpWrite, Path: "/uploads/a.png"}); err != nil {
		t.Fatalf("Record() returned error: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() returned error: %v", err)
	}

	if _, err := testRepo.Accounts().Get(ctx, account.ID); !market.IsNotFoundError(err) {
		t.Errorf("Expected not found after rollback, got: %v", err)
	}
	ops, err := testRepo.FileOps().ListStale(ctx, time.Now().Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("ListStale() returned error: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("Expected no journaled ops after rollback, got %d", len(ops))
	}

	if err := tx.Commit(ctx); !market.IsStorageError(err) {
		t.Errorf("Expected storage error for commit after rollback, got: %v", err)
	}
}

func TestAccountRepository_EmailConflict(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	createTestAccount(t, testRepo, "dup@x.com")
	err := testRepo.Accounts().Create(ctx, &market.Account{Email: "dup@x.com", PasswordHash: "hash"})
	if !market.IsConflictError(err) {
		t.Errorf("Expected conflict error, got: %v", err)
	}
}

func TestProfileRepository_VersionConflict(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	account := createTestAccount(t, testRepo, "profile@x.com")
	profile := &market.Profile{AccountID: account.ID, FirstName: "Ada"}
	if err := testRepo.Profiles().Create(ctx, profile); err != nil {
		t.Fatalf("Profiles().Create() returned error: %v", err)
	}

	stale := *profile
	profile.FirstName = "Grace"
	if err := testRepo.Profiles().Update(ctx, profile); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	if profile.Version != 2 {
		t.Errorf("Expected version 2, got %d", profile.Version)
	}

	if err := testRepo.Profiles().Update(ctx, &stale); market.CodeOf(err) != "VERSION_CONFLICT" {
		t.Errorf("Expected VERSION_CONFLICT, got: %v", err)
	}
}

func TestTagRepository_EnsureAndReplace(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	account := createTestAccount(t, testRepo, "tags@x.com")
	for _, kind := range market.InterestKinds {
		tags := testRepo.Interests(kind)
		first, err := tags.Ensure(ctx, "Design")
		if err != nil {
			t.Fatalf("%s Ensure() returned error: %v", kind, err)
		}
		again, err := tags.Ensure(ctx, "Design")
		if err != nil {
			t.Fatalf("%s Ensure() returned error: %v", kind, err)
		}
		if first.ID != again.ID {
			t.Errorf("%s Ensure() not idempotent: %d != %d", kind, first.ID, again.ID)
		}

		if err := tags.ReplaceForAccount(ctx, account.ID, []int64{first.ID}); err != nil {
			t.Fatalf("%s ReplaceForAccount() returned error: %v", kind, err)
		}
		listed, err := tags.ListForAccount(ctx, account.ID)
		if err != nil {
			t.Fatalf("%s ListForAccount() returned error: %v", kind, err)
		}
		if len(listed) != 1 || listed[0].Name != "Design" || listed[0].Kind != kind {
			t.Errorf("%s ListForAccount() = %+v", kind, listed)
		}
	}
}

func TestPortfolioRepository_CascadeAndList(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	owner := createTestAccount(t, testRepo, "owner@x.com")
	premium := &market.Account{Email: "premium@x.com", PasswordHash: "hash", IsPremium: true}
	if err := testRepo.Accounts().Create(ctx, premium); err != nil {
		t.Fatalf("Create() returned error: %v", err)
	}

	doc := "/uploads/portfolio_documents/a.pdf"
	p := &market.Portfolio{AccountID: owner.ID, Title: "Logo work", Document: &doc}
	if err := testRepo.Portfolios().Create(ctx, p); err != nil {
		t.Fatalf("Portfolios().Create() returned error: %v", err)
	}
	if _, err := testRepo.Portfolios().AddImages(ctx, p.ID, []string{"/uploads/portfolio_images/1.png"}); err != nil {
		t.Fatalf("AddImages() returned error: %v", err)
	}
	added, skipped, err := testRepo.Portfolios().AddKeywords(ctx, p.ID, []string{"branding", "branding"})
	if err != nil {
		t.Fatalf("AddKeywords() returned error: %v", err)
	}
	if len(added) != 1 || len(skipped) != 1 {
		t.Errorf("Expected 1 added and 1 skipped, got %d and %d", len(added), len(skipped))
	}

	pp := &market.Portfolio{AccountID: premium.ID, Title: "Premium work"}
	if err := testRepo.Portfolios().Create(ctx, pp); err != nil {
		t.Fatalf("Portfolios().Create() returned error: %v", err)
	}

	page, err := testRepo.Portfolios().List(ctx, &market.PortfolioFilter{Limit: 10})
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if page.Total != 2 || page.Portfolios[0].ID != pp.ID {
		t.Errorf("Expected premium portfolio first of 2, got total %d", page.Total)
	}

	search, err := testRepo.Portfolios().List(ctx, &market.PortfolioFilter{Search: "BRAND"})
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if search.Total != 1 || search.Portfolios[0].ID != p.ID {
		t.Errorf("Expected keyword search to match one portfolio, got %d", search.Total)
	}

	got, err := testRepo.Portfolios().Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if len(got.FilePaths()) != 2 {
		t.Errorf("Expected 2 file paths, got %v", got.FilePaths())
	}

	if err := testRepo.Accounts().Delete(ctx, owner.ID); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}
	if _, err := testRepo.Portfolios().Get(ctx, p.ID); !market.IsNotFoundError(err) {
		t.Errorf("Expected portfolio removed by cascade, got: %v", err)
	}
	if _, err := testRepo.Portfolios().GetKeyword(ctx, added[0].ID); !market.IsNotFoundError(err) {
		t.Errorf("Expected keyword removed by cascade, got: %v", err)
	}
}

func TestPortfolioRepository_ClearVideo(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	owner := createTestAccount(t, testRepo, "video@x.com")
	video := "/uploads/portfolio_videos/a.mp4"
	p := &market.Portfolio{AccountID: owner.ID, Title: "Reel", Video: &video}
	if err := testRepo.Portfolios().Create(ctx, p); err != nil {
		t.Fatalf("Portfolios().Create() returned error: %v", err)
	}
	if err := testRepo.Portfolios().SetStatus(ctx, p.ID, market.PortfolioStatusApproved); err != nil {
		t.Fatalf("SetStatus() returned error: %v", err)
	}
	before, err := testRepo.Portfolios().Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}

	if err := testRepo.Portfolios().ClearVideo(ctx, p.ID); err != nil {
		t.Fatalf("ClearVideo() returned error: %v", err)
	}
	after, err := testRepo.Portfolios().Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if after.Video != nil || after.Status != market.PortfolioStatusApproved {
		t.Errorf("Expected video cleared and status kept, got %v and %s", after.Video, after.Status)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Version != before.Version+1 {
		t.Errorf("Expected updated_at kept and version bumped, got %v and %d", after.UpdatedAt, after.Version)
	}

	if err := testRepo.Portfolios().ClearVideo(ctx, p.ID+1000); !market.IsNotFoundError(err) {
		t.Errorf("Expected not found for unknown portfolio, got: %v", err)
	}
}

func TestFileOpRepository_ListStaleAndClear(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	old := &market.FileOp{Kind: market.FileOpWrite, Path: "/uploads/old.png", CreatedAt: time.Now().Add(-time.Hour)}
	fresh := &market.FileOp{Kind: market.FileOpDelete, Path: "/uploads/new.png"}
	for _, op := range []*market.FileOp{old, fresh} {
		if err := testRepo.FileOps().Record(ctx, op); err != nil {
			t.Fatalf("Record() returned error: %v", err)
		}
	}

	stale, err := testRepo.FileOps().ListStale(ctx, time.Now().Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStale() returned error: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Errorf("Expected only the old op, got %+v", stale)
	}

	if err := testRepo.FileOps().Clear(ctx, []int64{old.ID, fresh.ID}); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}
	all, err := testRepo.FileOps().ListStale(ctx, time.Now().Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("ListStale() returned error: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected empty journal, got %d", len(all))
	}
}
