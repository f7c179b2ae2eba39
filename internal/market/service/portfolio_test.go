package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/internal/market/coordinator"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

func images(t *testing.T, n int) []*filestore.Upload {
	t.Helper()
	out := make([]*filestore.Upload, n)
	for i := range out {
		out[i] = pngUpload(t)
	}
	return out
}

// addPortfolio publishes a portfolio with one image and a document
func (e *testEnv) addPortfolio(t *testing.T, caller *Caller, title string) *market.Portfolio {
	t.Helper()
	p, _, err := e.portfolios.Add(context.Background(), caller, &AddPortfolioInput{
		AccountID: caller.ID,
		Title:     title,
		Keywords:  []string{"go"},
		Images:    images(t, 1),
		Document:  documentUpload(),
	})
	if err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	return p
}

func TestPortfolioService_Add(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, caller := env.activeAccount(t, "maker@example.com")

	p, _, err := env.portfolios.Add(ctx, caller, &AddPortfolioInput{
		AccountID:   account.ID,
		Title:       "Brand refresh",
		Description: "Logo and guidelines",
		Keywords:    []string{"logo", "logo", " print "},
		Images:      images(t, 2),
		Video:       videoUpload(),
		Document:    documentUpload(),
	})
	if err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if p.Status != market.PortfolioStatusPending {
		t.Errorf("status = %q, want pending", p.Status)
	}
	if len(p.Images) != 2 || len(p.Keywords) != 2 {
		t.Errorf("images = %d, keywords = %d, want 2 and 2", len(p.Images), len(p.Keywords))
	}
	if p.Video == nil || p.Document == nil {
		t.Fatal("video and document should be set")
	}
	for _, path := range p.FilePaths() {
		if !env.exists(t, path) {
			t.Errorf("file %s should exist", path)
		}
	}
	if n := env.fileCount(t); n != 4 {
		t.Errorf("file count = %d, want 4", n)
	}
}

func TestPortfolioService_AddValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, caller := env.activeAccount(t, "maker@example.com")
	_, other := env.activeAccount(t, "other@example.com")

	tests := []struct {
		name   string
		caller *Caller
		in     *AddPortfolioInput
		code   string
	}{
		{"missing title", caller, &AddPortfolioInput{AccountID: account.ID, Document: documentUpload()}, "PORTFOLIO_FIELDS_REQUIRED"},
		{"missing document", caller, &AddPortfolioInput{AccountID: account.ID, Title: "t"}, "DOCUMENT_REQUIRED"},
		{"not owner", other, &AddPortfolioInput{AccountID: account.ID, Title: "t", Document: documentUpload()}, "NOT_OWNER"},
		{"too many images", caller, &AddPortfolioInput{
			AccountID: account.ID,
			Title:     "t",
			Document:  documentUpload(),
			Images:    images(t, market.MaxPortfolioImages+1),
		}, "TOO_MANY_IMAGES"},
		{"video is not a video", caller, &AddPortfolioInput{
			AccountID: account.ID,
			Title:     "t",
			Document:  documentUpload(),
			Video:     pngUpload(t),
		}, "INVALID_UPLOAD_TYPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.portfolios.Add(ctx, tt.caller, tt.in)
			assertCode(t, err, tt.code)
		})
	}
	if n := env.fileCount(t); n != 0 {
		t.Errorf("file count = %d, want 0 after rejected adds", n)
	}
}

func TestPortfolioService_FaultLeavesNoFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, caller := env.activeAccount(t, "maker@example.com")

	injected := errors.New("injected failure")
	env.repo.SetFaultHook(func(op string) error {
		if op == "Portfolios.AddImages" {
			return injected
		}
		return nil
	})

	_, _, err := env.portfolios.Add(ctx, caller, &AddPortfolioInput{
		AccountID: account.ID,
		Title:     "Doomed",
		Images:    images(t, 3),
		Video:     videoUpload(),
		Document:  documentUpload(),
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	env.repo.SetFaultHook(nil)

	if n := env.fileCount(t); n != 0 {
		t.Errorf("file count = %d, want 0 after a failed add", n)
	}
	list, err := env.portfolios.ListByAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("ListByAccount() returned error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListByAccount() returned %d portfolios, want 0", len(list))
	}
}

func TestPortfolioService_UpdateCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, caller := env.activeAccount(t, "maker@example.com")
	p := env.addPortfolio(t, caller, "First")

	// pending portfolios can be edited freely
	updated, _, err := env.portfolios.Update(ctx, caller, &UpdatePortfolioInput{
		PortfolioID: p.ID,
		Version:     p.Version,
		Title:       "First, revised",
	})
	if err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	if updated.Version <= p.Version {
		t.Errorf("version = %d, want it bumped from %d", updated.Version, p.Version)
	}
	if len(updated.Keywords) != 1 || len(updated.Images) != 1 {
		t.Errorf("keywords = %d, images = %d, want both kept", len(updated.Keywords), len(updated.Images))
	}

	_, _, err = env.portfolios.Update(ctx, caller, &UpdatePortfolioInput{
		PortfolioID: p.ID,
		Version:     p.Version,
		Title:       "Stale",
	})
	assertCode(t, err, "VERSION_CONFLICT")

	if _, err := env.portfolios.SetStatus(ctx, p.ID, market.PortfolioStatusApproved); err != nil {
		t.Fatalf("SetStatus() returned error: %v", err)
	}

	_, _, err = env.portfolios.Update(ctx, caller, &UpdatePortfolioInput{PortfolioID: p.ID, Title: "Too soon"})
	assertCode(t, err, "COOLDOWN_ACTIVE")
	var merr *market.MarketError
	if !errors.As(err, &merr) || merr.Details == "" {
		t.Errorf("cooldown error should carry the remaining time, got %v", err)
	}

	env.portfolios.now = after(env.portfolios.config.Cooldown + time.Hour)
	updated, _, err = env.portfolios.Update(ctx, caller, &UpdatePortfolioInput{
		PortfolioID: p.ID,
		Title:       "Later",
		Keywords:    []string{"rust", "wasm"},
	})
	if err != nil {
		t.Fatalf("Update() after cooldown returned error: %v", err)
	}
	if updated.Status != market.PortfolioStatusPending {
		t.Errorf("status = %q, want pending after an edit", updated.Status)
	}
	if len(updated.Keywords) != 2 {
		t.Errorf("keywords = %d, want 2 after replacement", len(updated.Keywords))
	}
}

func TestPortfolioService_UpdateReplacesMedia(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, caller := env.activeAccount(t, "maker@example.com")

	p, _, err := env.portfolios.Add(ctx, caller, &AddPortfolioInput{
		AccountID: account.ID,
		Title:     "Reel",
		Images:    images(t, 2),
		Video:     videoUpload(),
		Document:  documentUpload(),
	})
	if err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	old := p.FilePaths()

	updated, _, err := env.portfolios.Update(ctx, caller, &UpdatePortfolioInput{
		PortfolioID:   p.ID,
		Title:         "Reel v2",
		Images:        images(t, 1),
		ReplaceImages: true,
		Video:         videoUpload(),
		Document:      documentUpload(),
	})
	if err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	if len(updated.Images) != 1 {
		t.Errorf("images = %d, want 1 after replacement", len(updated.Images))
	}
	for _, path := range old {
		if env.exists(t, path) {
			t.Errorf("superseded file %s should be deleted", path)
		}
	}
	for _, path := range updated.FilePaths() {
		if !env.exists(t, path) {
			t.Errorf("file %s should exist", path)
		}
	}
	if n := env.fileCount(t); n != 3 {
		t.Errorf("file count = %d, want 3", n)
	}

	// appending keeps the stored images
	updated, _, err = env.portfolios.Update(ctx, caller, &UpdatePortfolioInput{
		PortfolioID: p.ID,
		Title:       "Reel v3",
		Images:      images(t, 2),
	})
	if err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	if len(updated.Images) != 3 {
		t.Errorf("images = %d, want 3 after append", len(updated.Images))
	}

	_, _, err = env.portfolios.Update(ctx, caller, &UpdatePortfolioInput{
		PortfolioID: p.ID,
		Title:       "Reel v4",
		Images:      images(t, market.MaxPortfolioImages-2),
	})
	assertCode(t, err, "TOO_MANY_IMAGES")
}

func TestPortfolioService_UpdateReplaceWithoutImages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, caller := env.activeAccount(t, "maker@example.com")
	p := env.addPortfolio(t, caller, "Keep my images")

	updated, result, err := env.portfolios.Update(ctx, caller, &UpdatePortfolioInput{
		PortfolioID:   p.ID,
		Title:         "Renamed",
		ReplaceImages: true,
	})
	if err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	if len(updated.Images) != 1 || updated.Images[0].Path != p.Images[0].Path {
		t.Errorf("images = %+v, want the stored image kept", updated.Images)
	}
	if !env.exists(t, p.Images[0].Path) {
		t.Error("stored image file should be kept")
	}
	if len(result.Deleted) != 0 {
		t.Errorf("deleted = %v, want nothing", result.Deleted)
	}
	if n := env.fileCount(t); n != 2 {
		t.Errorf("file count = %d, want 2", n)
	}
}

func TestPortfolioService_AddReportsFileFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, caller := env.activeAccount(t, "maker@example.com")

	p, result, err := env.portfolios.Add(ctx, caller, &AddPortfolioInput{
		AccountID: account.ID,
		Title:     "Healthy",
		Images:    images(t, 1),
		Document:  documentUpload(),
	})
	if err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if !result.Consistent() || len(result.Written) != 2 {
		t.Errorf("result = %+v, want 2 files written", result)
	}

	readOnly := filestore.New(afero.NewReadOnlyFs(afero.NewMemMapFs()))
	broken := NewPortfolioService(env.repo, coordinator.New(env.repo, readOnly, log.NewNop()),
		env.mail, env.portfolios.config, log.NewNop())

	created, result, err := broken.Add(ctx, caller, &AddPortfolioInput{
		AccountID: account.ID,
		Title:     "Unwritable",
		Document:  documentUpload(),
	})
	if err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if created == nil || created.ID == p.ID {
		t.Fatalf("Add() = %+v, want a new committed portfolio", created)
	}
	if len(result.Inconsistencies) != 1 || result.Inconsistencies[0].Kind != market.FileOpWrite {
		t.Errorf("inconsistencies = %+v, want one failed write", result.Inconsistencies)
	}

	_, result, err = broken.Update(ctx, caller, &UpdatePortfolioInput{
		PortfolioID: p.ID,
		Title:       "Healthy, revised",
		Document:    documentUpload(),
	})
	if err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}
	if result.Consistent() {
		t.Error("Update() should report the failed document write")
	}
	if !env.exists(t, *p.Document) {
		t.Error("superseded document should be kept when its replacement was not written")
	}
}

func TestPortfolioService_Images(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, caller := env.activeAccount(t, "maker@example.com")
	_, other := env.activeAccount(t, "other@example.com")
	p := env.addPortfolio(t, caller, "Gallery")

	_, err := env.portfolios.AddImages(ctx, caller, p.ID, nil)
	assertCode(t, err, "IMAGES_REQUIRED")
	_, err = env.portfolios.AddImages(ctx, other, p.ID, images(t, 1))
	assertCode(t, err, "NOT_OWNER")
	_, err = env.portfolios.AddImages(ctx, caller, p.ID, images(t, market.MaxPortfolioImages))
	assertCode(t, err, "TOO_MANY_IMAGES")

	added, err := env.portfolios.AddImages(ctx, caller, p.ID, images(t, 2))
	if err != nil {
		t.Fatalf("AddImages() returned error: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("AddImages() returned %d images, want 2", len(added))
	}
	if !env.exists(t, added[0].Path) {
		t.Error("added image should exist")
	}

	if _, err := env.portfolios.DeleteImage(ctx, other, added[0].ID); market.CodeOf(err) != "NOT_OWNER" {
		t.Errorf("DeleteImage() by other = %v, want NOT_OWNER", err)
	}
	if _, err := env.portfolios.DeleteImage(ctx, caller, added[0].ID); err != nil {
		t.Fatalf("DeleteImage() returned error: %v", err)
	}
	if env.exists(t, added[0].Path) {
		t.Error("deleted image file should be removed")
	}

	got, err := env.portfolios.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if len(got.Images) != 2 {
		t.Errorf("images = %d, want 2", len(got.Images))
	}
}

func TestPortfolioService_Keywords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, caller := env.activeAccount(t, "maker@example.com")
	p := env.addPortfolio(t, caller, "Tagged")

	_, err := env.portfolios.AddKeywords(ctx, caller, p.ID, []string{" ", ""})
	assertCode(t, err, "KEYWORDS_REQUIRED")

	result, err := env.portfolios.AddKeywords(ctx, caller, p.ID, []string{"go", "grpc", "grpc"})
	if err != nil {
		t.Fatalf("AddKeywords() returned error: %v", err)
	}
	if len(result.Added) != 1 || result.Added[0].Keyword != "grpc" {
		t.Errorf("added = %+v, want only grpc", result.Added)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "go" {
		t.Errorf("skipped = %v, want [go]", result.Skipped)
	}

	if err := env.portfolios.DeleteKeyword(ctx, caller, result.Added[0].ID); err != nil {
		t.Fatalf("DeleteKeyword() returned error: %v", err)
	}
	got, err := env.portfolios.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if len(got.Keywords) != 1 {
		t.Errorf("keywords = %d, want 1", len(got.Keywords))
	}
}

func TestPortfolioService_DeleteVideo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, caller := env.activeAccount(t, "maker@example.com")

	p := env.addPortfolio(t, caller, "No video")
	_, err := env.portfolios.DeleteVideo(ctx, caller, p.ID)
	assertCode(t, err, "VIDEO_NOT_FOUND")

	withVideo, _, err := env.portfolios.Add(ctx, caller, &AddPortfolioInput{
		AccountID: account.ID,
		Title:     "Video",
		Video:     videoUpload(),
		Document:  documentUpload(),
	})
	if err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	approved, err := env.portfolios.SetStatus(ctx, withVideo.ID, market.PortfolioStatusApproved)
	if err != nil {
		t.Fatalf("SetStatus() returned error: %v", err)
	}

	if _, err := env.portfolios.DeleteVideo(ctx, caller, withVideo.ID); err != nil {
		t.Fatalf("DeleteVideo() returned error: %v", err)
	}
	if env.exists(t, *withVideo.Video) {
		t.Error("video file should be removed")
	}
	got, err := env.portfolios.Get(ctx, withVideo.ID)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if got.Video != nil {
		t.Errorf("video = %q, want nil", *got.Video)
	}
	// detaching media neither re-queues moderation nor restarts the cooldown
	if got.Status != market.PortfolioStatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if !got.UpdatedAt.Equal(approved.UpdatedAt) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, approved.UpdatedAt)
	}
	if got.Version <= approved.Version {
		t.Errorf("version = %d, want it bumped from %d", got.Version, approved.Version)
	}
}

func TestPortfolioService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, caller := env.activeAccount(t, "maker@example.com")
	_, other := env.activeAccount(t, "other@example.com")

	first := env.addPortfolio(t, caller, "One")
	env.addPortfolio(t, caller, "Two")
	env.addPortfolio(t, caller, "Three")

	_, err := env.portfolios.Delete(ctx, other, first.ID)
	assertCode(t, err, "NOT_OWNER")

	if _, err := env.portfolios.Delete(ctx, caller, first.ID); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}
	for _, path := range first.FilePaths() {
		if env.exists(t, path) {
			t.Errorf("file %s should be removed", path)
		}
	}
	if _, err := env.portfolios.Get(ctx, first.ID); !market.IsNotFoundError(err) {
		t.Errorf("expected not found error, got %v", err)
	}

	deleted, _, err := env.portfolios.DeleteByAccount(ctx, caller, account.ID)
	if err != nil {
		t.Fatalf("DeleteByAccount() returned error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if n := env.fileCount(t); n != 0 {
		t.Errorf("file count = %d, want 0", n)
	}

	_, _, err = env.portfolios.DeleteByAccount(ctx, caller, account.ID)
	assertCode(t, err, "PORTFOLIO_NOT_FOUND")
}

func TestPortfolioService_ListPublic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, regular := env.activeAccount(t, "regular@example.com")
	premiumAccount, premium := env.activeAccount(t, "premium@example.com")
	if err := env.accounts.SetPremium(ctx, premiumAccount.ID, true); err != nil {
		t.Fatalf("SetPremium() returned error: %v", err)
	}

	approvedRegular := env.addPortfolio(t, regular, "Regular approved")
	env.addPortfolio(t, regular, "Regular pending")
	approvedPremium := env.addPortfolio(t, premium, "Premium approved")
	banned := env.addPortfolio(t, premium, "Premium banned")

	for id, status := range map[int64]market.PortfolioStatus{
		approvedRegular.ID: market.PortfolioStatusApproved,
		approvedPremium.ID: market.PortfolioStatusApproved,
		banned.ID:          market.PortfolioStatusBanned,
	} {
		if _, err := env.portfolios.SetStatus(ctx, id, status); err != nil {
			t.Fatalf("SetStatus() returned error: %v", err)
		}
	}

	page, err := env.portfolios.ListPublic(ctx, &PortfolioQuery{})
	if err != nil {
		t.Fatalf("ListPublic() returned error: %v", err)
	}
	if page.Pagination.Total != 2 || len(page.Data) != 2 {
		t.Fatalf("ListPublic() returned %d of %d, want 2 approved", len(page.Data), page.Pagination.Total)
	}
	if page.Data[0].ID != approvedPremium.ID {
		t.Errorf("first portfolio = %d, want the premium owner's %d", page.Data[0].ID, approvedPremium.ID)
	}

	page, err = env.portfolios.ListPublic(ctx, &PortfolioQuery{Search: "regular"})
	if err != nil {
		t.Fatalf("ListPublic() returned error: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != approvedRegular.ID {
		t.Errorf("search returned %d portfolios, want only %d", len(page.Data), approvedRegular.ID)
	}

	pending := market.PortfolioStatusPending
	page, err = env.portfolios.ListForModeration(ctx, &PortfolioQuery{Status: &pending})
	if err != nil {
		t.Fatalf("ListForModeration() returned error: %v", err)
	}
	if page.Pagination.Total != 1 {
		t.Errorf("pending total = %d, want 1", page.Pagination.Total)
	}

	bogus := market.PortfolioStatus("archived")
	_, err = env.portfolios.ListForModeration(ctx, &PortfolioQuery{Status: &bogus})
	assertCode(t, err, "INVALID_STATUS")
}

func TestPortfolioService_SetStatusNotifiesOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, caller := env.activeAccount(t, "maker@example.com")
	p := env.addPortfolio(t, caller, "Review me")

	_, err := env.portfolios.SetStatus(ctx, p.ID, "archived")
	assertCode(t, err, "INVALID_STATUS")

	got, err := env.portfolios.SetStatus(ctx, p.ID, market.PortfolioStatusHold)
	if err != nil {
		t.Fatalf("SetStatus() returned error: %v", err)
	}
	if got.Status != market.PortfolioStatusHold {
		t.Errorf("status = %q, want hold", got.Status)
	}
	if sent := env.mail.last(t, "status"); sent != string(market.PortfolioStatusHold) {
		t.Errorf("status email = %q, want hold", sent)
	}

	_, err = env.portfolios.SetStatus(ctx, p.ID+100, market.PortfolioStatusApproved)
	if !market.IsNotFoundError(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}
