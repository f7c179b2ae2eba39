// Package service implements the marketplace use cases on top of the
// repository, the file store and the transaction coordinator.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/internal/market/coordinator"
	"github.com/songzhibin97/qwork/pkg/market"
)

// Mailer sends the marketplace emails
type Mailer interface {
	SendActivation(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
	SendAdminTemporaryPassword(ctx context.Context, to, password string) error
	SendPortfolioStatus(ctx context.Context, to, title string, status market.PortfolioStatus) error
}

// Runner runs coordinated multi-resource writes
type Runner interface {
	Run(ctx context.Context, op string, fn coordinator.Func) (*coordinator.Result, error)
}

// Config holds the policies shared by the services
type Config struct {
	// BaseURL is prepended to stored file paths in responses
	BaseURL         string
	Media           filestore.MediaOptions
	Cooldown        time.Duration
	RequireDocument bool
	ResetTokenTTL   time.Duration
}

// DefaultConfig returns the default service policies
func DefaultConfig() Config {
	return Config{
		Cooldown:        168 * time.Hour,
		RequireDocument: true,
		ResetTokenTTL:   time.Hour,
	}
}

// Caller is the authenticated principal of a request
type Caller struct {
	ID    int64
	Email string
	Role  string
}

// IsAdmin reports whether the caller is a moderator
func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == market.RoleAdmin
}

// owns reports whether the caller may modify resources of accountID
func (c *Caller) owns(accountID int64) bool {
	if c == nil {
		return false
	}
	return c.IsAdmin() || (c.Role == market.RoleUser && c.ID == accountID)
}

func requireOwner(c *Caller, accountID int64) error {
	if !c.owns(accountID) {
		return market.NewPermissionError("NOT_OWNER", "only the owner or an admin may modify this resource")
	}
	return nil
}

// Page is the pagination envelope of list responses
type Page struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

func newPage(page, limit int, total int64) Page {
	return Page{Page: page, Limit: limit, Total: total, TotalPages: market.TotalPages(total, limit)}
}

// pageBounds converts a 1-based page number into an offset
func pageBounds(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	_, limit = market.NormalizePage(0, limit)
	return page, (page - 1) * limit, limit
}

// publicURL prefixes a stored path with the public base URL
func publicURL(base, stored string) string {
	if stored == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + stored
}

func publicURLPtr(base string, stored *string) *string {
	if stored == nil || *stored == "" {
		return nil
	}
	u := publicURL(base, *stored)
	return &u
}

// dedupe trims names and drops empty and repeated ones, keeping order.
// Comparison is case-sensitive.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func prepare(kind filestore.Kind, up *filestore.Upload, opts filestore.MediaOptions) (*filestore.Prepared, error) {
	if up == nil {
		return nil, nil
	}
	return filestore.Prepare(kind, up, opts)
}

func prepareAll(kind filestore.Kind, ups []*filestore.Upload, opts filestore.MediaOptions) ([]*filestore.Prepared, error) {
	out := make([]*filestore.Prepared, 0, len(ups))
	for _, up := range ups {
		p, err := filestore.Prepare(kind, up, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
