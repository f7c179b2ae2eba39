package market

import (
	"context"
	"time"
)

// Store groups the typed repositories over one view of the data.
// A Repository reads committed state; a Transaction reads and writes
// its own uncommitted state.
type Store interface {
	Accounts() AccountRepository
	Profiles() ProfileRepository
	// Interests returns the tag repository for the given kind.
	// Unknown kinds yield a repository whose methods return a validation error.
	Interests(kind InterestKind) TagRepository
	Portfolios() PortfolioRepository
	Admins() AdminRepository
	FileOps() FileOpRepository
}

// Repository defines the base interface for the relational store
type Repository interface {
	Store

	// Health returns the health status of the repository
	Health(ctx context.Context) HealthStatus

	// Close closes the repository connection and releases resources
	Close() error

	// BeginTx begins a transaction
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction defines the interface for database transactions
type Transaction interface {
	Store

	// Commit commits the transaction
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction
	Rollback(ctx context.Context) error
}

// HealthStatus represents the health status of a repository
type HealthStatus struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// AccountRepository defines account data operations
type AccountRepository interface {
	// Create inserts the account and assigns its ID
	Create(ctx context.Context, account *Account) error
	Get(ctx context.Context, id int64) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByActivationToken(ctx context.Context, token string) (*Account, error)
	// GetByResetToken only matches tokens whose expiry is after now
	GetByResetToken(ctx context.Context, token string, now time.Time) (*Account, error)
	// Update writes every mutable column of the account
	Update(ctx context.Context, account *Account) error
	// Delete removes the account; dependent rows cascade
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter *AccountFilter) (*PaginatedAccounts, error)
}

// ProfileRepository defines operations on the profile and the
// per-account collections edited together with it
type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	Get(ctx context.Context, accountID int64) (*Profile, error)
	// Update requires profile.Version to match the stored version and
	// increments it on success
	Update(ctx context.Context, profile *Profile) error

	SetAvailability(ctx context.Context, availability *Availability) error
	GetAvailability(ctx context.Context, accountID int64) (*Availability, error)

	ReplaceExperience(ctx context.Context, accountID int64, items []*Experience) error
	ListExperience(ctx context.Context, accountID int64) ([]*Experience, error)
	ReplaceEducation(ctx context.Context, accountID int64, items []*Education) error
	ListEducation(ctx context.Context, accountID int64) ([]*Education, error)
	ReplacePricing(ctx context.Context, accountID int64, items []*Pricing) error
	ListPricing(ctx context.Context, accountID int64) ([]*Pricing, error)
}

// TagRepository defines operations on one interest table and the
// account associations of that kind
type TagRepository interface {
	Kind() InterestKind
	// Ensure returns the tag with the given name, inserting it if absent.
	// Names are compared case-sensitively.
	Ensure(ctx context.Context, name string) (*Tag, error)
	GetByName(ctx context.Context, name string) (*Tag, error)
	// ReplaceForAccount deletes every association of this kind for the
	// account and inserts one row per tag ID
	ReplaceForAccount(ctx context.Context, accountID int64, tagIDs []int64) error
	ListForAccount(ctx context.Context, accountID int64) ([]*Tag, error)
}

// PortfolioRepository defines portfolio data operations
type PortfolioRepository interface {
	// Create inserts the portfolio row and assigns its ID.
	// Images and keywords are written separately.
	Create(ctx context.Context, portfolio *Portfolio) error
	// Get returns the portfolio with its images and keywords
	Get(ctx context.Context, id int64) (*Portfolio, error)
	// Update requires portfolio.Version to match the stored version,
	// increments it and sets updated_at
	Update(ctx context.Context, portfolio *Portfolio) error
	// SetStatus changes the moderation status only
	SetStatus(ctx context.Context, id int64, status PortfolioStatus) error
	// ClearVideo detaches the video and increments the version. Status
	// and updated_at are left as they are.
	ClearVideo(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	DeleteByAccount(ctx context.Context, accountID int64) (int64, error)
	ListByAccount(ctx context.Context, accountID int64) ([]*Portfolio, error)
	List(ctx context.Context, filter *PortfolioFilter) (*PaginatedPortfolios, error)

	AddImages(ctx context.Context, portfolioID int64, paths []string) ([]*PortfolioImage, error)
	ReplaceImages(ctx context.Context, portfolioID int64, paths []string) ([]*PortfolioImage, error)
	GetImage(ctx context.Context, imageID int64) (*PortfolioImage, error)
	DeleteImage(ctx context.Context, imageID int64) error
	CountImages(ctx context.Context, portfolioID int64) (int, error)

	// AddKeywords inserts the keywords the portfolio does not have yet,
	// returning the inserted rows and the skipped names
	AddKeywords(ctx context.Context, portfolioID int64, keywords []string) ([]*PortfolioKeyword, []string, error)
	ReplaceKeywords(ctx context.Context, portfolioID int64, keywords []string) error
	GetKeyword(ctx context.Context, keywordID int64) (*PortfolioKeyword, error)
	DeleteKeyword(ctx context.Context, keywordID int64) error
}

// AdminRepository defines moderator account operations
type AdminRepository interface {
	Create(ctx context.Context, admin *Admin) error
	Get(ctx context.Context, id int64) (*Admin, error)
	GetByEmail(ctx context.Context, email string) (*Admin, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// FileOpRepository defines operations on the pending file operation journal
type FileOpRepository interface {
	// Record inserts the operation and assigns its ID
	Record(ctx context.Context, op *FileOp) error
	Clear(ctx context.Context, ids []int64) error
	// ListStale returns operations created before the cutoff, oldest first
	ListStale(ctx context.Context, before time.Time, limit int) ([]*FileOp, error)
}
