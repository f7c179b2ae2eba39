package market

import (
	"time"
)

// Account represents a marketplace member
type Account struct {
	ID               int64      `json:"id" db:"id"`
	Email            string     `json:"email" db:"email"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	ActivationToken  *string    `json:"-" db:"activation_token"`
	ResetToken       *string    `json:"-" db:"reset_token"`
	ResetTokenExpiry *time.Time `json:"-" db:"reset_token_expiry"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	IsPremium        bool       `json:"is_premium" db:"is_premium"`
	Role             string     `json:"role" db:"role"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// RoleUser is the role carried by every marketplace account
const RoleUser = "user"

// RoleAdmin is the role carried by moderators
const RoleAdmin = "admin"

// Profile is the one-to-one descriptive record of an account.
// ProfileImage is nil or a path served from the uploads directory.
type Profile struct {
	AccountID        int64      `json:"user_id" db:"user_id"`
	ProfileImage     *string    `json:"profile_image" db:"profile_image"`
	FirstName        string     `json:"first_name" db:"first_name"`
	LastName         string     `json:"last_name" db:"last_name"`
	ContactEmail     string     `json:"contact_email" db:"contact_email"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Address          string     `json:"address" db:"address"`
	City             string     `json:"city" db:"city"`
	State            string     `json:"state" db:"state"`
	ZipCode          string     `json:"zip_code" db:"zip_code"`
	ShortDescription string     `json:"short_description" db:"short_description"`
	LongDescription  string     `json:"long_description" db:"long_description"`
	Version          int64      `json:"version" db:"version"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Availability describes when an account takes work
type Availability struct {
	AccountID    int64  `json:"user_id" db:"user_id"`
	Status       string `json:"status" db:"status"`
	HoursPerWeek int    `json:"hours_per_week" db:"hours_per_week"`
	Timezone     string `json:"timezone" db:"timezone"`
}

// InterestKind selects which tag table an interest lives in
type InterestKind string

const (
	InterestCategory InterestKind = "category"
	InterestKeyword  InterestKind = "keyword"
)

// InterestKinds lists every supported interest kind
var InterestKinds = []InterestKind{InterestCategory, InterestKeyword}

// Valid reports whether k is a known interest kind
func (k InterestKind) Valid() bool {
	return k == InterestCategory || k == InterestKeyword
}

// Tag is a deduplicated category or keyword name
type Tag struct {
	ID   int64        `json:"id" db:"id"`
	Name string       `json:"name" db:"name"`
	Kind InterestKind `json:"kind"`
}

// Experience is one work history entry
type Experience struct {
	ID          int64      `json:"id" db:"id"`
	AccountID   int64      `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	Company     string     `json:"company" db:"company"`
	StartDate   *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty" db:"end_date"`
	Description string     `json:"description" db:"description"`
}

// Education is one education history entry
type Education struct {
	ID        int64  `json:"id" db:"id"`
	AccountID int64  `json:"user_id" db:"user_id"`
	School    string `json:"school" db:"school"`
	Degree    string `json:"degree" db:"degree"`
	Field     string `json:"field" db:"field"`
	StartYear int    `json:"start_year" db:"start_year"`
	EndYear   int    `json:"end_year" db:"end_year"`
}

// Pricing is one priced service package offered by an account
type Pricing struct {
	ID          int64  `json:"id" db:"id"`
	AccountID   int64  `json:"user_id" db:"user_id"`
	Name        string `json:"name" db:"name"`
	AmountCents int64  `json:"amount_cents" db:"amount_cents"`
	Currency    string `json:"currency" db:"currency"`
	Description string `json:"description" db:"description"`
}

// PortfolioStatus is the moderation state of a portfolio
type PortfolioStatus string

const (
	PortfolioStatusPending  PortfolioStatus = "pending"
	PortfolioStatusApproved PortfolioStatus = "approved"
	PortfolioStatusRejected PortfolioStatus = "rejected"
	PortfolioStatusHold     PortfolioStatus = "hold"
	PortfolioStatusBanned   PortfolioStatus = "banned"
)

// Valid reports whether s is a known moderation status
func (s PortfolioStatus) Valid() bool {
	switch s {
	case PortfolioStatusPending, PortfolioStatusApproved, PortfolioStatusRejected,
		PortfolioStatusHold, PortfolioStatusBanned:
		return true
	}
	return false
}

// Portfolio is a piece of work published by an account
type Portfolio struct {
	ID           int64               `json:"id" db:"id"`
	AccountID    int64               `json:"user_id" db:"user_id"`
	Title        string              `json:"title" db:"title"`
	Description  string              `json:"description" db:"description"`
	Video        *string             `json:"video" db:"video"`
	Document     *string             `json:"document" db:"document"`
	Status       PortfolioStatus     `json:"status" db:"status"`
	Version      int64               `json:"version" db:"version"`
	OwnerPremium bool                `json:"owner_premium"`
	Images       []*PortfolioImage   `json:"images"`
	Keywords     []*PortfolioKeyword `json:"keywords"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" db:"updated_at"`
}

// FilePaths returns every file referenced by the portfolio and its images
func (p *Portfolio) FilePaths() []string {
	var paths []string
	if p.Video != nil && *p.Video != "" {
		paths = append(paths, *p.Video)
	}
	if p.Document != nil && *p.Document != "" {
		paths = append(paths, *p.Document)
	}
	for _, img := range p.Images {
		paths = append(paths, img.Path)
	}
	return paths
}

// PortfolioImage is an image row owning one file
type PortfolioImage struct {
	ID          int64     `json:"id" db:"id"`
	PortfolioID int64     `json:"portfolio_id" db:"portfolio_id"`
	Path        string    `json:"image_path" db:"image_path"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PortfolioKeyword is a plain-text keyword attached to a portfolio
type PortfolioKeyword struct {
	ID          int64  `json:"id" db:"id"`
	PortfolioID int64  `json:"portfolio_id" db:"portfolio_id"`
	Keyword     string `json:"keyword" db:"keyword"`
}

// Admin is a moderator account
type Admin struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// FileOpKind is the kind of a journaled file operation
type FileOpKind string

const (
	FileOpWrite  FileOpKind = "write"
	FileOpDelete FileOpKind = "delete"
)

// FileOp is a journaled file operation recorded in the same transaction
// as the rows that reference the file.
type FileOp struct {
	ID        int64      `json:"id" db:"id"`
	Kind      FileOpKind `json:"kind" db:"kind"`
	Path      string     `json:"path" db:"path"`
	Operation string     `json:"operation" db:"operation"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// AccountFilter represents filter criteria for account queries
type AccountFilter struct {
	Offset    int   `json:"offset"`
	Limit     int   `json:"limit"`
	IsActive  *bool `json:"is_active,omitempty"`
	IsPremium *bool `json:"is_premium,omitempty"`
}

// PaginatedAccounts represents a paginated list of accounts
type PaginatedAccounts struct {
	Accounts []*Account `json:"accounts"`
	Total    int64      `json:"total"`
	Offset   int        `json:"offset"`
	Limit    int        `json:"limit"`
	HasMore  bool       `json:"has_more"`
}

// PortfolioFilter represents filter criteria for portfolio queries.
// Results are ordered premium owners first, then by most recent update.
type PortfolioFilter struct {
	Offset    int              `json:"offset"`
	Limit     int              `json:"limit"`
	Status    *PortfolioStatus `json:"status,omitempty"`
	IsPremium *bool            `json:"is_premium,omitempty"`
	Search    string           `json:"search,omitempty"`
}

// PaginatedPortfolios represents a paginated list of portfolios
type PaginatedPortfolios struct {
	Portfolios []*Portfolio `json:"portfolios"`
	Total      int64        `json:"total"`
	Offset     int          `json:"offset"`
	Limit      int          `json:"limit"`
	HasMore    bool         `json:"has_more"`
}

// MaxPortfolioImages is the maximum number of images a portfolio can hold
const MaxPortfolioImages = 10
