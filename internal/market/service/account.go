package service

import (
	"context"
	"strings"
	"time"

	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/internal/market/auth"
	"github.com/songzhibin97/qwork/internal/market/coordinator"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// ProfileInput carries the descriptive data edited at signup and on
// profile update. Collections replace the stored ones entirely.
type ProfileInput struct {
	FirstName        string
	LastName         string
	ContactEmail     string
	DateOfBirth      *time.Time
	Address          string
	City             string
	State            string
	ZipCode          string
	ShortDescription string
	LongDescription  string

	Availability *market.Availability
	Categories   []string
	Keywords     []string
	Experience   []*market.Experience
	Education    []*market.Education
	Pricing      []*market.Pricing
}

func (in *ProfileInput) apply(p *market.Profile) {
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.ContactEmail = in.ContactEmail
	p.DateOfBirth = in.DateOfBirth
	p.Address = in.Address
	p.City = in.City
	p.State = in.State
	p.ZipCode = in.ZipCode
	p.ShortDescription = in.ShortDescription
	p.LongDescription = in.LongDescription
}

// SignupInput is the payload of a signup
type SignupInput struct {
	Email        string
	Password     string
	Profile      ProfileInput
	ProfileImage *filestore.Upload
}

// UpdateProfileInput is the payload of a profile update. A zero Version
// skips the client side version check.
type UpdateProfileInput struct {
	Email        string
	Version      int64
	Profile      ProfileInput
	ProfileImage *filestore.Upload
}

// Interests groups the interests of an account by kind
type Interests struct {
	Categories []*market.Tag `json:"categories"`
	Keywords   []*market.Tag `json:"keywords"`
}

// AccountView is an account with everything attached to it
type AccountView struct {
	*market.Account
	Profile      *market.Profile      `json:"profile"`
	Availability *market.Availability `json:"availability"`
	Interests    Interests            `json:"interests"`
	Experience   []*market.Experience `json:"experience"`
	Education    []*market.Education  `json:"education"`
	Pricing      []*market.Pricing    `json:"pricing"`
}

// AccountQuery filters account listings
type AccountQuery struct {
	IsActive  *bool
	IsPremium *bool
	Page      int
	Limit     int
}

// AccountPage is one page of accounts
type AccountPage struct {
	Page
	Users []*AccountView `json:"users"`
}

// AccountService implements signup, authentication and profile management
type AccountService struct {
	repo     market.Repository
	runner   Runner
	hasher   *auth.PasswordHasher
	tokens   *auth.JWTManager
	denylist *auth.Denylist
	mailer   Mailer
	config   Config
	logger   log.Logger
	now      func() time.Time
}

// NewAccountService creates a new account service
func NewAccountService(
	repo market.Repository,
	runner Runner,
	hasher *auth.PasswordHasher,
	tokens *auth.JWTManager,
	denylist *auth.Denylist,
	mailer Mailer,
	config Config,
	logger log.Logger,
) *AccountService {
	if logger == nil {
		logger = log.NewNop()
	}
	return &AccountService{
		repo:     repo,
		runner:   runner,
		hasher:   hasher,
		tokens:   tokens,
		denylist: denylist,
		mailer:   mailer,
		config:   config,
		logger:   logger.With(log.Component("account_service")),
		now:      time.Now,
	}
}

// Signup creates an unactivated account with its profile and emails the
// activation link once everything is committed
func (s *AccountService) Signup(ctx context.Context, in *SignupInput) (*market.Account, *coordinator.Result, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, nil, market.NewValidationError("CREDENTIALS_REQUIRED", "email and password are required")
	}

	image, err := prepare(filestore.KindImage, in.ProfileImage, s.config.Media)
	if err != nil {
		return nil, nil, err
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, nil, market.NewInternalError("HASH_FAILED", "failed to hash password", err)
	}
	token, err := auth.ActivationToken()
	if err != nil {
		return nil, nil, market.NewInternalError("TOKEN_FAILED", "failed to generate activation token", err)
	}

	account := &market.Account{
		Email:           email,
		PasswordHash:    hash,
		ActivationToken: &token,
		Role:            market.RoleUser,
	}

	result, err := s.runner.Run(ctx, "signup", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		if err := tx.Accounts().Create(ctx, account); err != nil {
			return err
		}

		profile := &market.Profile{AccountID: account.ID}
		in.Profile.apply(profile)
		if image != nil {
			path, err := u.Stage(filestore.CategoryProfileImages, image)
			if err != nil {
				return err
			}
			profile.ProfileImage = &path
		}
		if err := tx.Profiles().Create(ctx, profile); err != nil {
			return err
		}
		if err := writeProfileCollections(ctx, tx, account.ID, &in.Profile); err != nil {
			return err
		}

		u.AfterCommit(func(ctx context.Context) {
			if err := s.mailer.SendActivation(ctx, email, token); err != nil {
				s.logger.WithContext(ctx).Warn("Failed to send activation email",
					log.String(log.FieldEmail, email), log.Error(err))
			}
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.WithContext(ctx).Info("Account signed up", log.Int64(log.FieldAccountID, account.ID))
	return account, result, nil
}

// Activate activates the account holding token
func (s *AccountService) Activate(ctx context.Context, token string) error {
	account, err := s.repo.Accounts().GetByActivationToken(ctx, token)
	if err != nil {
		if market.IsNotFoundError(err) || market.IsValidationError(err) {
			return market.NewNotFoundError("INVALID_ACTIVATION_TOKEN",
				"your activation link has expired, please request a new one")
		}
		return err
	}

	account.IsActive = true
	account.ActivationToken = nil
	return s.repo.Accounts().Update(ctx, account)
}

// ResendActivation issues and emails a new activation token
func (s *AccountService) ResendActivation(ctx context.Context, email string) error {
	account, err := s.accountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.IsActive {
		return market.NewValidationError("ALREADY_ACTIVATED", "account already activated")
	}

	token, err := auth.ActivationToken()
	if err != nil {
		return market.NewInternalError("TOKEN_FAILED", "failed to generate activation token", err)
	}
	account.ActivationToken = &token
	if err := s.repo.Accounts().Update(ctx, account); err != nil {
		return err
	}

	if err := s.mailer.SendActivation(ctx, account.Email, token); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to send activation email",
			log.String(log.FieldEmail, account.Email), log.Error(err))
	}
	return nil
}

// Login verifies the credentials of an active account and issues tokens
func (s *AccountService) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	if normalizeEmail(email) == "" || password == "" {
		return nil, market.NewValidationError("CREDENTIALS_REQUIRED", "email and password are required")
	}

	account, err := s.repo.Accounts().GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if market.IsNotFoundError(err) {
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !account.IsActive {
		return nil, market.NewPermissionError("ACCOUNT_NOT_ACTIVATED", "account not activated")
	}
	if err := s.hasher.VerifyPassword(password, account.PasswordHash); err != nil {
		return nil, invalidCredentials()
	}

	pair, err := s.tokens.IssuePair(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, market.NewInternalError("TOKEN_FAILED", "failed to issue tokens", err)
	}
	return pair, nil
}

// Refresh exchanges a valid, non revoked refresh token for an access token
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.refreshClaims(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssueAccess(claims.AccountID, claims.Email, claims.Role)
	if err != nil {
		return nil, market.NewInternalError("TOKEN_FAILED", "failed to issue tokens", err)
	}
	return pair, nil
}

// Logout revokes a refresh token until it would have expired
func (s *AccountService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.refreshClaims(ctx, refreshToken)
	if err != nil {
		return err
	}
	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return market.NewStorageError("REVOKE_FAILED", "failed to revoke token", err)
	}
	return nil
}

func (s *AccountService) refreshClaims(ctx context.Context, refreshToken string) (*auth.Claims, error) {
	if refreshToken == "" {
		return nil, market.NewValidationError("REFRESH_TOKEN_REQUIRED", "refresh token required")
	}
	claims, err := s.tokens.Validate(refreshToken, auth.TokenRefresh)
	if err != nil {
		return nil, market.NewPermissionError("INVALID_REFRESH_TOKEN", "invalid refresh token")
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, market.NewStorageError("DENYLIST_FAILED", "failed to check token", err)
	}
	if revoked {
		return nil, market.NewPermissionError("INVALID_REFRESH_TOKEN", "refresh token has been revoked")
	}
	return claims, nil
}

// ForgotPassword emails a single use password reset token
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.accountByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := auth.ResetToken()
	if err != nil {
		return market.NewInternalError("TOKEN_FAILED", "failed to generate reset token", err)
	}
	expiry := s.now().Add(s.config.ResetTokenTTL)
	account.ResetToken = &token
	account.ResetTokenExpiry = &expiry
	if err := s.repo.Accounts().Update(ctx, account); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, account.Email, token); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to send password reset email",
			log.String(log.FieldEmail, account.Email), log.Error(err))
	}
	return nil
}

// ResetPassword sets a new password using an unexpired reset token
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	if password == "" {
		return market.NewValidationError("PASSWORD_REQUIRED", "new password required")
	}

	account, err := s.repo.Accounts().GetByResetToken(ctx, token, s.now())
	if err != nil {
		if market.IsNotFoundError(err) || market.IsValidationError(err) {
			return market.NewNotFoundError("INVALID_RESET_TOKEN", "invalid or expired token")
		}
		return err
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return market.NewInternalError("HASH_FAILED", "failed to hash password", err)
	}
	account.PasswordHash = hash
	account.ResetToken = nil
	account.ResetTokenExpiry = nil
	return s.repo.Accounts().Update(ctx, account)
}

// Get returns the full view of an account
func (s *AccountService) Get(ctx context.Context, id int64) (*AccountView, error) {
	account, err := s.repo.Accounts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, account)
}

// GetByEmail returns the full view of the account registered with email
func (s *AccountService) GetByEmail(ctx context.Context, email string) (*AccountView, error) {
	account, err := s.accountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, account)
}

// List returns one page of accounts, newest first
func (s *AccountService) List(ctx context.Context, q *AccountQuery) (*AccountPage, error) {
	page, offset, limit := pageBounds(q.Page, q.Limit)
	result, err := s.repo.Accounts().List(ctx, &market.AccountFilter{
		Offset:    offset,
		Limit:     limit,
		IsActive:  q.IsActive,
		IsPremium: q.IsPremium,
	})
	if err != nil {
		return nil, err
	}

	users, err := s.views(ctx, result.Accounts)
	if err != nil {
		return nil, err
	}
	return &AccountPage{Page: newPage(page, limit, result.Total), Users: users}, nil
}

// Premium returns every premium account
func (s *AccountService) Premium(ctx context.Context) ([]*AccountView, error) {
	premium := true
	var accounts []*market.Account
	for offset := 0; ; {
		result, err := s.repo.Accounts().List(ctx, &market.AccountFilter{
			Offset:    offset,
			Limit:     market.MaxPageLimit,
			IsPremium: &premium,
		})
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, result.Accounts...)
		if !result.HasMore {
			break
		}
		offset += len(result.Accounts)
	}
	return s.views(ctx, accounts)
}

// UpdateProfile replaces the profile and its collections of the account
// registered with in.Email. A new profile image supersedes the old one.
func (s *AccountService) UpdateProfile(ctx context.Context, caller *Caller, in *UpdateProfileInput) (*coordinator.Result, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, market.NewValidationError("EMAIL_REQUIRED", "email is required")
	}

	image, err := prepare(filestore.KindImage, in.ProfileImage, s.config.Media)
	if err != nil {
		return nil, err
	}

	return s.runner.Run(ctx, "update_profile", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		account, err := tx.Accounts().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, account.ID); err != nil {
			return err
		}

		profile, err := tx.Profiles().Get(ctx, account.ID)
		if err != nil {
			return err
		}
		if in.Version != 0 && in.Version != profile.Version {
			return market.NewConflictError("VERSION_CONFLICT", "profile was modified concurrently")
		}

		in.Profile.apply(profile)
		if image != nil {
			path, err := u.Stage(filestore.CategoryProfileImages, image)
			if err != nil {
				return err
			}
			if profile.ProfileImage != nil {
				u.Supersede(*profile.ProfileImage)
			}
			profile.ProfileImage = &path
		}
		if err := tx.Profiles().Update(ctx, profile); err != nil {
			return err
		}
		return writeProfileCollections(ctx, tx, account.ID, &in.Profile)
	})
}

// SetPremium changes the premium flag of an account
func (s *AccountService) SetPremium(ctx context.Context, id int64, premium bool) error {
	account, err := s.repo.Accounts().Get(ctx, id)
	if err != nil {
		return err
	}
	account.IsPremium = premium
	return s.repo.Accounts().Update(ctx, account)
}

// SetActive changes the active flag of an account
func (s *AccountService) SetActive(ctx context.Context, id int64, active bool) error {
	account, err := s.repo.Accounts().Get(ctx, id)
	if err != nil {
		return err
	}
	account.IsActive = active
	return s.repo.Accounts().Update(ctx, account)
}

// Delete removes an account with everything that depends on it, then the
// profile image and every portfolio file it owned
func (s *AccountService) Delete(ctx context.Context, caller *Caller, id int64) (*coordinator.Result, error) {
	if err := requireOwner(caller, id); err != nil {
		return nil, err
	}

	return s.runner.Run(ctx, "delete_account", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		if _, err := tx.Accounts().Get(ctx, id); err != nil {
			return err
		}

		profile, err := tx.Profiles().Get(ctx, id)
		switch {
		case err == nil:
			if profile.ProfileImage != nil {
				u.Supersede(*profile.ProfileImage)
			}
		case !market.IsNotFoundError(err):
			return err
		}

		portfolios, err := tx.Portfolios().ListByAccount(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range portfolios {
			u.Supersede(p.FilePaths()...)
		}

		return tx.Accounts().Delete(ctx, id)
	})
}

func (s *AccountService) accountByEmail(ctx context.Context, email string) (*market.Account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, market.NewValidationError("EMAIL_REQUIRED", "email is required")
	}
	account, err := s.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if market.IsNotFoundError(err) {
			return nil, market.NewNotFoundError("ACCOUNT_NOT_FOUND", "user not found")
		}
		return nil, err
	}
	return account, nil
}

func (s *AccountService) views(ctx context.Context, accounts []*market.Account) ([]*AccountView, error) {
	out := make([]*AccountView, 0, len(accounts))
	for _, a := range accounts {
		v, err := s.view(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *AccountService) view(ctx context.Context, account *market.Account) (*AccountView, error) {
	repo := s.repo
	v := &AccountView{Account: account}

	profile, err := repo.Profiles().Get(ctx, account.ID)
	if err != nil && !market.IsNotFoundError(err) {
		return nil, err
	}
	if profile != nil {
		profile.ProfileImage = publicURLPtr(s.config.BaseURL, profile.ProfileImage)
		v.Profile = profile
	}

	availability, err := repo.Profiles().GetAvailability(ctx, account.ID)
	if err != nil && !market.IsNotFoundError(err) {
		return nil, err
	}
	v.Availability = availability

	if v.Interests.Categories, err = repo.Interests(market.InterestCategory).ListForAccount(ctx, account.ID); err != nil {
		return nil, err
	}
	if v.Interests.Keywords, err = repo.Interests(market.InterestKeyword).ListForAccount(ctx, account.ID); err != nil {
		return nil, err
	}
	if v.Experience, err = repo.Profiles().ListExperience(ctx, account.ID); err != nil {
		return nil, err
	}
	if v.Education, err = repo.Profiles().ListEducation(ctx, account.ID); err != nil {
		return nil, err
	}
	if v.Pricing, err = repo.Profiles().ListPricing(ctx, account.ID); err != nil {
		return nil, err
	}
	return v, nil
}

// writeProfileCollections replaces availability, interests and the child
// collections of an account
func writeProfileCollections(ctx context.Context, tx market.Store, accountID int64, in *ProfileInput) error {
	availability := &market.Availability{}
	if in.Availability != nil {
		*availability = *in.Availability
	}
	availability.AccountID = accountID
	if err := tx.Profiles().SetAvailability(ctx, availability); err != nil {
		return err
	}

	interests := map[market.InterestKind][]string{
		market.InterestCategory: in.Categories,
		market.InterestKeyword:  in.Keywords,
	}
	for _, kind := range market.InterestKinds {
		repo := tx.Interests(kind)
		names := dedupe(interests[kind])
		ids := make([]int64, 0, len(names))
		for _, name := range names {
			tag, err := repo.Ensure(ctx, name)
			if err != nil {
				return err
			}
			ids = append(ids, tag.ID)
		}
		if err := repo.ReplaceForAccount(ctx, accountID, ids); err != nil {
			return err
		}
	}

	if err := tx.Profiles().ReplaceExperience(ctx, accountID, in.Experience); err != nil {
		return err
	}
	if err := tx.Profiles().ReplaceEducation(ctx, accountID, in.Education); err != nil {
		return err
	}
	return tx.Profiles().ReplacePricing(ctx, accountID, in.Pricing)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalidCredentials() error {
	return market.NewPermissionError("INVALID_CREDENTIALS", "invalid email or password")
}
