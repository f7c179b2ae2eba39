package service

import (
	"context"
	"fmt"
	"time"

	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/internal/market/coordinator"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// AddPortfolioInput is the payload of a new portfolio
type AddPortfolioInput struct {
	AccountID   int64
	Title       string
	Description string
	Keywords    []string
	Images      []*filestore.Upload
	Video       *filestore.Upload
	Document    *filestore.Upload
}

// UpdatePortfolioInput is the payload of a portfolio update.
// Absent uploads keep the stored files. Images are appended unless
// ReplaceImages is set and images were uploaded, in which case they replace
// every stored image.
// A nil Keywords keeps the stored keywords.
type UpdatePortfolioInput struct {
	PortfolioID   int64
	Version       int64
	Title         string
	Description   string
	Keywords      []string
	Images        []*filestore.Upload
	ReplaceImages bool
	Video         *filestore.Upload
	Document      *filestore.Upload
}

// PortfolioQuery filters portfolio listings
type PortfolioQuery struct {
	IsPremium *bool
	Search    string
	Status    *market.PortfolioStatus
	Page      int
	Limit     int
}

// PortfolioPage is one page of portfolios
type PortfolioPage struct {
	Pagination Page                `json:"pagination"`
	Data       []*market.Portfolio `json:"data"`
}

// KeywordResult reports which keywords were added to a portfolio
type KeywordResult struct {
	Added   []*market.PortfolioKeyword `json:"added"`
	Skipped []string                   `json:"skipped"`
}

// PortfolioService implements portfolio publishing and moderation
type PortfolioService struct {
	repo   market.Repository
	runner Runner
	mailer Mailer
	config Config
	logger log.Logger
	now    func() time.Time
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(repo market.Repository, runner Runner, mailer Mailer, config Config, logger log.Logger) *PortfolioService {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PortfolioService{
		repo:   repo,
		runner: runner,
		mailer: mailer,
		config: config,
		logger: logger.With(log.Component("portfolio_service")),
		now:    time.Now,
	}
}

// Add publishes a new pending portfolio with its media and keywords
func (s *PortfolioService) Add(ctx context.Context, caller *Caller, in *AddPortfolioInput) (*market.Portfolio, *coordinator.Result, error) {
	if in.AccountID <= 0 || in.Title == "" {
		return nil, nil, market.NewValidationError("PORTFOLIO_FIELDS_REQUIRED", "user ID and title are required")
	}
	if err := requireOwner(caller, in.AccountID); err != nil {
		return nil, nil, err
	}
	if s.config.RequireDocument && in.Document == nil {
		return nil, nil, market.NewValidationError("DOCUMENT_REQUIRED", "a supporting document is required")
	}
	if len(in.Images) > market.MaxPortfolioImages {
		return nil, nil, tooManyImages()
	}

	video, err := prepare(filestore.KindVideo, in.Video, s.config.Media)
	if err != nil {
		return nil, nil, err
	}
	document, err := prepare(filestore.KindDocument, in.Document, s.config.Media)
	if err != nil {
		return nil, nil, err
	}
	images, err := prepareAll(filestore.KindImage, in.Images, s.config.Media)
	if err != nil {
		return nil, nil, err
	}

	var created *market.Portfolio
	result, err := s.runner.Run(ctx, "add_portfolio", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		if _, err := tx.Accounts().Get(ctx, in.AccountID); err != nil {
			return err
		}

		p := &market.Portfolio{
			AccountID:   in.AccountID,
			Title:       in.Title,
			Description: in.Description,
			Status:      market.PortfolioStatusPending,
		}
		if p.Video, err = stageOptional(u, filestore.CategoryPortfolioVideos, video); err != nil {
			return err
		}
		if p.Document, err = stageOptional(u, filestore.CategoryPortfolioDocuments, document); err != nil {
			return err
		}
		if err := tx.Portfolios().Create(ctx, p); err != nil {
			return err
		}

		paths, err := stageAll(u, filestore.CategoryPortfolioImages, images)
		if err != nil {
			return err
		}
		if len(paths) > 0 {
			if _, err := tx.Portfolios().AddImages(ctx, p.ID, paths); err != nil {
				return err
			}
		}
		if keywords := dedupe(in.Keywords); len(keywords) > 0 {
			if _, _, err := tx.Portfolios().AddKeywords(ctx, p.ID, keywords); err != nil {
				return err
			}
		}

		created, err = tx.Portfolios().Get(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return s.present(created), result, nil
}

// Update edits a portfolio and sends it back to moderation. Approved
// portfolios are locked until the cooldown since their last update passed.
func (s *PortfolioService) Update(ctx context.Context, caller *Caller, in *UpdatePortfolioInput) (*market.Portfolio, *coordinator.Result, error) {
	if in.PortfolioID <= 0 || in.Title == "" {
		return nil, nil, market.NewValidationError("PORTFOLIO_FIELDS_REQUIRED", "portfolio ID and title are required")
	}
	if len(in.Images) > market.MaxPortfolioImages {
		return nil, nil, tooManyImages()
	}

	video, err := prepare(filestore.KindVideo, in.Video, s.config.Media)
	if err != nil {
		return nil, nil, err
	}
	document, err := prepare(filestore.KindDocument, in.Document, s.config.Media)
	if err != nil {
		return nil, nil, err
	}
	images, err := prepareAll(filestore.KindImage, in.Images, s.config.Media)
	if err != nil {
		return nil, nil, err
	}

	var updated *market.Portfolio
	result, err := s.runner.Run(ctx, "update_portfolio", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		p, err := tx.Portfolios().Get(ctx, in.PortfolioID)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, p.AccountID); err != nil {
			return err
		}
		if err := s.checkCooldown(p); err != nil {
			return err
		}
		if in.Version != 0 && in.Version != p.Version {
			return market.NewConflictError("VERSION_CONFLICT", "portfolio was modified concurrently")
		}
		if !in.ReplaceImages && len(p.Images)+len(images) > market.MaxPortfolioImages {
			return tooManyImages()
		}

		p.Title = in.Title
		p.Description = in.Description
		p.Status = market.PortfolioStatusPending

		if video != nil {
			old := p.Video
			if p.Video, err = stageOptional(u, filestore.CategoryPortfolioVideos, video); err != nil {
				return err
			}
			supersedeOptional(u, old)
		}
		if document != nil {
			old := p.Document
			if p.Document, err = stageOptional(u, filestore.CategoryPortfolioDocuments, document); err != nil {
				return err
			}
			supersedeOptional(u, old)
		}
		if err := tx.Portfolios().Update(ctx, p); err != nil {
			return err
		}

		paths, err := stageAll(u, filestore.CategoryPortfolioImages, images)
		if err != nil {
			return err
		}
		switch {
		case in.ReplaceImages && len(paths) > 0:
			for _, img := range p.Images {
				u.Supersede(img.Path)
			}
			if _, err := tx.Portfolios().ReplaceImages(ctx, p.ID, paths); err != nil {
				return err
			}
		case len(paths) > 0:
			if _, err := tx.Portfolios().AddImages(ctx, p.ID, paths); err != nil {
				return err
			}
		}

		if in.Keywords != nil {
			if err := tx.Portfolios().ReplaceKeywords(ctx, p.ID, dedupe(in.Keywords)); err != nil {
				return err
			}
		}

		updated, err = tx.Portfolios().Get(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return s.present(updated), result, nil
}

func (s *PortfolioService) checkCooldown(p *market.Portfolio) error {
	if p.Status != market.PortfolioStatusApproved || s.config.Cooldown <= 0 {
		return nil
	}
	if elapsed := s.now().Sub(p.UpdatedAt); elapsed < s.config.Cooldown {
		remaining := (s.config.Cooldown - elapsed).Round(time.Minute)
		return market.NewConflictError("COOLDOWN_ACTIVE",
			"approved portfolios cannot be edited yet").WithDetails(fmt.Sprintf("retry in %s", remaining))
	}
	return nil
}

// Get returns one portfolio
func (s *PortfolioService) Get(ctx context.Context, id int64) (*market.Portfolio, error) {
	p, err := s.repo.Portfolios().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.present(p), nil
}

// ListByAccount returns every portfolio of an account
func (s *PortfolioService) ListByAccount(ctx context.Context, accountID int64) ([]*market.Portfolio, error) {
	portfolios, err := s.repo.Portfolios().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.presentAll(portfolios), nil
}

// ListPublic returns approved portfolios, premium owners first
func (s *PortfolioService) ListPublic(ctx context.Context, q *PortfolioQuery) (*PortfolioPage, error) {
	approved := market.PortfolioStatusApproved
	return s.list(ctx, &PortfolioQuery{
		IsPremium: q.IsPremium,
		Search:    q.Search,
		Status:    &approved,
		Page:      q.Page,
		Limit:     q.Limit,
	})
}

// ListForModeration returns portfolios in any status, optionally filtered
func (s *PortfolioService) ListForModeration(ctx context.Context, q *PortfolioQuery) (*PortfolioPage, error) {
	if q.Status != nil && !q.Status.Valid() {
		return nil, market.NewValidationError("INVALID_STATUS", "unknown portfolio status "+string(*q.Status))
	}
	return s.list(ctx, q)
}

func (s *PortfolioService) list(ctx context.Context, q *PortfolioQuery) (*PortfolioPage, error) {
	page, offset, limit := pageBounds(q.Page, q.Limit)
	result, err := s.repo.Portfolios().List(ctx, &market.PortfolioFilter{
		Offset:    offset,
		Limit:     limit,
		Status:    q.Status,
		IsPremium: q.IsPremium,
		Search:    q.Search,
	})
	if err != nil {
		return nil, err
	}
	return &PortfolioPage{
		Pagination: newPage(page, limit, result.Total),
		Data:       s.presentAll(result.Portfolios),
	}, nil
}

// Delete removes a portfolio, then its video, document and images
func (s *PortfolioService) Delete(ctx context.Context, caller *Caller, id int64) (*coordinator.Result, error) {
	return s.runner.Run(ctx, "delete_portfolio", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		p, err := tx.Portfolios().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, p.AccountID); err != nil {
			return err
		}
		u.Supersede(p.FilePaths()...)
		return tx.Portfolios().Delete(ctx, id)
	})
}

// DeleteByAccount removes every portfolio of an account with their files
func (s *PortfolioService) DeleteByAccount(ctx context.Context, caller *Caller, accountID int64) (int64, *coordinator.Result, error) {
	if err := requireOwner(caller, accountID); err != nil {
		return 0, nil, err
	}

	var deleted int64
	result, err := s.runner.Run(ctx, "delete_account_portfolios", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		portfolios, err := tx.Portfolios().ListByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if len(portfolios) == 0 {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "no portfolios found for this user")
		}
		for _, p := range portfolios {
			u.Supersede(p.FilePaths()...)
		}
		deleted, err = tx.Portfolios().DeleteByAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return deleted, result, nil
}

// DeleteVideo detaches the video of a portfolio and deletes its file.
// The moderation status and the cooldown clock are kept.
func (s *PortfolioService) DeleteVideo(ctx context.Context, caller *Caller, id int64) (*coordinator.Result, error) {
	return s.runner.Run(ctx, "delete_portfolio_video", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		p, err := tx.Portfolios().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, p.AccountID); err != nil {
			return err
		}
		if p.Video == nil || *p.Video == "" {
			return market.NewNotFoundError("VIDEO_NOT_FOUND", "portfolio has no video")
		}
		u.Supersede(*p.Video)
		return tx.Portfolios().ClearVideo(ctx, id)
	})
}

// AddImages appends images to a portfolio up to the per-portfolio limit
func (s *PortfolioService) AddImages(ctx context.Context, caller *Caller, portfolioID int64, uploads []*filestore.Upload) ([]*market.PortfolioImage, error) {
	if len(uploads) == 0 {
		return nil, market.NewValidationError("IMAGES_REQUIRED", "at least one image is required")
	}
	if len(uploads) > market.MaxPortfolioImages {
		return nil, tooManyImages()
	}
	images, err := prepareAll(filestore.KindImage, uploads, s.config.Media)
	if err != nil {
		return nil, err
	}

	var added []*market.PortfolioImage
	_, err = s.runner.Run(ctx, "add_portfolio_images", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		p, err := tx.Portfolios().Get(ctx, portfolioID)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, p.AccountID); err != nil {
			return err
		}
		count, err := tx.Portfolios().CountImages(ctx, portfolioID)
		if err != nil {
			return err
		}
		if count+len(images) > market.MaxPortfolioImages {
			return tooManyImages()
		}

		paths, err := stageAll(u, filestore.CategoryPortfolioImages, images)
		if err != nil {
			return err
		}
		added, err = tx.Portfolios().AddImages(ctx, portfolioID, paths)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.presentImages(added), nil
}

// DeleteImage removes one portfolio image and its file
func (s *PortfolioService) DeleteImage(ctx context.Context, caller *Caller, imageID int64) (*coordinator.Result, error) {
	return s.runner.Run(ctx, "delete_portfolio_image", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		img, err := tx.Portfolios().GetImage(ctx, imageID)
		if err != nil {
			return err
		}
		p, err := tx.Portfolios().Get(ctx, img.PortfolioID)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, p.AccountID); err != nil {
			return err
		}
		u.Supersede(img.Path)
		return tx.Portfolios().DeleteImage(ctx, imageID)
	})
}

// AddKeywords attaches keywords the portfolio does not have yet
func (s *PortfolioService) AddKeywords(ctx context.Context, caller *Caller, portfolioID int64, keywords []string) (*KeywordResult, error) {
	keywords = dedupe(keywords)
	if portfolioID <= 0 || len(keywords) == 0 {
		return nil, market.NewValidationError("KEYWORDS_REQUIRED", "portfolio ID and keywords are required")
	}

	result := &KeywordResult{}
	_, err := s.runner.Run(ctx, "add_portfolio_keywords", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		p, err := tx.Portfolios().Get(ctx, portfolioID)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, p.AccountID); err != nil {
			return err
		}
		result.Added, result.Skipped, err = tx.Portfolios().AddKeywords(ctx, portfolioID, keywords)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Skipped == nil {
		result.Skipped = []string{}
	}
	return result, nil
}

// DeleteKeyword removes one portfolio keyword
func (s *PortfolioService) DeleteKeyword(ctx context.Context, caller *Caller, keywordID int64) error {
	_, err := s.runner.Run(ctx, "delete_portfolio_keyword", func(ctx context.Context, u *coordinator.Unit) error {
		tx := u.Tx()
		kw, err := tx.Portfolios().GetKeyword(ctx, keywordID)
		if err != nil {
			return err
		}
		p, err := tx.Portfolios().Get(ctx, kw.PortfolioID)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, p.AccountID); err != nil {
			return err
		}
		return tx.Portfolios().DeleteKeyword(ctx, keywordID)
	})
	return err
}

// SetStatus changes the moderation status of a portfolio and notifies
// its owner
func (s *PortfolioService) SetStatus(ctx context.Context, id int64, status market.PortfolioStatus) (*market.Portfolio, error) {
	if !status.Valid() {
		return nil, market.NewValidationError("INVALID_STATUS", "unknown portfolio status "+string(status))
	}
	if err := s.repo.Portfolios().SetStatus(ctx, id, status); err != nil {
		return nil, err
	}

	p, err := s.repo.Portfolios().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithContext(ctx).With(log.Int64(log.FieldPortfolioID, id))
	logger.Info("Portfolio status changed", log.String("status", string(status)))

	owner, err := s.repo.Accounts().Get(ctx, p.AccountID)
	if err != nil {
		logger.Warn("Failed to load portfolio owner for notification", log.Error(err))
	} else if err := s.mailer.SendPortfolioStatus(ctx, owner.Email, p.Title, status); err != nil {
		logger.Warn("Failed to send portfolio status email", log.Error(err))
	}
	return s.present(p), nil
}

// present rewrites stored paths into public URLs
func (s *PortfolioService) present(p *market.Portfolio) *market.Portfolio {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Video = publicURLPtr(s.config.BaseURL, p.Video)
	cp.Document = publicURLPtr(s.config.BaseURL, p.Document)
	cp.Images = s.presentImages(p.Images)
	if cp.Keywords == nil {
		cp.Keywords = []*market.PortfolioKeyword{}
	}
	return &cp
}

func (s *PortfolioService) presentAll(portfolios []*market.Portfolio) []*market.Portfolio {
	out := make([]*market.Portfolio, 0, len(portfolios))
	for _, p := range portfolios {
		out = append(out, s.present(p))
	}
	return out
}

func (s *PortfolioService) presentImages(images []*market.PortfolioImage) []*market.PortfolioImage {
	out := make([]*market.PortfolioImage, 0, len(images))
	for _, img := range images {
		cp := *img
		cp.Path = publicURL(s.config.BaseURL, img.Path)
		out = append(out, &cp)
	}
	return out
}

func stageOptional(u *coordinator.Unit, category filestore.Category, file *filestore.Prepared) (*string, error) {
	if file == nil {
		return nil, nil
	}
	path, err := u.Stage(category, file)
	if err != nil {
		return nil, err
	}
	return &path, nil
}

func stageAll(u *coordinator.Unit, category filestore.Category, files []*filestore.Prepared) ([]string, error) {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := u.Stage(category, f)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func supersedeOptional(u *coordinator.Unit, path *string) {
	if path != nil {
		u.Supersede(*path)
	}
}

func tooManyImages() error {
	return market.NewValidationError("TOO_MANY_IMAGES",
		fmt.Sprintf("a portfolio can hold at most %d images", market.MaxPortfolioImages))
}
