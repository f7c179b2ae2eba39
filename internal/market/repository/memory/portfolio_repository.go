package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/songzhibin97/qwork/pkg/market"
)

// PortfolioRepository implements market.PortfolioRepository for in-memory storage
type PortfolioRepository struct {
	repo *Repository
	tx   *Transaction
}

// NewPortfolioRepository creates a new in-memory portfolio repository
func NewPortfolioRepository(repo *Repository) *PortfolioRepository {
	return &PortfolioRepository{repo: repo}
}

// Create inserts a portfolio row for an existing account
func (pr *PortfolioRepository) Create(ctx context.Context, portfolio *market.Portfolio) error {
	if portfolio == nil || portfolio.Title == "" {
		return market.NewValidationError("INVALID_PORTFOLIO", "portfolio title cannot be empty")
	}

	return pr.repo.update(pr.tx, "Portfolios.Create", func(s *state) error {
		if _, ok := s.accounts[portfolio.AccountID]; !ok {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		now := time.Now()
		portfolio.ID = s.next("portfolios")
		if portfolio.Status == "" {
			portfolio.Status = market.PortfolioStatusPending
		}
		portfolio.Version = 1
		portfolio.CreatedAt = now
		portfolio.UpdatedAt = now
		s.portfolios[portfolio.ID] = copyPortfolioRow(portfolio)
		return nil
	})
}

// Get retrieves a portfolio with its images and keywords
func (pr *PortfolioRepository) Get(ctx context.Context, id int64) (*market.Portfolio, error) {
	var found *market.Portfolio
	err := pr.repo.view(pr.tx, "Portfolios.Get", func(s *state) error {
		p, ok := s.portfolios[id]
		if !ok {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
		}
		found = s.assemble(p)
		return nil
	})
	return found, err
}

// Update overwrites the portfolio columns if its version matches
func (pr *PortfolioRepository) Update(ctx context.Context, portfolio *market.Portfolio) error {
	if portfolio == nil || portfolio.Title == "" {
		return market.NewValidationError("INVALID_PORTFOLIO", "portfolio title cannot be empty")
	}

	return pr.repo.update(pr.tx, "Portfolios.Update", func(s *state) error {
		existing, ok := s.portfolios[portfolio.ID]
		if !ok {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
		}
		if existing.Version != portfolio.Version {
			return market.NewConflictError("VERSION_CONFLICT", "portfolio was modified concurrently")
		}
		portfolio.Version++
		portfolio.UpdatedAt = time.Now()
		row := copyPortfolioRow(portfolio)
		row.AccountID = existing.AccountID
		row.CreatedAt = existing.CreatedAt
		s.portfolios[portfolio.ID] = row
		return nil
	})
}

// SetStatus changes the moderation status of a portfolio
func (pr *PortfolioRepository) SetStatus(ctx context.Context, id int64, status market.PortfolioStatus) error {
	if !status.Valid() {
		return market.NewValidationError("INVALID_STATUS", "unknown portfolio status "+string(status))
	}

	return pr.repo.update(pr.tx, "Portfolios.SetStatus", func(s *state) error {
		p, ok := s.portfolios[id]
		if !ok {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
		}
		p.Status = status
		return nil
	})
}

// ClearVideo detaches the video of a portfolio without touching updated_at
func (pr *PortfolioRepository) ClearVideo(ctx context.Context, id int64) error {
	return pr.repo.update(pr.tx, "Portfolios.ClearVideo", func(s *state) error {
		p, ok := s.portfolios[id]
		if !ok {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
		}
		p.Video = nil
		p.Version++
		return nil
	})
}

// Delete removes a portfolio with its images and keywords
func (pr *PortfolioRepository) Delete(ctx context.Context, id int64) error {
	return pr.repo.update(pr.tx, "Portfolios.Delete", func(s *state) error {
		if _, ok := s.portfolios[id]; !ok {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
		}
		s.deletePortfolio(id)
		return nil
	})
}

// DeleteByAccount removes every portfolio of an account
func (pr *PortfolioRepository) DeleteByAccount(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := pr.repo.update(pr.tx, "Portfolios.DeleteByAccount", func(s *state) error {
		for id, p := range s.portfolios {
			if p.AccountID == accountID {
				s.deletePortfolio(id)
				n++
			}
		}
		return nil
	})
	return n, err
}

// ListByAccount lists the portfolios of an account, most recent first
func (pr *PortfolioRepository) ListByAccount(ctx context.Context, accountID int64) ([]*market.Portfolio, error) {
	out := []*market.Portfolio{}
	err := pr.repo.view(pr.tx, "Portfolios.ListByAccount", func(s *state) error {
		for _, p := range s.portfolios {
			if p.AccountID == accountID {
				out = append(out, s.assemble(p))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

// List retrieves portfolios matching the filter, premium owners first
func (pr *PortfolioRepository) List(ctx context.Context, filter *market.PortfolioFilter) (*market.PaginatedPortfolios, error) {
	if filter == nil {
		filter = &market.PortfolioFilter{}
	}
	offset, limit := market.NormalizePage(filter.Offset, filter.Limit)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	var matched []*market.Portfolio
	err := pr.repo.view(pr.tx, "Portfolios.List", func(s *state) error {
		for _, p := range s.portfolios {
			if filter.Status != nil && p.Status != *filter.Status {
				continue
			}
			full := s.assemble(p)
			if filter.IsPremium != nil && full.OwnerPremium != *filter.IsPremium {
				continue
			}
			if search != "" && !matchesSearch(full, search) {
				continue
			}
			matched = append(matched, full)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].OwnerPremium != matched[j].OwnerPremium {
			return matched[i].OwnerPremium
		}
		return newer(matched[i], matched[j])
	})

	total := int64(len(matched))
	page := []*market.Portfolio{}
	if offset < len(matched) {
		end := offset + limit
		if end > len(matched) {
			end = len(matched)
		}
		page = matched[offset:end]
	}

	return &market.PaginatedPortfolios{
		Portfolios: page,
		Total:      total,
		Offset:     offset,
		Limit:      limit,
		HasMore:    int64(offset+len(page)) < total,
	}, nil
}

// AddImages appends image rows to a portfolio
func (pr *PortfolioRepository) AddImages(ctx context.Context, portfolioID int64, paths []string) ([]*market.PortfolioImage, error) {
	var added []*market.PortfolioImage
	err := pr.repo.update(pr.tx, "Portfolios.AddImages", func(s *state) error {
		if _, ok := s.portfolios[portfolioID]; !ok {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
		}
		added = s.insertImages(portfolioID, paths)
		return nil
	})
	return added, err
}

// ReplaceImages deletes every image row of a portfolio and inserts new ones
func (pr *PortfolioRepository) ReplaceImages(ctx context.Context, portfolioID int64, paths []string) ([]*market.PortfolioImage, error) {
	var added []*market.PortfolioImage
	err := pr.repo.update(pr.tx, "Portfolios.ReplaceImages", func(s *state) error {
		if _, ok := s.portfolios[portfolioID]; !ok {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
		}
		for id, img := range s.images {
			if img.PortfolioID == portfolioID {
				delete(s.images, id)
			}
		}
		added = s.insertImages(portfolioID, paths)
		return nil
	})
	return added, err
}

// GetImage retrieves an image row by ID
func (pr *PortfolioRepository) GetImage(ctx context.Context, imageID int64) (*market.PortfolioImage, error) {
	var found *market.PortfolioImage
	err := pr.repo.view(pr.tx, "Portfolios.GetImage", func(s *state) error {
		img, ok := s.images[imageID]
		if !ok {
			return market.NewNotFoundError("IMAGE_NOT_FOUND", "portfolio image not found")
		}
		cp := *img
		found = &cp
		return nil
	})
	return found, err
}

// DeleteImage removes an image row
func (pr *PortfolioRepository) DeleteImage(ctx context.Context, imageID int64) error {
	return pr.repo.update(pr.tx, "Portfolios.DeleteImage", func(s *state) error {
		if _, ok := s.images[imageID]; !ok {
			return market.NewNotFoundError("IMAGE_NOT_FOUND", "portfolio image not found")
		}
		delete(s.images, imageID)
		return nil
	})
}

// CountImages returns the number of images of a portfolio
func (pr *PortfolioRepository) CountImages(ctx context.Context, portfolioID int64) (int, error) {
	n := 0
	err := pr.repo.view(pr.tx, "Portfolios.CountImages", func(s *state) error {
		for _, img := range s.images {
			if img.PortfolioID == portfolioID {
				n++
			}
		}
		return nil
	})
	return n, err
}

// AddKeywords inserts keywords the portfolio does not carry yet
func (pr *PortfolioRepository) AddKeywords(ctx context.Context, portfolioID int64, keywords []string) ([]*market.PortfolioKeyword, []string, error) {
	added := []*market.PortfolioKeyword{}
	skipped := []string{}
	err := pr.repo.update(pr.tx, "Portfolios.AddKeywords", func(s *state) error {
		if _, ok := s.portfolios[portfolioID]; !ok {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
		}
		have := make(map[string]bool)
		for _, kw := range s.keywords {
			if kw.PortfolioID == portfolioID {
				have[kw.Keyword] = true
			}
		}
		for _, k := range keywords {
			if k == "" {
				continue
			}
			if have[k] {
				skipped = append(skipped, k)
				continue
			}
			have[k] = true
			kw := &market.PortfolioKeyword{ID: s.next("portfolio_keywords"), PortfolioID: portfolioID, Keyword: k}
			s.keywords[kw.ID] = kw
			cp := *kw
			added = append(added, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return added, skipped, nil
}

// ReplaceKeywords deletes every keyword of a portfolio and inserts new ones
func (pr *PortfolioRepository) ReplaceKeywords(ctx context.Context, portfolioID int64, keywords []string) error {
	return pr.repo.update(pr.tx, "Portfolios.ReplaceKeywords", func(s *state) error {
		if _, ok := s.portfolios[portfolioID]; !ok {
			return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
		}
		for id, kw := range s.keywords {
			if kw.PortfolioID == portfolioID {
				delete(s.keywords, id)
			}
		}
		seen := make(map[string]bool)
		for _, k := range keywords {
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			kw := &market.PortfolioKeyword{ID: s.next("portfolio_keywords"), PortfolioID: portfolioID, Keyword: k}
			s.keywords[kw.ID] = kw
		}
		return nil
	})
}

// GetKeyword retrieves a keyword row by ID
func (pr *PortfolioRepository) GetKeyword(ctx context.Context, keywordID int64) (*market.PortfolioKeyword, error) {
	var found *market.PortfolioKeyword
	err := pr.repo.view(pr.tx, "Portfolios.GetKeyword", func(s *state) error {
		kw, ok := s.keywords[keywordID]
		if !ok {
			return market.NewNotFoundError("KEYWORD_NOT_FOUND", "portfolio keyword not found")
		}
		cp := *kw
		found = &cp
		return nil
	})
	return found, err
}

// DeleteKeyword removes a keyword row
func (pr *PortfolioRepository) DeleteKeyword(ctx context.Context, keywordID int64) error {
	return pr.repo.update(pr.tx, "Portfolios.DeleteKeyword", func(s *state) error {
		if _, ok := s.keywords[keywordID]; !ok {
			return market.NewNotFoundError("KEYWORD_NOT_FOUND", "portfolio keyword not found")
		}
		delete(s.keywords, keywordID)
		return nil
	})
}

func (s *state) insertImages(portfolioID int64, paths []string) []*market.PortfolioImage {
	added := make([]*market.PortfolioImage, 0, len(paths))
	now := time.Now()
	for _, p := range paths {
		img := &market.PortfolioImage{ID: s.next("portfolio_images"), PortfolioID: portfolioID, Path: p, CreatedAt: now}
		s.images[img.ID] = img
		cp := *img
		added = append(added, &cp)
	}
	return added
}

// assemble copies a portfolio row together with its children
func (s *state) assemble(p *market.Portfolio) *market.Portfolio {
	out := copyPortfolioRow(p)
	if owner, ok := s.accounts[p.AccountID]; ok {
		out.OwnerPremium = owner.IsPremium
	}
	out.Images = []*market.PortfolioImage{}
	for _, img := range s.images {
		if img.PortfolioID == p.ID {
			cp := *img
			out.Images = append(out.Images, &cp)
		}
	}
	sort.Slice(out.Images, func(i, j int) bool { return out.Images[i].ID < out.Images[j].ID })
	out.Keywords = []*market.PortfolioKeyword{}
	for _, kw := range s.keywords {
		if kw.PortfolioID == p.ID {
			cp := *kw
			out.Keywords = append(out.Keywords, &cp)
		}
	}
	sort.Slice(out.Keywords, func(i, j int) bool { return out.Keywords[i].ID < out.Keywords[j].ID })
	return out
}

func matchesSearch(p *market.Portfolio, search string) bool {
	if strings.Contains(strings.ToLower(p.Title), search) {
		return true
	}
	for _, kw := range p.Keywords {
		if strings.Contains(strings.ToLower(kw.Keyword), search) {
			return true
		}
	}
	return false
}

func newer(a, b *market.Portfolio) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}
