package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/songzhibin97/qwork/pkg/market"
)

// PortfolioRepository implements market.PortfolioRepository using PostgreSQL
type PortfolioRepository struct {
	q querier
}

// NewPortfolioRepository creates a new PostgreSQL portfolio repository
func NewPortfolioRepository(repo *Repository) *PortfolioRepository {
	return &PortfolioRepository{q: repo}
}

const portfolioColumns = `p.id, p.user_id, p.title, p.description, p.video, p.document, p.status,
		p.version, u.is_premium, p.created_at, p.updated_at`

// Create inserts a portfolio row for an existing account
func (pr *PortfolioRepository) Create(ctx context.Context, p *market.Portfolio) error {
	if p == nil || p.Title == "" {
		return market.NewValidationError("INVALID_PORTFOLIO", "portfolio title cannot be empty")
	}
	if p.Status == "" {
		p.Status = market.PortfolioStatusPending
	}

	query := `
		INSERT INTO portfolios (user_id, title, description, video, document, status, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		RETURNING id, version, created_at, updated_at`

	err := pr.q.execQueryRow(ctx, query, p.AccountID, p.Title, p.Description, p.Video, p.Document, p.Status).
		Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		return market.NewStorageError("INSERT_FAILED", "failed to insert portfolio", err)
	}
	return nil
}

// Get retrieves a portfolio with its images and keywords
func (pr *PortfolioRepository) Get(ctx context.Context, id int64) (*market.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + `
		FROM portfolios p JOIN users u ON u.id = p.user_id
		WHERE p.id = $1`

	p, err := scanPortfolio(pr.q.execQueryRow(ctx, query, id))
	if err != nil {
		return nil, scanError(err, "PORTFOLIO_NOT_FOUND", "portfolio not found")
	}
	if err := pr.loadChildren(ctx, []*market.Portfolio{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// Update overwrites the portfolio columns if its version matches
func (pr *PortfolioRepository) Update(ctx context.Context, p *market.Portfolio) error {
	if p == nil || p.Title == "" {
		return market.NewValidationError("INVALID_PORTFOLIO", "portfolio title cannot be empty")
	}

	query := `
		UPDATE portfolios
		SET title = $3, description = $4, video = $5, document = $6, status = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`

	err := pr.q.execQueryRow(ctx, query, p.ID, p.Version, p.Title, p.Description, p.Video, p.Document, p.Status).
		Scan(&p.Version, &p.UpdatedAt)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return market.NewStorageError("UPDATE_FAILED", "failed to update portfolio", err)
	}

	var exists bool
	if err := pr.q.execQueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM portfolios WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return market.NewStorageError("QUERY_FAILED", "failed to check portfolio", err)
	}
	if !exists {
		return market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
	}
	return market.NewConflictError("VERSION_CONFLICT", "portfolio was modified concurrently")
}

// SetStatus changes the moderation status of a portfolio
func (pr *PortfolioRepository) SetStatus(ctx context.Context, id int64, status market.PortfolioStatus) error {
	if !status.Valid() {
		return market.NewValidationError("INVALID_STATUS", "unknown portfolio status "+string(status))
	}
	result, err := pr.q.execCommand(ctx, `UPDATE portfolios SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	return affected(result, "PORTFOLIO_NOT_FOUND", "portfolio not found")
}

// ClearVideo detaches the video of a portfolio without touching updated_at
func (pr *PortfolioRepository) ClearVideo(ctx context.Context, id int64) error {
	result, err := pr.q.execCommand(ctx, `UPDATE portfolios SET video = NULL, version = version + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(result, "PORTFOLIO_NOT_FOUND", "portfolio not found")
}

// Delete removes a portfolio; images and keywords cascade
func (pr *PortfolioRepository) Delete(ctx context.Context, id int64) error {
	result, err := pr.q.execCommand(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(result, "PORTFOLIO_NOT_FOUND", "portfolio not found")
}

// DeleteByAccount removes every portfolio of an account
func (pr *PortfolioRepository) DeleteByAccount(ctx context.Context, accountID int64) (int64, error) {
	result, err := pr.q.execCommand(ctx, `DELETE FROM portfolios WHERE user_id = $1`, accountID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, market.NewStorageError("ROWS_AFFECTED_FAILED", "failed to read affected rows", err)
	}
	return n, nil
}

// ListByAccount lists the portfolios of an account, most recent first
func (pr *PortfolioRepository) ListByAccount(ctx context.Context, accountID int64) ([]*market.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + `
		FROM portfolios p JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
		ORDER BY p.updated_at DESC, p.id DESC`

	return pr.query(ctx, query, accountID)
}

// List retrieves portfolios matching the filter, premium owners first
func (pr *PortfolioRepository) List(ctx context.Context, filter *market.PortfolioFilter) (*market.PaginatedPortfolios, error) {
	if filter == nil {
		filter = &market.PortfolioFilter{}
	}
	offset, limit := market.NormalizePage(filter.Offset, filter.Limit)

	var conditions []string
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if filter.IsPremium != nil {
		args = append(args, *filter.IsPremium)
		conditions = append(conditions, fmt.Sprintf("u.is_premium = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(p.title ILIKE $%d OR EXISTS (SELECT 1 FROM portfolio_keywords pk WHERE pk.portfolio_id = p.id AND pk.keyword ILIKE $%d))", n, n))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	from := ` FROM portfolios p JOIN users u ON u.id = p.user_id`
	var total int64
	if err := pr.q.execQueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, market.NewStorageError("COUNT_FAILED", "failed to count portfolios", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY u.is_premium DESC, p.updated_at DESC, p.id DESC LIMIT $%d OFFSET $%d`,
		portfolioColumns, from, where, len(args)-1, len(args))
	portfolios, err := pr.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &market.PaginatedPortfolios{
		Portfolios: portfolios,
		Total:      total,
		Offset:     offset,
		Limit:      limit,
		HasMore:    int64(offset+len(portfolios)) < total,
	}, nil
}

// AddImages appends image rows to a portfolio
func (pr *PortfolioRepository) AddImages(ctx context.Context, portfolioID int64, paths []string) ([]*market.PortfolioImage, error) {
	out := make([]*market.PortfolioImage, 0, len(paths))
	for _, path := range paths {
		img := &market.PortfolioImage{PortfolioID: portfolioID, Path: path}
		err := pr.q.execQueryRow(ctx,
			`INSERT INTO portfolio_images (portfolio_id, image_path) VALUES ($1, $2) RETURNING id, created_at`,
			portfolioID, path).Scan(&img.ID, &img.CreatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
			}
			return nil, market.NewStorageError("INSERT_FAILED", "failed to insert portfolio image", err)
		}
		out = append(out, img)
	}
	return out, nil
}

// ReplaceImages deletes every image row of a portfolio and inserts new ones
func (pr *PortfolioRepository) ReplaceImages(ctx context.Context, portfolioID int64, paths []string) ([]*market.PortfolioImage, error) {
	if _, err := pr.q.execCommand(ctx, `DELETE FROM portfolio_images WHERE portfolio_id = $1`, portfolioID); err != nil {
		return nil, err
	}
	return pr.AddImages(ctx, portfolioID, paths)
}

// GetImage retrieves an image row by ID
func (pr *PortfolioRepository) GetImage(ctx context.Context, imageID int64) (*market.PortfolioImage, error) {
	img := &market.PortfolioImage{}
	err := pr.q.execQueryRow(ctx, `SELECT id, portfolio_id, image_path, created_at FROM portfolio_images WHERE id = $1`,
		imageID).Scan(&img.ID, &img.PortfolioID, &img.Path, &img.CreatedAt)
	if err != nil {
		return nil, scanError(err, "IMAGE_NOT_FOUND", "portfolio image not found")
	}
	return img, nil
}

// DeleteImage removes an image row
func (pr *PortfolioRepository) DeleteImage(ctx context.Context, imageID int64) error {
	result, err := pr.q.execCommand(ctx, `DELETE FROM portfolio_images WHERE id = $1`, imageID)
	if err != nil {
		return err
	}
	return affected(result, "IMAGE_NOT_FOUND", "portfolio image not found")
}

// CountImages returns the number of images of a portfolio
func (pr *PortfolioRepository) CountImages(ctx context.Context, portfolioID int64) (int, error) {
	var n int
	if err := pr.q.execQueryRow(ctx, `SELECT COUNT(*) FROM portfolio_images WHERE portfolio_id = $1`, portfolioID).Scan(&n); err != nil {
		return 0, market.NewStorageError("COUNT_FAILED", "failed to count portfolio images", err)
	}
	return n, nil
}

// AddKeywords inserts keywords the portfolio does not carry yet
func (pr *PortfolioRepository) AddKeywords(ctx context.Context, portfolioID int64, keywords []string) ([]*market.PortfolioKeyword, []string, error) {
	added := []*market.PortfolioKeyword{}
	skipped := []string{}
	for _, k := range keywords {
		if k == "" {
			continue
		}
		kw := &market.PortfolioKeyword{PortfolioID: portfolioID, Keyword: k}
		err := pr.q.execQueryRow(ctx, `
			INSERT INTO portfolio_keywords (portfolio_id, keyword) VALUES ($1, $2)
			ON CONFLICT (portfolio_id, keyword) DO NOTHING
			RETURNING id`, portfolioID, k).Scan(&kw.ID)
		switch {
		case err == sql.ErrNoRows:
			skipped = append(skipped, k)
		case err != nil:
			if isForeignKeyViolation(err) {
				return nil, nil, market.NewNotFoundError("PORTFOLIO_NOT_FOUND", "portfolio not found")
			}
			return nil, nil, market.NewStorageError("INSERT_FAILED", "failed to insert portfolio keyword", err)
		default:
			added = append(added, kw)
		}
	}
	return added, skipped, nil
}

// ReplaceKeywords deletes every keyword of a portfolio and inserts new ones
func (pr *PortfolioRepository) ReplaceKeywords(ctx context.Context, portfolioID int64, keywords []string) error {
	if _, err := pr.q.execCommand(ctx, `DELETE FROM portfolio_keywords WHERE portfolio_id = $1`, portfolioID); err != nil {
		return err
	}
	_, _, err := pr.AddKeywords(ctx, portfolioID, keywords)
	return err
}

// GetKeyword retrieves a keyword row by ID
func (pr *PortfolioRepository) GetKeyword(ctx context.Context, keywordID int64) (*market.PortfolioKeyword, error) {
	kw := &market.PortfolioKeyword{}
	err := pr.q.execQueryRow(ctx, `SELECT id, portfolio_id, keyword FROM portfolio_keywords WHERE id = $1`,
		keywordID).Scan(&kw.ID, &kw.PortfolioID, &kw.Keyword)
	if err != nil {
		return nil, scanError(err, "KEYWORD_NOT_FOUND", "portfolio keyword not found")
	}
	return kw, nil
}

// DeleteKeyword removes a keyword row
func (pr *PortfolioRepository) DeleteKeyword(ctx context.Context, keywordID int64) error {
	result, err := pr.q.execCommand(ctx, `DELETE FROM portfolio_keywords WHERE id = $1`, keywordID)
	if err != nil {
		return err
	}
	return affected(result, "KEYWORD_NOT_FOUND", "portfolio keyword not found")
}

func (pr *PortfolioRepository) query(ctx context.Context, query string, args ...interface{}) ([]*market.Portfolio, error) {
	rows, err := pr.q.execQuery(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	portfolios := []*market.Portfolio{}
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			rows.Close()
			return nil, market.NewStorageError("SCAN_FAILED", "failed to scan portfolio", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rowsError(rows); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := pr.loadChildren(ctx, portfolios); err != nil {
		return nil, err
	}
	return portfolios, nil
}

// loadChildren fills Images and Keywords of the given portfolios
func (pr *PortfolioRepository) loadChildren(ctx context.Context, portfolios []*market.Portfolio) error {
	if len(portfolios) == 0 {
		return nil
	}
	byID := make(map[int64]*market.Portfolio, len(portfolios))
	ids := make([]int64, 0, len(portfolios))
	for _, p := range portfolios {
		p.Images = []*market.PortfolioImage{}
		p.Keywords = []*market.PortfolioKeyword{}
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := pr.q.execQuery(ctx, `
		SELECT id, portfolio_id, image_path, created_at FROM portfolio_images
		WHERE portfolio_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return err
	}
	for rows.Next() {
		img := &market.PortfolioImage{}
		if err := rows.Scan(&img.ID, &img.PortfolioID, &img.Path, &img.CreatedAt); err != nil {
			rows.Close()
			return market.NewStorageError("SCAN_FAILED", "failed to scan portfolio image", err)
		}
		byID[img.PortfolioID].Images = append(byID[img.PortfolioID].Images, img)
	}
	if err := rowsError(rows); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = pr.q.execQuery(ctx, `
		SELECT id, portfolio_id, keyword FROM portfolio_keywords
		WHERE portfolio_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		kw := &market.PortfolioKeyword{}
		if err := rows.Scan(&kw.ID, &kw.PortfolioID, &kw.Keyword); err != nil {
			return market.NewStorageError("SCAN_FAILED", "failed to scan portfolio keyword", err)
		}
		byID[kw.PortfolioID].Keywords = append(byID[kw.PortfolioID].Keywords, kw)
	}
	return rowsError(rows)
}

func scanPortfolio(s scanner) (*market.Portfolio, error) {
	p := &market.Portfolio{}
	var video, document sql.NullString
	err := s.Scan(&p.ID, &p.AccountID, &p.Title, &p.Description, &video, &document, &p.Status,
		&p.Version, &p.OwnerPremium, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Video = nullString(video)
	p.Document = nullString(document)
	return p, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
