package postgres

import (
	"context"

	"github.com/songzhibin97/qwork/pkg/market"
)

// tagQueries holds the static statements for one interest table
type tagQueries struct {
	ensure      string
	getByName   string
	deleteLinks string
	insertLink  string
	listLinks   string
}

var tagSQL = map[market.InterestKind]tagQueries{
	market.InterestCategory: {
		ensure: `
			WITH ins AS (
				INSERT INTO categories (name) VALUES ($1)
				ON CONFLICT (name) DO NOTHING
				RETURNING id, name
			)
			SELECT id, name FROM ins
			UNION ALL
			SELECT id, name FROM categories WHERE name = $1
			LIMIT 1`,
		getByName:   `SELECT id, name FROM categories WHERE name = $1`,
		deleteLinks: `DELETE FROM user_interests WHERE user_id = $1 AND interest_type = 'category'`,
		insertLink:  `INSERT INTO user_interests (user_id, interest_type, category_id) VALUES ($1, 'category', $2)`,
		listLinks: `
			SELECT DISTINCT c.id, c.name
			FROM user_interests ui
			JOIN categories c ON c.id = ui.category_id
			WHERE ui.user_id = $1 AND ui.interest_type = 'category'
			ORDER BY c.name`,
	},
	market.InterestKeyword: {
		ensure: `
			WITH ins AS (
				INSERT INTO keywords (name) VALUES ($1)
				ON CONFLICT (name) DO NOTHING
				RETURNING id, name
			)
			SELECT id, name FROM ins
			UNION ALL
			SELECT id, name FROM keywords WHERE name = $1
			LIMIT 1`,
		getByName:   `SELECT id, name FROM keywords WHERE name = $1`,
		deleteLinks: `DELETE FROM user_interests WHERE user_id = $1 AND interest_type = 'keyword'`,
		insertLink:  `INSERT INTO user_interests (user_id, interest_type, keyword_id) VALUES ($1, 'keyword', $2)`,
		listLinks: `
			SELECT DISTINCT k.id, k.name
			FROM user_interests ui
			JOIN keywords k ON k.id = ui.keyword_id
			WHERE ui.user_id = $1 AND ui.interest_type = 'keyword'
			ORDER BY k.name`,
	},
}

// TagRepository implements market.TagRepository for one interest kind
type TagRepository struct {
	q     querier
	kind  market.InterestKind
	stmts tagQueries
	known bool
}

func newTagRepository(q querier, kind market.InterestKind) *TagRepository {
	stmts, ok := tagSQL[kind]
	return &TagRepository{q: q, kind: kind, stmts: stmts, known: ok}
}

// Kind returns the interest kind served by this repository
func (tr *TagRepository) Kind() market.InterestKind {
	return tr.kind
}

func (tr *TagRepository) check() error {
	if !tr.known {
		return market.NewValidationError("INVALID_INTEREST_KIND", "unknown interest kind "+string(tr.kind))
	}
	return nil
}

// Ensure returns the tag named name, inserting it when absent
func (tr *TagRepository) Ensure(ctx context.Context, name string) (*market.Tag, error) {
	if err := tr.check(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, market.NewValidationError("INVALID_TAG_NAME", "tag name cannot be empty")
	}

	tag := &market.Tag{Kind: tr.kind}
	if err := tr.q.execQueryRow(ctx, tr.stmts.ensure, name).Scan(&tag.ID, &tag.Name); err != nil {
		return nil, market.NewStorageError("UPSERT_FAILED", "failed to ensure "+string(tr.kind), err)
	}
	return tag, nil
}

// GetByName retrieves a tag by exact name
func (tr *TagRepository) GetByName(ctx context.Context, name string) (*market.Tag, error) {
	if err := tr.check(); err != nil {
		return nil, err
	}

	tag := &market.Tag{Kind: tr.kind}
	if err := tr.q.execQueryRow(ctx, tr.stmts.getByName, name).Scan(&tag.ID, &tag.Name); err != nil {
		return nil, scanError(err, "TAG_NOT_FOUND", "tag not found")
	}
	return tag, nil
}

// ReplaceForAccount swaps every association of this kind for the account
func (tr *TagRepository) ReplaceForAccount(ctx context.Context, accountID int64, tagIDs []int64) error {
	if err := tr.check(); err != nil {
		return err
	}

	if _, err := tr.q.execCommand(ctx, tr.stmts.deleteLinks, accountID); err != nil {
		return err
	}
	for _, id := range tagIDs {
		if _, err := tr.q.execCommand(ctx, tr.stmts.insertLink, accountID, id); err != nil {
			if isForeignKeyViolation(err) {
				return market.NewNotFoundError("TAG_NOT_FOUND", "account or tag not found")
			}
			return err
		}
	}
	return nil
}

// ListForAccount lists the tags of this kind associated with the account
func (tr *TagRepository) ListForAccount(ctx context.Context, accountID int64) ([]*market.Tag, error) {
	if err := tr.check(); err != nil {
		return nil, err
	}

	rows, err := tr.q.execQuery(ctx, tr.stmts.listLinks, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*market.Tag{}
	for rows.Next() {
		tag := &market.Tag{Kind: tr.kind}
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, market.NewStorageError("SCAN_FAILED", "failed to scan tag", err)
		}
		out = append(out, tag)
	}
	return out, rowsError(rows)
}
