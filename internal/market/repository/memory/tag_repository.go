package memory

import (
	"context"
	"sort"

	"github.com/songzhibin97/qwork/pkg/market"
)

// TagRepository implements market.TagRepository for one interest kind
type TagRepository struct {
	repo *Repository
	tx   *Transaction
	kind market.InterestKind
}

// Kind returns the interest kind served by this repository
func (tr *TagRepository) Kind() market.InterestKind {
	return tr.kind
}

func (tr *TagRepository) op(method string) string {
	return "Interests." + string(tr.kind) + "." + method
}

func (tr *TagRepository) check() error {
	if !tr.kind.Valid() {
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

	var tag *market.Tag
	err := tr.repo.update(tr.tx, tr.op("Ensure"), func(s *state) error {
		for _, t := range s.tags[tr.kind] {
			if t.Name == name {
				cp := *t
				tag = &cp
				return nil
			}
		}
		t := &market.Tag{ID: s.next(string(tr.kind)), Name: name, Kind: tr.kind}
		s.tags[tr.kind][t.ID] = t
		cp := *t
		tag = &cp
		return nil
	})
	return tag, err
}

// GetByName retrieves a tag by exact name
func (tr *TagRepository) GetByName(ctx context.Context, name string) (*market.Tag, error) {
	if err := tr.check(); err != nil {
		return nil, err
	}

	var tag *market.Tag
	err := tr.repo.view(tr.tx, tr.op("GetByName"), func(s *state) error {
		for _, t := range s.tags[tr.kind] {
			if t.Name == name {
				cp := *t
				tag = &cp
				return nil
			}
		}
		return market.NewNotFoundError("TAG_NOT_FOUND", "tag not found")
	})
	return tag, err
}

// ReplaceForAccount swaps every association of this kind for the account
func (tr *TagRepository) ReplaceForAccount(ctx context.Context, accountID int64, tagIDs []int64) error {
	if err := tr.check(); err != nil {
		return err
	}

	return tr.repo.update(tr.tx, tr.op("ReplaceForAccount"), func(s *state) error {
		if _, ok := s.accounts[accountID]; !ok {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		for _, id := range tagIDs {
			if _, ok := s.tags[tr.kind][id]; !ok {
				return market.NewNotFoundError("TAG_NOT_FOUND", "tag not found")
			}
		}
		if len(tagIDs) == 0 {
			delete(s.interests[tr.kind], accountID)
			return nil
		}
		s.interests[tr.kind][accountID] = append([]int64(nil), tagIDs...)
		return nil
	})
}

// ListForAccount lists the tags of this kind associated with the account
func (tr *TagRepository) ListForAccount(ctx context.Context, accountID int64) ([]*market.Tag, error) {
	if err := tr.check(); err != nil {
		return nil, err
	}

	out := []*market.Tag{}
	err := tr.repo.view(tr.tx, tr.op("ListForAccount"), func(s *state) error {
		seen := make(map[int64]bool)
		for _, id := range s.interests[tr.kind][accountID] {
			if seen[id] {
				continue
			}
			seen[id] = true
			if t, ok := s.tags[tr.kind][id]; ok {
				cp := *t
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}
