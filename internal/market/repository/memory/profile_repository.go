package memory

import (
	"context"
	"time"

	"github.com/songzhibin97/qwork/pkg/market"
)

// ProfileRepository implements market.ProfileRepository for in-memory storage
type ProfileRepository struct {
	repo *Repository
	tx   *Transaction
}

// NewProfileRepository creates a new in-memory profile repository
func NewProfileRepository(repo *Repository) *ProfileRepository {
	return &ProfileRepository{repo: repo}
}

// Create inserts the profile of an existing account
func (pr *ProfileRepository) Create(ctx context.Context, profile *market.Profile) error {
	if profile == nil {
		return market.NewValidationError("INVALID_PROFILE", "profile cannot be nil")
	}

	return pr.repo.update(pr.tx, "Profiles.Create", func(s *state) error {
		if _, ok := s.accounts[profile.AccountID]; !ok {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		if _, ok := s.profiles[profile.AccountID]; ok {
			return market.NewConflictError("PROFILE_EXISTS", "profile already exists")
		}
		profile.Version = 1
		profile.UpdatedAt = time.Now()
		s.profiles[profile.AccountID] = copyProfile(profile)
		return nil
	})
}

// Get retrieves the profile of an account
func (pr *ProfileRepository) Get(ctx context.Context, accountID int64) (*market.Profile, error) {
	var found *market.Profile
	err := pr.repo.view(pr.tx, "Profiles.Get", func(s *state) error {
		p, ok := s.profiles[accountID]
		if !ok {
			return market.NewNotFoundError("PROFILE_NOT_FOUND", "profile not found")
		}
		found = copyProfile(p)
		return nil
	})
	return found, err
}

// Update overwrites the profile if its version matches
func (pr *ProfileRepository) Update(ctx context.Context, profile *market.Profile) error {
	if profile == nil {
		return market.NewValidationError("INVALID_PROFILE", "profile cannot be nil")
	}

	return pr.repo.update(pr.tx, "Profiles.Update", func(s *state) error {
		existing, ok := s.profiles[profile.AccountID]
		if !ok {
			return market.NewNotFoundError("PROFILE_NOT_FOUND", "profile not found")
		}
		if existing.Version != profile.Version {
			return market.NewConflictError("VERSION_CONFLICT", "profile was modified concurrently")
		}
		profile.Version++
		profile.UpdatedAt = time.Now()
		s.profiles[profile.AccountID] = copyProfile(profile)
		return nil
	})
}

// SetAvailability inserts or replaces the availability of an account
func (pr *ProfileRepository) SetAvailability(ctx context.Context, availability *market.Availability) error {
	if availability == nil {
		return market.NewValidationError("INVALID_AVAILABILITY", "availability cannot be nil")
	}

	return pr.repo.update(pr.tx, "Profiles.SetAvailability", func(s *state) error {
		if _, ok := s.accounts[availability.AccountID]; !ok {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		cp := *availability
		s.availability[availability.AccountID] = &cp
		return nil
	})
}

// GetAvailability retrieves the availability of an account
func (pr *ProfileRepository) GetAvailability(ctx context.Context, accountID int64) (*market.Availability, error) {
	var found *market.Availability
	err := pr.repo.view(pr.tx, "Profiles.GetAvailability", func(s *state) error {
		a, ok := s.availability[accountID]
		if !ok {
			return market.NewNotFoundError("AVAILABILITY_NOT_FOUND", "availability not found")
		}
		cp := *a
		found = &cp
		return nil
	})
	return found, err
}

// ReplaceExperience deletes and re-inserts the experience entries of an account
func (pr *ProfileRepository) ReplaceExperience(ctx context.Context, accountID int64, items []*market.Experience) error {
	return pr.repo.update(pr.tx, "Profiles.ReplaceExperience", func(s *state) error {
		if _, ok := s.accounts[accountID]; !ok {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		rows := make([]*market.Experience, 0, len(items))
		for _, it := range items {
			it.ID = s.next("experience")
			it.AccountID = accountID
			cp := *it
			rows = append(rows, &cp)
		}
		s.experience[accountID] = rows
		return nil
	})
}

// ListExperience lists the experience entries of an account
func (pr *ProfileRepository) ListExperience(ctx context.Context, accountID int64) ([]*market.Experience, error) {
	out := []*market.Experience{}
	err := pr.repo.view(pr.tx, "Profiles.ListExperience", func(s *state) error {
		for _, it := range s.experience[accountID] {
			cp := *it
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

// ReplaceEducation deletes and re-inserts the education entries of an account
func (pr *ProfileRepository) ReplaceEducation(ctx context.Context, accountID int64, items []*market.Education) error {
	return pr.repo.update(pr.tx, "Profiles.ReplaceEducation", func(s *state) error {
		if _, ok := s.accounts[accountID]; !ok {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		rows := make([]*market.Education, 0, len(items))
		for _, it := range items {
			it.ID = s.next("education")
			it.AccountID = accountID
			cp := *it
			rows = append(rows, &cp)
		}
		s.education[accountID] = rows
		return nil
	})
}

// ListEducation lists the education entries of an account
func (pr *ProfileRepository) ListEducation(ctx context.Context, accountID int64) ([]*market.Education, error) {
	out := []*market.Education{}
	err := pr.repo.view(pr.tx, "Profiles.ListEducation", func(s *state) error {
		for _, it := range s.education[accountID] {
			cp := *it
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

// ReplacePricing deletes and re-inserts the pricing packages of an account
func (pr *ProfileRepository) ReplacePricing(ctx context.Context, accountID int64, items []*market.Pricing) error {
	return pr.repo.update(pr.tx, "Profiles.ReplacePricing", func(s *state) error {
		if _, ok := s.accounts[accountID]; !ok {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		rows := make([]*market.Pricing, 0, len(items))
		for _, it := range items {
			it.ID = s.next("pricing")
			it.AccountID = accountID
			cp := *it
			rows = append(rows, &cp)
		}
		s.pricing[accountID] = rows
		return nil
	})
}

// ListPricing lists the pricing packages of an account
func (pr *ProfileRepository) ListPricing(ctx context.Context, accountID int64) ([]*market.Pricing, error) {
	out := []*market.Pricing{}
	err := pr.repo.view(pr.tx, "Profiles.ListPricing", func(s *state) error {
		for _, it := range s.pricing[accountID] {
			cp := *it
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}
