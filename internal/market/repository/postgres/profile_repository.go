package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/songzhibin97/qwork/pkg/market"
)

// ProfileRepository implements market.ProfileRepository using PostgreSQL
type ProfileRepository struct {
	q querier
}

// NewProfileRepository creates a new PostgreSQL profile repository
func NewProfileRepository(repo *Repository) *ProfileRepository {
	return &ProfileRepository{q: repo}
}

// Create inserts the profile of an existing account
func (pr *ProfileRepository) Create(ctx context.Context, p *market.Profile) error {
	if p == nil {
		return market.NewValidationError("INVALID_PROFILE", "profile cannot be nil")
	}

	query := `
		INSERT INTO profiles (user_id, profile_image, first_name, last_name, contact_email, date_of_birth,
			address, city, state, zip_code, short_description, long_description, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		RETURNING version, updated_at`

	row := pr.q.execQueryRow(ctx, query, p.AccountID, p.ProfileImage, p.FirstName, p.LastName, p.ContactEmail,
		p.DateOfBirth, p.Address, p.City, p.State, p.ZipCode, p.ShortDescription, p.LongDescription)
	if err := row.Scan(&p.Version, &p.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return market.NewConflictError("PROFILE_EXISTS", "profile already exists")
		}
		if isForeignKeyViolation(err) {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		return market.NewStorageError("INSERT_FAILED", "failed to insert profile", err)
	}
	return nil
}

// Get retrieves the profile of an account
func (pr *ProfileRepository) Get(ctx context.Context, accountID int64) (*market.Profile, error) {
	query := `
		SELECT user_id, profile_image, first_name, last_name, contact_email, date_of_birth,
			address, city, state, zip_code, short_description, long_description, version, updated_at
		FROM profiles
		WHERE user_id = $1`

	p := &market.Profile{}
	var image sql.NullString
	var dob sql.NullTime
	err := pr.q.execQueryRow(ctx, query, accountID).Scan(&p.AccountID, &image, &p.FirstName, &p.LastName,
		&p.ContactEmail, &dob, &p.Address, &p.City, &p.State, &p.ZipCode, &p.ShortDescription,
		&p.LongDescription, &p.Version, &p.UpdatedAt)
	if err != nil {
		return nil, scanError(err, "PROFILE_NOT_FOUND", "profile not found")
	}
	p.ProfileImage = nullString(image)
	if dob.Valid {
		t := dob.Time
		p.DateOfBirth = &t
	}
	return p, nil
}

// Update overwrites the profile if its version matches
func (pr *ProfileRepository) Update(ctx context.Context, p *market.Profile) error {
	if p == nil {
		return market.NewValidationError("INVALID_PROFILE", "profile cannot be nil")
	}

	query := `
		UPDATE profiles
		SET profile_image = $3, first_name = $4, last_name = $5, contact_email = $6, date_of_birth = $7,
			address = $8, city = $9, state = $10, zip_code = $11, short_description = $12,
			long_description = $13, version = version + 1, updated_at = NOW()
		WHERE user_id = $1 AND version = $2
		RETURNING version, updated_at`

	err := pr.q.execQueryRow(ctx, query, p.AccountID, p.Version, p.ProfileImage, p.FirstName, p.LastName,
		p.ContactEmail, p.DateOfBirth, p.Address, p.City, p.State, p.ZipCode, p.ShortDescription,
		p.LongDescription).Scan(&p.Version, &p.UpdatedAt)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return market.NewStorageError("UPDATE_FAILED", "failed to update profile", err)
	}

	// Distinguish a missing profile from a stale version
	if _, getErr := pr.Get(ctx, p.AccountID); getErr != nil {
		return getErr
	}
	return market.NewConflictError("VERSION_CONFLICT", "profile was modified concurrently")
}

// SetAvailability inserts or replaces the availability of an account
func (pr *ProfileRepository) SetAvailability(ctx context.Context, a *market.Availability) error {
	if a == nil {
		return market.NewValidationError("INVALID_AVAILABILITY", "availability cannot be nil")
	}

	query := `
		INSERT INTO availability (user_id, status, hours_per_week, timezone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET status = EXCLUDED.status, hours_per_week = EXCLUDED.hours_per_week, timezone = EXCLUDED.timezone`

	if _, err := pr.q.execCommand(ctx, query, a.AccountID, a.Status, a.HoursPerWeek, a.Timezone); err != nil {
		if isForeignKeyViolation(err) {
			return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
		}
		return err
	}
	return nil
}

// GetAvailability retrieves the availability of an account
func (pr *ProfileRepository) GetAvailability(ctx context.Context, accountID int64) (*market.Availability, error) {
	a := &market.Availability{}
	err := pr.q.execQueryRow(ctx, `SELECT user_id, status, hours_per_week, timezone FROM availability WHERE user_id = $1`,
		accountID).Scan(&a.AccountID, &a.Status, &a.HoursPerWeek, &a.Timezone)
	if err != nil {
		return nil, scanError(err, "AVAILABILITY_NOT_FOUND", "availability not found")
	}
	return a, nil
}

// ReplaceExperience deletes and re-inserts the experience entries of an account
func (pr *ProfileRepository) ReplaceExperience(ctx context.Context, accountID int64, items []*market.Experience) error {
	if _, err := pr.q.execCommand(ctx, `DELETE FROM experience WHERE user_id = $1`, accountID); err != nil {
		return err
	}
	for _, it := range items {
		it.AccountID = accountID
		err := pr.q.execQueryRow(ctx, `
			INSERT INTO experience (user_id, title, company, start_date, end_date, description)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			accountID, it.Title, it.Company, it.StartDate, it.EndDate, it.Description).Scan(&it.ID)
		if err != nil {
			return insertError(err, "experience")
		}
	}
	return nil
}

// ListExperience lists the experience entries of an account
func (pr *ProfileRepository) ListExperience(ctx context.Context, accountID int64) ([]*market.Experience, error) {
	rows, err := pr.q.execQuery(ctx, `
		SELECT id, user_id, title, company, start_date, end_date, description
		FROM experience WHERE user_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*market.Experience{}
	for rows.Next() {
		it := &market.Experience{}
		var start, end sql.NullTime
		if err := rows.Scan(&it.ID, &it.AccountID, &it.Title, &it.Company, &start, &end, &it.Description); err != nil {
			return nil, market.NewStorageError("SCAN_FAILED", "failed to scan experience", err)
		}
		it.StartDate = nullTime(start)
		it.EndDate = nullTime(end)
		out = append(out, it)
	}
	return out, rowsError(rows)
}

// ReplaceEducation deletes and re-inserts the education entries of an account
func (pr *ProfileRepository) ReplaceEducation(ctx context.Context, accountID int64, items []*market.Education) error {
	if _, err := pr.q.execCommand(ctx, `DELETE FROM education WHERE user_id = $1`, accountID); err != nil {
		return err
	}
	for _, it := range items {
		it.AccountID = accountID
		err := pr.q.execQueryRow(ctx, `
			INSERT INTO education (user_id, school, degree, field, start_year, end_year)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			accountID, it.School, it.Degree, it.Field, it.StartYear, it.EndYear).Scan(&it.ID)
		if err != nil {
			return insertError(err, "education")
		}
	}
	return nil
}

// ListEducation lists the education entries of an account
func (pr *ProfileRepository) ListEducation(ctx context.Context, accountID int64) ([]*market.Education, error) {
	rows, err := pr.q.execQuery(ctx, `
		SELECT id, user_id, school, degree, field, start_year, end_year
		FROM education WHERE user_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*market.Education{}
	for rows.Next() {
		it := &market.Education{}
		if err := rows.Scan(&it.ID, &it.AccountID, &it.School, &it.Degree, &it.Field, &it.StartYear, &it.EndYear); err != nil {
			return nil, market.NewStorageError("SCAN_FAILED", "failed to scan education", err)
		}
		out = append(out, it)
	}
	return out, rowsError(rows)
}

// ReplacePricing deletes and re-inserts the pricing packages of an account
func (pr *ProfileRepository) ReplacePricing(ctx context.Context, accountID int64, items []*market.Pricing) error {
	if _, err := pr.q.execCommand(ctx, `DELETE FROM pricing WHERE user_id = $1`, accountID); err != nil {
		return err
	}
	for _, it := range items {
		it.AccountID = accountID
		err := pr.q.execQueryRow(ctx, `
			INSERT INTO pricing (user_id, name, amount_cents, currency, description)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			accountID, it.Name, it.AmountCents, it.Currency, it.Description).Scan(&it.ID)
		if err != nil {
			return insertError(err, "pricing")
		}
	}
	return nil
}

// ListPricing lists the pricing packages of an account
func (pr *ProfileRepository) ListPricing(ctx context.Context, accountID int64) ([]*market.Pricing, error) {
	rows, err := pr.q.execQuery(ctx, `
		SELECT id, user_id, name, amount_cents, currency, description
		FROM pricing WHERE user_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*market.Pricing{}
	for rows.Next() {
		it := &market.Pricing{}
		if err := rows.Scan(&it.ID, &it.AccountID, &it.Name, &it.AmountCents, &it.Currency, &it.Description); err != nil {
			return nil, market.NewStorageError("SCAN_FAILED", "failed to scan pricing", err)
		}
		out = append(out, it)
	}
	return out, rowsError(rows)
}

func insertError(err error, table string) error {
	if isForeignKeyViolation(err) {
		return market.NewNotFoundError("ACCOUNT_NOT_FOUND", "account not found")
	}
	return market.NewStorageError("INSERT_FAILED", "failed to insert "+table, err)
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func rowsError(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		return market.NewStorageError("ROWS_FAILED", "failed to iterate rows", err)
	}
	return nil
}
