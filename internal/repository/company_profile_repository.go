package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

// CompanyProfileRepository manages the seller identities stamped on invoices.
type CompanyProfileRepository struct {
	db *sqlx.DB
}

// NewCompanyProfileRepository constructs a CompanyProfileRepository.
func NewCompanyProfileRepository(db *sqlx.DB) *CompanyProfileRepository {
	return &CompanyProfileRepository{db: db}
}

const companyProfileColumns = `id, legal_name, vat_number, cr_number, address_line, city, postal_code, phone, email, active, created_at, updated_at`

// List returns all company profiles, newest first.
func (r *CompanyProfileRepository) List(ctx context.Context) ([]models.CompanyProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM company_profiles ORDER BY created_at DESC", companyProfileColumns)
	var profiles []models.CompanyProfile
	if err := r.db.SelectContext(ctx, &profiles, query); err != nil {
		return nil, fmt.Errorf("list company profiles: %w", err)
	}
	return profiles, nil
}

// FindByID fetches a company profile by ID.
func (r *CompanyProfileRepository) FindByID(ctx context.Context, id string) (*models.CompanyProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM company_profiles WHERE id = $1", companyProfileColumns)
	var profile models.CompanyProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindActive returns the most recently created active profile. Callers treat
// sql.ErrNoRows as the missing-seller configuration error.
func (r *CompanyProfileRepository) FindActive(ctx context.Context) (*models.CompanyProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM company_profiles WHERE active = TRUE ORDER BY created_at DESC LIMIT 1", companyProfileColumns)
	var profile models.CompanyProfile
	if err := r.db.GetContext(ctx, &profile, query); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Create inserts a new company profile.
func (r *CompanyProfileRepository) Create(ctx context.Context, profile *models.CompanyProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO company_profiles (id, legal_name, vat_number, cr_number, address_line, city, postal_code, phone, email, active, created_at, updated_at)
        VALUES (:id, :legal_name, :vat_number, :cr_number, :address_line, :city, :postal_code, :phone, :email, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create company profile: %w", err)
	}
	return nil
}

// Update modifies an existing company profile.
func (r *CompanyProfileRepository) Update(ctx context.Context, profile *models.CompanyProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE company_profiles SET legal_name = :legal_name, vat_number = :vat_number, cr_number = :cr_number,
        address_line = :address_line, city = :city, postal_code = :postal_code, phone = :phone, email = :email,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("update company profile: %w", err)
	}
	return nil
}

// Activate marks one profile active and deactivates all others in a single
// transaction so at most one profile is ever active.
func (r *CompanyProfileRepository) Activate(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate profile: %w", err)
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE company_profiles SET active = FALSE, updated_at = $1 WHERE active = TRUE AND id <> $2`, now, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("deactivate profiles: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE company_profiles SET active = TRUE, updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("activate profile: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		tx.Rollback() //nolint:errcheck
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate profile: %w", err)
	}
	return nil
}
