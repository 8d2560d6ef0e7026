package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

// OrganizationRepository manages tenant persistence.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository constructs an OrganizationRepository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name_en, name_ar, org_type, city, contact_name, contact_phone, contact_email, vat_number, national_address, status, created_at, updated_at`

// List returns organizations matching the provided filters.
func (r *OrganizationRepository) List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, int, error) {
	base := "FROM organizations WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.OrgType != "" {
		conditions = append(conditions, fmt.Sprintf("org_type = $%d", len(args)+1))
		args = append(args, filter.OrgType)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.City != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(city) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.City))
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(name_en) LIKE $%d OR name_ar LIKE $%d OR LOWER(contact_name) LIKE $%d)", idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]bool{"name_en": true, "city": true, "status": true, "created_at": true}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", organizationColumns, base, sortBy, order, size, offset)
	var orgs []models.Organization
	if err := r.db.SelectContext(ctx, &orgs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count organizations: %w", err)
	}
	return orgs, total, nil
}

// FindByID fetches an organization by ID.
func (r *OrganizationRepository) FindByID(ctx context.Context, id string) (*models.Organization, error) {
	query := fmt.Sprintf("SELECT %s FROM organizations WHERE id = $1", organizationColumns)
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		return nil, err
	}
	return &org, nil
}

// FindByName fetches an organization by its exact English name. The bulk
// importer uses this to resolve sheet rows.
func (r *OrganizationRepository) FindByName(ctx context.Context, name string) (*models.Organization, error) {
	query := fmt.Sprintf("SELECT %s FROM organizations WHERE name_en = $1 LIMIT 1", organizationColumns)
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, name); err != nil {
		return nil, err
	}
	return &org, nil
}

// Create inserts a new organization.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	const query = `INSERT INTO organizations (id, name_en, name_ar, org_type, city, contact_name, contact_phone, contact_email, vat_number, national_address, status, created_at, updated_at)
        VALUES (:id, :name_en, :name_ar, :org_type, :city, :contact_name, :contact_phone, :contact_email, :vat_number, :national_address, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, org); err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// Update modifies contact and naming fields of an organization.
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now().UTC()
	const query = `UPDATE organizations SET name_en = :name_en, name_ar = :name_ar, org_type = :org_type, city = :city,
        contact_name = :contact_name, contact_phone = :contact_phone, contact_email = :contact_email,
        vat_number = :vat_number, national_address = :national_address, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, org); err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	return nil
}

// SetStatus moves the organization between lifecycle states. Organizations
// are never deleted.
func (r *OrganizationRepository) SetStatus(ctx context.Context, id string, status models.OrganizationStatus) error {
	const query = `UPDATE organizations SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set organization status: %w", err)
	}
	return nil
}

// CountByStatus aggregates organizations per lifecycle status.
func (r *OrganizationRepository) CountByStatus(ctx context.Context) (map[models.OrganizationStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS c FROM organizations GROUP BY status`
	rows := []struct {
		Status models.OrganizationStatus `db:"status"`
		C      int                       `db:"c"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count organizations by status: %w", err)
	}
	result := make(map[models.OrganizationStatus]int, len(rows))
	for _, row := range rows {
		result[row.Status] = row.C
	}
	return result, nil
}
