package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type organizationRepository interface {
	List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, int, error)
	FindByID(ctx context.Context, id string) (*models.Organization, error)
	Create(ctx context.Context, org *models.Organization) error
	Update(ctx context.Context, org *models.Organization) error
	SetStatus(ctx context.Context, id string, status models.OrganizationStatus) error
}

// CreateOrganizationRequest represents payload for registering a tenant.
type CreateOrganizationRequest struct {
	NameEN          string `json:"name_en" validate:"required,max=255"`
	NameAR          string `json:"name_ar" validate:"omitempty,max=255"`
	OrgType         string `json:"org_type" validate:"required,oneof=SCHOOL ASSOCIATION"`
	City            string `json:"city" validate:"required,max=100"`
	ContactName     string `json:"contact_name" validate:"required,max=255"`
	ContactPhone    string `json:"contact_phone" validate:"required,saudi_phone"`
	ContactEmail    string `json:"contact_email" validate:"omitempty,email"`
	VATNumber       string `json:"vat_number" validate:"omitempty,len=15,numeric"`
	NationalAddress string `json:"national_address" validate:"omitempty,max=500"`
}

// UpdateOrganizationRequest represents payload for editing a tenant.
type UpdateOrganizationRequest struct {
	NameEN          string `json:"name_en" validate:"required,max=255"`
	NameAR          string `json:"name_ar" validate:"omitempty,max=255"`
	City            string `json:"city" validate:"required,max=100"`
	ContactName     string `json:"contact_name" validate:"required,max=255"`
	ContactPhone    string `json:"contact_phone" validate:"required,saudi_phone"`
	ContactEmail    string `json:"contact_email" validate:"omitempty,email"`
	VATNumber       string `json:"vat_number" validate:"omitempty,len=15,numeric"`
	NationalAddress string `json:"national_address" validate:"omitempty,max=500"`
}

// OrganizationService orchestrates tenant management.
type OrganizationService struct {
	repo      organizationRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOrganizationService constructs an OrganizationService.
func NewOrganizationService(repo organizationRepository, validate *validator.Validate, logger *zap.Logger) *OrganizationService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationService{repo: repo, validator: validate, logger: logger}
}

// List returns organizations plus pagination data.
func (s *OrganizationService) List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, *models.Pagination, error) {
	orgs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list organizations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return orgs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an organization by id.
func (s *OrganizationService) Get(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	return org, nil
}

// Create registers a new organization in Pending status.
func (s *OrganizationService) Create(ctx context.Context, req CreateOrganizationRequest) (*models.Organization, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid organization payload")
	}
	org := &models.Organization{
		NameEN:          strings.TrimSpace(req.NameEN),
		NameAR:          strings.TrimSpace(req.NameAR),
		OrgType:         models.OrganizationType(req.OrgType),
		City:            strings.TrimSpace(req.City),
		ContactName:     strings.TrimSpace(req.ContactName),
		ContactPhone:    strings.TrimSpace(req.ContactPhone),
		ContactEmail:    strings.TrimSpace(req.ContactEmail),
		VATNumber:       strings.TrimSpace(req.VATNumber),
		NationalAddress: strings.TrimSpace(req.NationalAddress),
		Status:          models.OrgStatusPending,
	}
	if err := s.repo.Create(ctx, org); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create organization")
	}
	return org, nil
}

// Update modifies the contact and VAT details of an organization. Type and
// status change through their dedicated operations.
func (s *OrganizationService) Update(ctx context.Context, id string, req UpdateOrganizationRequest) (*models.Organization, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid organization payload")
	}
	org, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	org.NameEN = strings.TrimSpace(req.NameEN)
	org.NameAR = strings.TrimSpace(req.NameAR)
	org.City = strings.TrimSpace(req.City)
	org.ContactName = strings.TrimSpace(req.ContactName)
	org.ContactPhone = strings.TrimSpace(req.ContactPhone)
	org.ContactEmail = strings.TrimSpace(req.ContactEmail)
	org.VATNumber = strings.TrimSpace(req.VATNumber)
	org.NationalAddress = strings.TrimSpace(req.NationalAddress)

	if err := s.repo.Update(ctx, org); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update organization")
	}
	return org, nil
}

// Approve activates a pending organization.
func (s *OrganizationService) Approve(ctx context.Context, id string) (*models.Organization, error) {
	return s.setStatus(ctx, id, models.OrgStatusApproved)
}

// Suspend blocks an organization. Its users keep read access but every write
// path refuses suspended tenants.
func (s *OrganizationService) Suspend(ctx context.Context, id string) (*models.Organization, error) {
	return s.setStatus(ctx, id, models.OrgStatusSuspended)
}

func (s *OrganizationService) setStatus(ctx context.Context, id string, status models.OrganizationStatus) (*models.Organization, error) {
	org, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if org.Status == status {
		return org, nil
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update organization status")
	}
	org.Status = status
	return org, nil
}

// EnsureWritable rejects writes against non-approved organizations.
func (s *OrganizationService) EnsureWritable(ctx context.Context, id string) error {
	org, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if org.Status != models.OrgStatusApproved {
		return appErrors.Clone(appErrors.ErrForbidden, "organization is not approved")
	}
	return nil
}
