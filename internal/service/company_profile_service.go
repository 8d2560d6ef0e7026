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

type companyProfileRepository interface {
	List(ctx context.Context) ([]models.CompanyProfile, error)
	FindByID(ctx context.Context, id string) (*models.CompanyProfile, error)
	FindActive(ctx context.Context) (*models.CompanyProfile, error)
	Create(ctx context.Context, profile *models.CompanyProfile) error
	Update(ctx context.Context, profile *models.CompanyProfile) error
	Activate(ctx context.Context, id string) error
}

// CompanyProfileRequest is the payload for creating or updating a seller
// profile.
type CompanyProfileRequest struct {
	LegalName   string `json:"legal_name" validate:"required,max=255"`
	VATNumber   string `json:"vat_number" validate:"required,len=15,numeric"`
	CRNumber    string `json:"cr_number" validate:"omitempty,max=50"`
	AddressLine string `json:"address_line" validate:"omitempty,max=500"`
	City        string `json:"city" validate:"omitempty,max=100"`
	PostalCode  string `json:"postal_code" validate:"omitempty,max=20"`
	Phone       string `json:"phone" validate:"omitempty,saudi_phone"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// CompanyProfileService manages the seller identities stamped onto invoices.
type CompanyProfileService struct {
	repo      companyProfileRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCompanyProfileService constructs a CompanyProfileService.
func NewCompanyProfileService(repo companyProfileRepository, validate *validator.Validate, logger *zap.Logger) *CompanyProfileService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyProfileService{repo: repo, validator: validate, logger: logger}
}

// List returns all seller profiles, active first.
func (s *CompanyProfileService) List(ctx context.Context) ([]models.CompanyProfile, error) {
	profiles, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list company profiles")
	}
	return profiles, nil
}

// Get returns a profile by id.
func (s *CompanyProfileService) Get(ctx context.Context, id string) (*models.CompanyProfile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "company profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company profile")
	}
	return profile, nil
}

// Create stores a new, initially inactive profile.
func (s *CompanyProfileService) Create(ctx context.Context, req CompanyProfileRequest) (*models.CompanyProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid company profile payload")
	}
	profile := &models.CompanyProfile{
		LegalName:   strings.TrimSpace(req.LegalName),
		VATNumber:   strings.TrimSpace(req.VATNumber),
		CRNumber:    strings.TrimSpace(req.CRNumber),
		AddressLine: strings.TrimSpace(req.AddressLine),
		City:        strings.TrimSpace(req.City),
		PostalCode:  strings.TrimSpace(req.PostalCode),
		Phone:       strings.TrimSpace(req.Phone),
		Email:       strings.TrimSpace(req.Email),
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create company profile")
	}
	return profile, nil
}

// Update edits a profile. Changes never touch already-issued invoices, which
// carry their own seller snapshot.
func (s *CompanyProfileService) Update(ctx context.Context, id string, req CompanyProfileRequest) (*models.CompanyProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid company profile payload")
	}
	profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	profile.LegalName = strings.TrimSpace(req.LegalName)
	profile.VATNumber = strings.TrimSpace(req.VATNumber)
	profile.CRNumber = strings.TrimSpace(req.CRNumber)
	profile.AddressLine = strings.TrimSpace(req.AddressLine)
	profile.City = strings.TrimSpace(req.City)
	profile.PostalCode = strings.TrimSpace(req.PostalCode)
	profile.Phone = strings.TrimSpace(req.Phone)
	profile.Email = strings.TrimSpace(req.Email)

	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update company profile")
	}
	return profile, nil
}

// Activate makes the given profile the sole active seller.
func (s *CompanyProfileService) Activate(ctx context.Context, id string) (*models.CompanyProfile, error) {
	if err := s.repo.Activate(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "company profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate company profile")
	}
	return s.Get(ctx, id)
}
