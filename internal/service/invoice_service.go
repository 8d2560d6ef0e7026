package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/policy"
	"github.com/ucmas-ksa/portal-api/internal/repository"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
	"github.com/ucmas-ksa/portal-api/pkg/export"
)

type invoiceRepository interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.InvoiceDetail, error)
	ListCourseBuckets(ctx context.Context, organizationID, courseID string, ids []string) ([]repository.InvoiceBucket, error)
	ListEventBuckets(ctx context.Context, organizationID, eventID string, ids []string) ([]repository.InvoiceBucket, error)
	IssueCourseInvoice(ctx context.Context, organizationID, courseID string, ids []string, issuedBy string, vatRate decimal.Decimal) (*models.Invoice, error)
	IssueEventInvoice(ctx context.Context, organizationID, eventID string, ids []string, issuedBy string, vatRate decimal.Decimal) (*models.Invoice, error)
	MarkPaid(ctx context.Context, id, paymentRef string) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// IssueInvoicesRequest selects the rows to bill. Kind is mandatory; the other
// filters narrow the run. Org users are always pinned to their own
// organization.
type IssueInvoicesRequest struct {
	Kind           string   `json:"kind" validate:"required,oneof=COURSE EVENT"`
	OrganizationID string   `json:"organization_id" validate:"omitempty,uuid4"`
	CourseID       string   `json:"course_id" validate:"omitempty,uuid4"`
	EventID        string   `json:"event_id" validate:"omitempty,uuid4"`
	IDs            []string `json:"ids" validate:"omitempty,dive,uuid4"`
}

// IssueBucketError reports one bucket whose issuance failed. Other buckets of
// the same run are unaffected.
type IssueBucketError struct {
	OrganizationID string `json:"organization_id"`
	TargetID       string `json:"target_id"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}

// IssueInvoicesResult is the outcome of one issuance run.
type IssueInvoicesResult struct {
	Invoices []models.Invoice   `json:"invoices"`
	Errors   []IssueBucketError `json:"errors,omitempty"`
}

// MarkInvoicePaidRequest carries the optional payment reference.
type MarkInvoicePaidRequest struct {
	PaymentRef string `json:"payment_ref" validate:"omitempty,max=255"`
}

type invoicePDFRenderer interface {
	Render(invoice *models.Invoice) ([]byte, error)
}

// InvoiceService orchestrates grouped invoice issuance and the invoice
// document lifecycle.
type InvoiceService struct {
	repo      invoiceRepository
	pdf       invoicePDFRenderer
	vatRate   decimal.Decimal
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewInvoiceService constructs the invoice service. vatRate is a fraction,
// e.g. 0.15 for the standard Saudi rate. metrics may be nil.
func NewInvoiceService(repo invoiceRepository, vatRate decimal.Decimal, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *InvoiceService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{repo: repo, pdf: export.NewInvoicePDFRenderer(), vatRate: vatRate, validator: validate, logger: logger, metrics: metrics}
}

// List returns invoices visible to the actor plus pagination metadata.
func (s *InvoiceService) List(ctx context.Context, actor *models.JWTClaims, filter models.InvoiceFilter) ([]models.InvoiceDetail, *models.Pagination, error) {
	if scope := policy.ScopeOrganization(actor); scope != "" {
		filter.OrganizationID = scope
	}
	invoices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return invoices, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an invoice with its items, visible to the actor.
func (s *InvoiceService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.InvoiceDetail, error) {
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	if scope := policy.ScopeOrganization(actor); scope != "" && invoice.OrganizationID != scope {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
	}
	if !policy.Can(actor, policy.ActionInvoiceView, policy.Resource{OrganizationID: invoice.OrganizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this invoice")
	}
	return invoice, nil
}

// Issue runs the grouped issuance engine: eligible rows are grouped into
// (organization, course|event) buckets and each bucket becomes exactly one
// invoice issued in its own transaction. A bucket that fails reports an error
// without touching the other buckets' invoices.
func (s *InvoiceService) Issue(ctx context.Context, actor *models.JWTClaims, req IssueInvoicesRequest) (*IssueInvoicesResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issuance payload")
	}
	organizationID := req.OrganizationID
	if scope := policy.ScopeOrganization(actor); scope != "" {
		organizationID = scope
	}
	if !policy.Can(actor, policy.ActionInvoiceIssue, policy.Resource{OrganizationID: organizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to issue invoices")
	}

	var (
		buckets []repository.InvoiceBucket
		err     error
	)
	kind := models.RegistrationKind(req.Kind)
	if kind == models.KindCourse {
		buckets, err = s.repo.ListCourseBuckets(ctx, organizationID, req.CourseID, req.IDs)
	} else {
		buckets, err = s.repo.ListEventBuckets(ctx, organizationID, req.EventID, req.IDs)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to group rows for issuance")
	}
	if len(buckets) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNothingToInvoice, "")
	}

	result := &IssueInvoicesResult{Invoices: []models.Invoice{}}
	for _, bucket := range buckets {
		var invoice *models.Invoice
		if kind == models.KindCourse {
			invoice, err = s.repo.IssueCourseInvoice(ctx, bucket.OrganizationID, bucket.TargetID, req.IDs, actor.UserID, s.vatRate)
		} else {
			invoice, err = s.repo.IssueEventInvoice(ctx, bucket.OrganizationID, bucket.TargetID, req.IDs, actor.UserID, s.vatRate)
		}
		if err != nil {
			result.Errors = append(result.Errors, s.bucketError(bucket, err))
			continue
		}
		result.Invoices = append(result.Invoices, *invoice)
	}
	s.metrics.RecordInvoiceIssued(len(result.Invoices))

	// All buckets raced away or the seller vanished mid-run.
	if len(result.Invoices) == 0 && len(result.Errors) > 0 {
		first := result.Errors[0]
		if first.Code == appErrors.ErrNoActiveSeller.Code {
			return nil, appErrors.Clone(appErrors.ErrNoActiveSeller, "")
		}
		if len(result.Errors) == len(buckets) && allNothingToInvoice(result.Errors) {
			return nil, appErrors.Clone(appErrors.ErrNothingToInvoice, "")
		}
	}
	return result, nil
}

func (s *InvoiceService) bucketError(bucket repository.InvoiceBucket, err error) IssueBucketError {
	out := IssueBucketError{OrganizationID: bucket.OrganizationID, TargetID: bucket.TargetID}
	switch {
	case errors.Is(err, repository.ErrNothingToInvoice):
		out.Code = appErrors.ErrNothingToInvoice.Code
		out.Message = appErrors.ErrNothingToInvoice.Message
	case errors.Is(err, repository.ErrNoActiveSeller):
		out.Code = appErrors.ErrNoActiveSeller.Code
		out.Message = appErrors.ErrNoActiveSeller.Message
	default:
		s.logger.Error("invoice issuance failed",
			zap.String("organization_id", bucket.OrganizationID),
			zap.String("target_id", bucket.TargetID),
			zap.Error(err))
		out.Code = appErrors.ErrInternal.Code
		out.Message = "issuance failed for this group"
	}
	return out
}

func allNothingToInvoice(errs []IssueBucketError) bool {
	for _, e := range errs {
		if e.Code != "NOTHING_TO_INVOICE" {
			return false
		}
	}
	return true
}

// MarkPaid settles an Issued invoice and cascades its rows to Paid.
func (s *InvoiceService) MarkPaid(ctx context.Context, actor *models.JWTClaims, id string, req MarkInvoicePaidRequest) (*models.InvoiceDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	invoice, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.Can(actor, policy.ActionInvoicePaid, policy.Resource{OrganizationID: invoice.OrganizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to settle invoices")
	}
	applied, err := s.repo.MarkPaid(ctx, id, strings.TrimSpace(req.PaymentRef))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark invoice paid")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only issued invoices can be marked paid")
	}
	s.metrics.RecordInvoicePaid()
	return s.Get(ctx, actor, id)
}

// Cancel voids an Issued invoice. Its rows stay linked for history but remain
// PendingPayment, eligible for manual follow-up.
func (s *InvoiceService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.InvoiceDetail, error) {
	invoice, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.Can(actor, policy.ActionInvoiceCancel, policy.Resource{OrganizationID: invoice.OrganizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to cancel invoices")
	}
	applied, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel invoice")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only issued invoices can be cancelled")
	}
	return s.Get(ctx, actor, id)
}

// RenderPDF produces the downloadable PDF document for an invoice, subject to
// the same visibility rules as Get.
func (s *InvoiceService) RenderPDF(ctx context.Context, actor *models.JWTClaims, id string) ([]byte, string, error) {
	invoice, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.pdf.Render(&invoice.Invoice)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice pdf")
	}
	filename := fmt.Sprintf("%s.pdf", invoice.InvoiceNo)
	return payload, filename, nil
}
