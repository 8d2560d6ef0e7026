package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/policy"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type dashboardOrganizationCounter interface {
	CountByStatus(ctx context.Context) (map[models.OrganizationStatus]int, error)
}

type dashboardStudentCounter interface {
	Count(ctx context.Context, organizationID string) (int, error)
}

type dashboardEnrollmentCounter interface {
	CountByStatus(ctx context.Context, organizationID string) (map[models.RegistrationStatus]int, error)
}

type dashboardRegistrationCounter interface {
	CountByStatus(ctx context.Context, organizationID string) (map[models.RegistrationStatus]int, error)
}

type dashboardInvoiceCounter interface {
	CountByStatus(ctx context.Context, organizationID string) (map[models.InvoiceStatus]int, error)
	SumPaidTotals(ctx context.Context, organizationID string) (decimal.Decimal, error)
}

type summaryCache interface {
	Get(ctx context.Context, scope string) ([]byte, error)
	Set(ctx context.Context, scope string, payload []byte) error
}

// DashboardSummary is the KPI payload. OrganizationsByStatus is only present
// for platform admins.
type DashboardSummary struct {
	OrganizationsByStatus map[models.OrganizationStatus]int `json:"organizations_by_status,omitempty"`
	StudentCount          int                               `json:"student_count"`
	EnrollmentsByStatus   map[models.RegistrationStatus]int `json:"enrollments_by_status"`
	RegistrationsByStatus map[models.RegistrationStatus]int `json:"registrations_by_status"`
	InvoicesByStatus      map[models.InvoiceStatus]int      `json:"invoices_by_status"`
	Revenue               decimal.Decimal                   `json:"revenue"`
}

// DashboardService aggregates KPIs across the portal's repositories.
type DashboardService struct {
	organizations dashboardOrganizationCounter
	students      dashboardStudentCounter
	enrollments   dashboardEnrollmentCounter
	registrations dashboardRegistrationCounter
	invoices      dashboardInvoiceCounter
	cache         summaryCache
	metrics       *MetricsService
	logger        *zap.Logger
}

// NewDashboardService constructs the dashboard service. cache and metrics
// may be nil; summaries are then recomputed on every request.
func NewDashboardService(
	organizations dashboardOrganizationCounter,
	students dashboardStudentCounter,
	enrollments dashboardEnrollmentCounter,
	registrations dashboardRegistrationCounter,
	invoices dashboardInvoiceCounter,
	cache summaryCache,
	metrics *MetricsService,
	logger *zap.Logger,
) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		organizations: organizations,
		students:      students,
		enrollments:   enrollments,
		registrations: registrations,
		invoices:      invoices,
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
	}
}

// Summary returns the KPIs visible to the actor: platform-wide for admins,
// scoped to their organization for org users. The second return value reports
// whether the payload was served from cache.
func (s *DashboardService) Summary(ctx context.Context, actor *models.JWTClaims) (*DashboardSummary, bool, error) {
	if !policy.Can(actor, policy.ActionDashboardView, policy.Resource{}) {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view the dashboard")
	}
	scope := policy.ScopeOrganization(actor)

	if s.cache != nil {
		readStart := time.Now()
		raw, err := s.cache.Get(ctx, scope)
		s.metrics.RecordCacheOperation(err == nil, time.Since(readStart))
		if err == nil {
			var cached DashboardSummary
			if unmarshalErr := json.Unmarshal(raw, &cached); unmarshalErr == nil {
				return &cached, true, nil
			}
		} else if err != appErrors.ErrCacheMiss {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	computeStart := time.Now()
	summary := &DashboardSummary{}

	if scope == "" {
		orgCounts, err := s.organizations.CountByStatus(ctx)
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count organizations")
		}
		summary.OrganizationsByStatus = orgCounts
	}

	studentCount, err := s.students.Count(ctx, scope)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	summary.StudentCount = studentCount

	enrollmentCounts, err := s.enrollments.CountByStatus(ctx, scope)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	summary.EnrollmentsByStatus = enrollmentCounts

	registrationCounts, err := s.registrations.CountByStatus(ctx, scope)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}
	summary.RegistrationsByStatus = registrationCounts

	invoiceCounts, err := s.invoices.CountByStatus(ctx, scope)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count invoices")
	}
	summary.InvoicesByStatus = invoiceCounts

	revenue, err := s.invoices.SumPaidTotals(ctx, scope)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum revenue")
	}
	summary.Revenue = revenue
	s.metrics.ObserveDBQuery("dashboard_summary", time.Since(computeStart))

	if s.cache != nil {
		if payload, err := json.Marshal(summary); err == nil {
			writeStart := time.Now()
			if err := s.cache.Set(ctx, scope, payload); err != nil {
				s.logger.Warn("dashboard cache write failed", zap.Error(err))
			} else {
				s.metrics.ObserveCacheWrite(time.Since(writeStart))
			}
		}
	}

	return summary, false, nil
}
