package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	FindByID(ctx context.Context, id string) (*models.Event, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	SetStatus(ctx context.Context, id string, status models.EventStatus) error
}

// EventRequest is the payload for creating or updating a competition event.
type EventRequest struct {
	Code          string  `json:"code" validate:"required,max=50"`
	Name          string  `json:"name" validate:"required,max=255"`
	Season        string  `json:"season" validate:"omitempty,max=50"`
	City          string  `json:"city" validate:"omitempty,max=100"`
	Deadline      *string `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
	FeePerStudent string  `json:"fee_per_student" validate:"required"`
	Notes         string  `json:"notes" validate:"omitempty,max=1000"`
}

// EventService manages competition events.
type EventService struct {
	repo      eventRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService constructs an EventService.
func NewEventService(repo eventRepository, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{repo: repo, validator: validate, logger: logger}
}

// List returns events plus pagination data.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return events, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an event by id.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// Create adds an event in Open status.
func (s *EventService) Create(ctx context.Context, req EventRequest) (*models.Event, error) {
	event, err := s.buildEvent(ctx, req, &models.Event{Status: models.EventStatusOpen}, "")
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	return event, nil
}

// Update edits an event. Fee changes never touch existing fee snapshots on
// submitted registrations.
func (s *EventService) Update(ctx context.Context, id string, req EventRequest) (*models.Event, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	event, err := s.buildEvent(ctx, req, existing, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	return event, nil
}

// Open re-opens an event for registration.
func (s *EventService) Open(ctx context.Context, id string) (*models.Event, error) {
	return s.setStatus(ctx, id, models.EventStatusOpen)
}

// Close stops new registrations. In-flight rows continue their lifecycle.
func (s *EventService) Close(ctx context.Context, id string) (*models.Event, error) {
	return s.setStatus(ctx, id, models.EventStatusClosed)
}

func (s *EventService) setStatus(ctx context.Context, id string, status models.EventStatus) (*models.Event, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Status == status {
		return event, nil
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event status")
	}
	event.Status = status
	return event, nil
}

func (s *EventService) buildEvent(ctx context.Context, req EventRequest, event *models.Event, excludeID string) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check event code uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "event code already used")
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(req.FeePerStudent))
	if err != nil || fee.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fee_per_student must be a non-negative decimal")
	}
	event.Code = code
	event.Name = strings.TrimSpace(req.Name)
	event.Season = strings.TrimSpace(req.Season)
	event.City = strings.TrimSpace(req.City)
	event.FeePerStudent = fee
	event.Notes = strings.TrimSpace(req.Notes)
	if req.Deadline != nil {
		deadline, err := time.Parse("2006-01-02", *req.Deadline)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "deadline must be YYYY-MM-DD")
		}
		event.Deadline = &deadline
	} else {
		event.Deadline = nil
	}
	return event, nil
}
