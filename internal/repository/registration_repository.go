package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

// RegistrationRepository manages competition event registrations. The shape
// mirrors EnrollmentRepository; the one extra concern is the fee snapshot
// copied from the event at submission time.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `er.id, er.organization_id, er.event_id, er.student_id, er.status, er.fee_amount, er.payment_ref,
        er.created_by, er.submitted_at, er.submitted_by, er.approved_at, er.approved_by, er.rejection_reason, er.paid_at,
        er.invoice_id, er.created_at, er.updated_at`

const registrationDetailColumns = registrationColumns + `,
        s.first_name_en || ' ' || s.last_name_en AS student_name, s.registration_no AS student_reg_no,
        e.code AS event_code, e.name AS event_name`

// List returns registrations filtered by the provided criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.EventRegistrationFilter) ([]models.EventRegistrationDetail, int, error) {
	base := `FROM event_registrations er
        JOIN students s ON s.id = er.student_id
        JOIN events e ON e.id = er.event_id`
	var conditions []string
	var args []interface{}

	if filter.OrganizationID != "" {
		conditions = append(conditions, fmt.Sprintf("er.organization_id = $%d", len(args)+1))
		args = append(args, filter.OrganizationID)
	}
	if filter.EventID != "" {
		conditions = append(conditions, fmt.Sprintf("er.event_id = $%d", len(args)+1))
		args = append(args, filter.EventID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("er.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("er.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.first_name_en) LIKE $%d OR LOWER(s.last_name_en) LIKE $%d OR LOWER(s.registration_no) LIKE $%d)", idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "er.created_at",
		"submitted_at": "er.submitted_at",
		"status":       "er.status",
		"student_name": "s.first_name_en",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "er.created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", registrationDetailColumns, base+clause, orderBy, order, size, offset)
	var registrations []models.EventRegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// FindByID returns a registration with student and event display fields.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.EventRegistrationDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM event_registrations er
        JOIN students s ON s.id = er.student_id
        JOIN events e ON e.id = er.event_id
        WHERE er.id = $1`, registrationDetailColumns)
	var detail models.EventRegistrationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByEventAndStudent returns the unique row for (event, student) if one
// exists. Re-registration reuses this row instead of inserting a duplicate.
func (r *RegistrationRepository) FindByEventAndStudent(ctx context.Context, eventID, studentID string) (*models.EventRegistration, error) {
	query := fmt.Sprintf("SELECT %s FROM event_registrations er WHERE er.event_id = $1 AND er.student_id = $2", registrationColumns)
	var registration models.EventRegistration
	if err := r.db.GetContext(ctx, &registration, query, eventID, studentID); err != nil {
		return nil, err
	}
	return &registration, nil
}

// Create persists a new Draft registration.
func (r *RegistrationRepository) Create(ctx context.Context, registration *models.EventRegistration) error {
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if registration.CreatedAt.IsZero() {
		registration.CreatedAt = now
	}
	registration.UpdatedAt = now
	if registration.Status == "" {
		registration.Status = models.StatusDraft
	}
	const query = `INSERT INTO event_registrations (id, organization_id, event_id, student_id, status, payment_ref, created_by, created_at, updated_at)
        VALUES (:id, :organization_id, :event_id, :student_id, :status, :payment_ref, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, registration); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// SubmitDrafts moves the selected Draft rows of one organization to
// Submitted and snapshots the event's current fee_per_student into
// fee_amount. Returns the IDs actually updated.
func (r *RegistrationRepository) SubmitDrafts(ctx context.Context, ids []string, organizationID, submittedBy string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `UPDATE event_registrations er
        SET status = $1, submitted_at = $2, submitted_by = $3, fee_amount = e.fee_per_student, updated_at = $2
        FROM events e
        WHERE e.id = er.event_id AND er.id = ANY($4) AND er.organization_id = $5 AND er.status = $6
        RETURNING er.id`
	now := time.Now().UTC()
	var submitted []string
	if err := r.db.SelectContext(ctx, &submitted, query,
		models.StatusSubmitted, now, submittedBy, pq.Array(ids), organizationID, models.StatusDraft); err != nil {
		return nil, fmt.Errorf("submit registrations: %w", err)
	}
	return submitted, nil
}

// Approve moves a Submitted row to PendingPayment, stamping the approver.
func (r *RegistrationRepository) Approve(ctx context.Context, id, approvedBy string) (bool, error) {
	const query = `UPDATE event_registrations
        SET status = $1, approved_at = $2, approved_by = $3, updated_at = $2
        WHERE id = $4 AND status = $5`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, models.StatusPendingPayment, now, approvedBy, id, models.StatusSubmitted)
	if err != nil {
		return false, fmt.Errorf("approve registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve registration: %w", err)
	}
	return affected > 0, nil
}

// Reject moves a row to Rejected from the caller-verified current status.
func (r *RegistrationRepository) Reject(ctx context.Context, id, reason string, from models.RegistrationStatus) (bool, error) {
	const query = `UPDATE event_registrations
        SET status = $1, rejection_reason = $2, updated_at = $3
        WHERE id = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, models.StatusRejected, reason, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("reject registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject registration: %w", err)
	}
	return affected > 0, nil
}

// MarkPaid records payment and an optional payment reference on an invoiced
// PendingPayment row.
func (r *RegistrationRepository) MarkPaid(ctx context.Context, id, paymentRef string) (bool, error) {
	const query = `UPDATE event_registrations
        SET status = $1, paid_at = $2, payment_ref = $3, updated_at = $2
        WHERE id = $4 AND status = $5 AND invoice_id IS NOT NULL`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, models.StatusPaid, now, paymentRef, id, models.StatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("mark registration paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark registration paid: %w", err)
	}
	return affected > 0, nil
}

// Advance performs a caller-validated transition between two statuses with no
// extra bookkeeping (Accepted).
func (r *RegistrationRepository) Advance(ctx context.Context, id string, from, to models.RegistrationStatus) (bool, error) {
	const query = `UPDATE event_registrations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("advance registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance registration: %w", err)
	}
	return affected > 0, nil
}

// ResetToDraft restarts a Rejected row, clearing the audit trail and the fee
// snapshot. Rows already linked to an invoice are never reset.
func (r *RegistrationRepository) ResetToDraft(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE event_registrations
        SET status = $1, submitted_at = NULL, submitted_by = NULL, approved_at = NULL, approved_by = NULL,
            rejection_reason = '', paid_at = NULL, fee_amount = NULL, payment_ref = '', updated_at = $2
        WHERE id = $3 AND status = $4 AND invoice_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, models.StatusDraft, time.Now().UTC(), id, models.StatusRejected)
	if err != nil {
		return false, fmt.Errorf("reset registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset registration: %w", err)
	}
	return affected > 0, nil
}

// CountByStatus aggregates registrations per status, optionally scoped to one
// organization.
func (r *RegistrationRepository) CountByStatus(ctx context.Context, organizationID string) (map[models.RegistrationStatus]int, error) {
	query := "SELECT status, COUNT(*) AS total FROM event_registrations"
	var args []interface{}
	if organizationID != "" {
		query += " WHERE organization_id = $1"
		args = append(args, organizationID)
	}
	query += " GROUP BY status"
	var rows []struct {
		Status models.RegistrationStatus `db:"status"`
		Total  int                       `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count registrations by status: %w", err)
	}
	counts := make(map[models.RegistrationStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
