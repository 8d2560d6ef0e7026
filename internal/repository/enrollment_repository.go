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

// EnrollmentRepository manages course enrollment rows. Every lifecycle update
// carries the expected current status in its WHERE clause, so a row that
// moved under a racing request is simply not updated.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `ce.id, ce.organization_id, ce.student_id, ce.course_id, ce.status, ce.created_by,
        ce.submitted_at, ce.submitted_by, ce.approved_at, ce.approved_by, ce.rejection_reason, ce.paid_at, ce.invoice_id,
        ce.created_at, ce.updated_at`

const enrollmentDetailColumns = enrollmentColumns + `,
        s.first_name_en || ' ' || s.last_name_en AS student_name, s.registration_no AS student_reg_no,
        c.name AS course_name, c.level AS course_level`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.CourseEnrollmentFilter) ([]models.CourseEnrollmentDetail, int, error) {
	base := `FROM course_enrollments ce
        JOIN students s ON s.id = ce.student_id
        JOIN courses c ON c.id = ce.course_id`
	var conditions []string
	var args []interface{}

	if filter.OrganizationID != "" {
		conditions = append(conditions, fmt.Sprintf("ce.organization_id = $%d", len(args)+1))
		args = append(args, filter.OrganizationID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("ce.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("ce.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("ce.status = $%d", len(args)+1))
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
		"created_at":   "ce.created_at",
		"submitted_at": "ce.submitted_at",
		"status":       "ce.status",
		"student_name": "s.first_name_en",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "ce.created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", enrollmentDetailColumns, base+clause, orderBy, order, size, offset)
	var enrollments []models.CourseEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment with student and course display fields.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.CourseEnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_enrollments ce
        JOIN students s ON s.id = ce.student_id
        JOIN courses c ON c.id = ce.course_id
        WHERE ce.id = $1`, enrollmentDetailColumns)
	var detail models.CourseEnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByStudentAndCourse returns the unique row for (student, course) if one
// exists. Re-registration reuses this row instead of inserting a duplicate.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.CourseEnrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM course_enrollments ce WHERE ce.student_id = $1 AND ce.course_id = $2", enrollmentColumns)
	var enrollment models.CourseEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create persists a new Draft enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.CourseEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.StatusDraft
	}
	const query = `INSERT INTO course_enrollments (id, organization_id, student_id, course_id, status, created_by, created_at, updated_at)
        VALUES (:id, :organization_id, :student_id, :course_id, :status, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// SubmitDrafts moves the selected Draft rows of one organization to
// Submitted, returning the IDs actually updated. Rows in another status or
// another organization are skipped rather than failing the batch.
func (r *EnrollmentRepository) SubmitDrafts(ctx context.Context, ids []string, organizationID, submittedBy string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `UPDATE course_enrollments
        SET status = $1, submitted_at = $2, submitted_by = $3, updated_at = $2
        WHERE id = ANY($4) AND organization_id = $5 AND status = $6
        RETURNING id`
	now := time.Now().UTC()
	var submitted []string
	if err := r.db.SelectContext(ctx, &submitted, query,
		models.StatusSubmitted, now, submittedBy, pq.Array(ids), organizationID, models.StatusDraft); err != nil {
		return nil, fmt.Errorf("submit enrollments: %w", err)
	}
	return submitted, nil
}

// Approve moves a Submitted row to PendingPayment, stamping the approver.
func (r *EnrollmentRepository) Approve(ctx context.Context, id, approvedBy string) (bool, error) {
	const query = `UPDATE course_enrollments
        SET status = $1, approved_at = $2, approved_by = $3, updated_at = $2
        WHERE id = $4 AND status = $5`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, models.StatusPendingPayment, now, approvedBy, id, models.StatusSubmitted)
	if err != nil {
		return false, fmt.Errorf("approve enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve enrollment: %w", err)
	}
	return affected > 0, nil
}

// Reject moves a row to Rejected from the caller-verified current status.
func (r *EnrollmentRepository) Reject(ctx context.Context, id, reason string, from models.RegistrationStatus) (bool, error) {
	const query = `UPDATE course_enrollments
        SET status = $1, rejection_reason = $2, updated_at = $3
        WHERE id = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, models.StatusRejected, reason, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("reject enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject enrollment: %w", err)
	}
	return affected > 0, nil
}

// MarkPaid records payment on an invoiced PendingPayment row.
func (r *EnrollmentRepository) MarkPaid(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE course_enrollments
        SET status = $1, paid_at = $2, updated_at = $2
        WHERE id = $3 AND status = $4 AND invoice_id IS NOT NULL`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, models.StatusPaid, now, id, models.StatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("mark enrollment paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark enrollment paid: %w", err)
	}
	return affected > 0, nil
}

// Advance performs a caller-validated transition between two statuses with no
// extra bookkeeping (Accepted, Enrolled, Completed, Dropped).
func (r *EnrollmentRepository) Advance(ctx context.Context, id string, from, to models.RegistrationStatus) (bool, error) {
	const query = `UPDATE course_enrollments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("advance enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance enrollment: %w", err)
	}
	return affected > 0, nil
}

// ResetToDraft restarts a Rejected or Dropped row, clearing the audit trail.
// Rows already linked to an invoice are never reset.
func (r *EnrollmentRepository) ResetToDraft(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE course_enrollments
        SET status = $1, submitted_at = NULL, submitted_by = NULL, approved_at = NULL, approved_by = NULL,
            rejection_reason = '', paid_at = NULL, updated_at = $2
        WHERE id = $3 AND status IN ($4, $5) AND invoice_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, models.StatusDraft, time.Now().UTC(), id, models.StatusRejected, models.StatusDropped)
	if err != nil {
		return false, fmt.Errorf("reset enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset enrollment: %w", err)
	}
	return affected > 0, nil
}

// CountByStatus aggregates enrollments per status, optionally scoped to one
// organization.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context, organizationID string) (map[models.RegistrationStatus]int, error) {
	query := "SELECT status, COUNT(*) AS total FROM course_enrollments"
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
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	counts := make(map[models.RegistrationStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
