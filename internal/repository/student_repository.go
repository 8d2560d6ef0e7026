package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

// StudentRepository manages persistence for the permanent student roster.
type StudentRepository struct {
	db     *sqlx.DB
	prefix string
}

// NewStudentRepository constructs a StudentRepository. prefix is the
// registration-number prefix, e.g. "UCMAS-KSA".
func NewStudentRepository(db *sqlx.DB, prefix string) *StudentRepository {
	if prefix == "" {
		prefix = "UCMAS-KSA"
	}
	return &StudentRepository{db: db, prefix: prefix}
}

const studentColumns = `s.id, s.organization_id, s.registration_no, s.first_name_en, s.last_name_en, s.first_name_ar, s.last_name_ar,
        s.date_of_birth, s.gender, s.guardian_name, s.guardian_phone, s.guardian_email, s.current_level, s.notes, s.created_at, s.updated_at`

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s JOIN organizations o ON o.id = s.organization_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.OrganizationID != "" {
		conditions = append(conditions, fmt.Sprintf("s.organization_id = $%d", len(args)+1))
		args = append(args, filter.OrganizationID)
	}
	if filter.Level != nil {
		conditions = append(conditions, fmt.Sprintf("s.current_level = $%d", len(args)+1))
		args = append(args, *filter.Level)
	}
	if filter.Gender != "" {
		conditions = append(conditions, fmt.Sprintf("s.gender = $%d", len(args)+1))
		args = append(args, filter.Gender)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(s.first_name_en) LIKE $%d OR LOWER(s.last_name_en) LIKE $%d OR s.first_name_ar LIKE $%d OR s.last_name_ar LIKE $%d OR LOWER(s.registration_no) LIKE $%d OR s.guardian_phone LIKE $%d OR LOWER(s.guardian_name) LIKE $%d)",
			idx, idx, idx, idx, idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"registration_no": "s.registration_no",
		"first_name_en":   "s.first_name_en",
		"current_level":   "s.current_level",
		"created_at":      "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "s.created_at"
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

	query := fmt.Sprintf(`SELECT %s, o.name_en AS organization_name %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		studentColumns, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s, o.name_en AS organization_name
        FROM students s JOIN organizations o ON o.id = s.organization_id WHERE s.id = $1`, studentColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new student, allocating the registration number from the
// per-year sequence inside the same transaction. The counter row is locked by
// the upsert, so two concurrent creations never share a number; a failed
// insert rolls the increment back with the rest of the transaction.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student create: %w", err)
	}

	if student.RegistrationNo == "" {
		year := now.Year()
		var lastNumber int
		const seqQuery = `INSERT INTO student_sequences (year, last_number) VALUES ($1, 1)
        ON CONFLICT (year) DO UPDATE SET last_number = student_sequences.last_number + 1
        RETURNING last_number`
		if err := tx.GetContext(ctx, &lastNumber, seqQuery, year); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("allocate registration number: %w", err)
		}
		student.RegistrationNo = fmt.Sprintf("%s-%d-%06d", r.prefix, year, lastNumber)
	}

	const query = `INSERT INTO students (id, organization_id, registration_no, first_name_en, last_name_en, first_name_ar, last_name_ar,
        date_of_birth, gender, guardian_name, guardian_phone, guardian_email, current_level, notes, created_at, updated_at)
        VALUES (:id, :organization_id, :registration_no, :first_name_en, :last_name_en, :first_name_ar, :last_name_ar,
        :date_of_birth, :gender, :guardian_name, :guardian_phone, :guardian_email, :current_level, :notes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, student); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create student: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit student create: %w", err)
	}
	return nil
}

// Update modifies an existing student. The registration number is never
// touched here.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET first_name_en = :first_name_en, last_name_en = :last_name_en, first_name_ar = :first_name_ar,
        last_name_ar = :last_name_ar, date_of_birth = :date_of_birth, gender = :gender, guardian_name = :guardian_name,
        guardian_phone = :guardian_phone, guardian_email = :guardian_email, current_level = :current_level, notes = :notes,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// HasNonDraftReferences reports whether the student is referenced by any
// enrollment or registration that has left Draft. Such students are immutable
// at the service boundary.
func (r *StudentRepository) HasNonDraftReferences(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT 1 WHERE EXISTS (
        SELECT 1 FROM course_enrollments WHERE student_id = $1 AND status <> $2
    ) OR EXISTS (
        SELECT 1 FROM event_registrations WHERE student_id = $1 AND status <> $2
    )`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, models.StatusDraft); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student references: %w", err)
	}
	return true, nil
}

// FindByRegistrationNo returns a student by registration number, used by the
// bulk importer to update rather than duplicate existing students.
func (r *StudentRepository) FindByRegistrationNo(ctx context.Context, registrationNo string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.registration_no = $1 LIMIT 1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, registrationNo); err != nil {
		return nil, err
	}
	return &student, nil
}

// Count returns the number of students, optionally scoped to one
// organization.
func (r *StudentRepository) Count(ctx context.Context, organizationID string) (int, error) {
	query := "SELECT COUNT(*) FROM students"
	var args []interface{}
	if organizationID != "" {
		query += " WHERE organization_id = $1"
		args = append(args, organizationID)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}
