package models

import "time"

// CourseEnrollment links (organization, student, course), unique per
// (student, course). The invoice back-reference is set at most once, ever.
type CourseEnrollment struct {
	ID              string             `db:"id" json:"id"`
	OrganizationID  string             `db:"organization_id" json:"organization_id"`
	StudentID       string             `db:"student_id" json:"student_id"`
	CourseID        string             `db:"course_id" json:"course_id"`
	Status          RegistrationStatus `db:"status" json:"status"`
	CreatedBy       *string            `db:"created_by" json:"created_by,omitempty"`
	SubmittedAt     *time.Time         `db:"submitted_at" json:"submitted_at,omitempty"`
	SubmittedBy     *string            `db:"submitted_by" json:"submitted_by,omitempty"`
	ApprovedAt      *time.Time         `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy      *string            `db:"approved_by" json:"approved_by,omitempty"`
	RejectionReason string             `db:"rejection_reason" json:"rejection_reason,omitempty"`
	PaidAt          *time.Time         `db:"paid_at" json:"paid_at,omitempty"`
	InvoiceID       *string            `db:"invoice_id" json:"invoice_id,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}

// CourseEnrollmentDetail enriches an enrollment with display fields.
type CourseEnrollmentDetail struct {
	CourseEnrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentRegNo string `db:"student_reg_no" json:"student_reg_no"`
	CourseName   string `db:"course_name" json:"course_name"`
	CourseLevel  int    `db:"course_level" json:"course_level"`
}

// CourseEnrollmentFilter provides filters for listing enrollments.
type CourseEnrollmentFilter struct {
	OrganizationID string
	CourseID       string
	StudentID      string
	Status         RegistrationStatus
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
