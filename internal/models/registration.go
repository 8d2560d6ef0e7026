package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventRegistration links (organization, event, student), unique per
// (event, student). FeeAmount is the price snapshot captured at submission;
// once the row reaches PENDING_PAYMENT it never tracks later changes to the
// event's fee_per_student.
type EventRegistration struct {
	ID              string              `db:"id" json:"id"`
	OrganizationID  string              `db:"organization_id" json:"organization_id"`
	EventID         string              `db:"event_id" json:"event_id"`
	StudentID       string              `db:"student_id" json:"student_id"`
	Status          RegistrationStatus  `db:"status" json:"status"`
	FeeAmount       decimal.NullDecimal `db:"fee_amount" json:"fee_amount,omitempty"`
	PaymentRef      string              `db:"payment_ref" json:"payment_ref,omitempty"`
	CreatedBy       *string             `db:"created_by" json:"created_by,omitempty"`
	SubmittedAt     *time.Time          `db:"submitted_at" json:"submitted_at,omitempty"`
	SubmittedBy     *string             `db:"submitted_by" json:"submitted_by,omitempty"`
	ApprovedAt      *time.Time          `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy      *string             `db:"approved_by" json:"approved_by,omitempty"`
	RejectionReason string              `db:"rejection_reason" json:"rejection_reason,omitempty"`
	PaidAt          *time.Time          `db:"paid_at" json:"paid_at,omitempty"`
	InvoiceID       *string             `db:"invoice_id" json:"invoice_id,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// EventRegistrationDetail enriches a registration with display fields.
type EventRegistrationDetail struct {
	EventRegistration
	StudentName  string `db:"student_name" json:"student_name"`
	StudentRegNo string `db:"student_reg_no" json:"student_reg_no"`
	EventCode    string `db:"event_code" json:"event_code"`
	EventName    string `db:"event_name" json:"event_name"`
}

// EventRegistrationFilter provides filters for listing registrations.
type EventRegistrationFilter struct {
	OrganizationID string
	EventID        string
	StudentID      string
	Status         RegistrationStatus
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
