package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportType enumerates the datasets the export pipeline can render.
type ExportType string

const (
	ExportTypeStudents      ExportType = "STUDENTS"
	ExportTypeEnrollments   ExportType = "ENROLLMENTS"
	ExportTypeRegistrations ExportType = "REGISTRATIONS"
	ExportTypeInvoices      ExportType = "INVOICES"
)

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is the persisted metadata for a queued dataset export.
// OrganizationID is nil for admin platform-wide exports; for org users it pins
// the dataset to their own organization.
type ExportJob struct {
	ID             string          `db:"id" json:"id"`
	Type           ExportType      `db:"type" json:"type"`
	Params         ExportJobParams `db:"params" json:"params"`
	Status         ExportStatus    `db:"status" json:"status"`
	Progress       int             `db:"progress" json:"progress"`
	ResultURL      *string         `db:"result_url" json:"result_url,omitempty"`
	RequestedBy    string          `db:"requested_by" json:"requested_by"`
	OrganizationID *string         `db:"organization_id" json:"organization_id,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	FinishedAt     *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage   *string         `db:"error_message" json:"error_message,omitempty"`
}

// ExportJobParams stores request-scoped filters persisted as JSONB.
type ExportJobParams struct {
	Format   ExportFormat `json:"format"`
	CourseID string       `json:"courseId,omitempty"`
	EventID  string       `json:"eventId,omitempty"`
	Status   string       `json:"status,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p ExportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ExportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ExportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportJobParams", value)
	}
	if len(data) == 0 {
		*p = ExportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export job params: %w", err)
	}
	return nil
}
