package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/pkg/export"
	"github.com/ucmas-ksa/portal-api/pkg/storage"
)

const exportPageSize = 100

type exportStudentSource interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
}

type exportEnrollmentSource interface {
	List(ctx context.Context, filter models.CourseEnrollmentFilter) ([]models.CourseEnrollmentDetail, int, error)
}

type exportRegistrationSource interface {
	List(ctx context.Context, filter models.EventRegistrationFilter) ([]models.EventRegistrationDetail, int, error)
}

type exportInvoiceSource interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService builds dataset snapshots and persists rendered files.
type ExportService struct {
	students      exportStudentSource
	enrollments   exportEnrollmentSource
	registrations exportRegistrationSource
	invoices      exportInvoiceSource
	storage       fileStorage
	csv           csvRenderer
	pdf           pdfRenderer
	signer        *storage.SignedURLSigner
	logger        *zap.Logger
	cfg           ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(
	students exportStudentSource,
	enrollments exportEnrollmentSource,
	registrations exportRegistrationSource,
	invoices exportInvoiceSource,
	fileStore fileStorage,
	signer *storage.SignedURLSigner,
	cfg ExportConfig,
	logger *zap.Logger,
	csv csvRenderer,
	pdf pdfRenderer,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		students:      students,
		enrollments:   enrollments,
		registrations: registrations,
		invoices:      invoices,
		storage:       fileStore,
		csv:           csv,
		pdf:           pdf,
		signer:        signer,
		logger:        logger,
		cfg:           cfg,
	}
}

// Generate builds the dataset for a job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := "all"
	if job.OrganizationID != nil {
		scope = sanitizeFilename(*job.OrganizationID)
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), scope, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ExportTypeStudents:
		return s.buildStudentDataset(ctx, job)
	case models.ExportTypeEnrollments:
		return s.buildEnrollmentDataset(ctx, job)
	case models.ExportTypeRegistrations:
		return s.buildRegistrationDataset(ctx, job)
	case models.ExportTypeInvoices:
		return s.buildInvoiceDataset(ctx, job)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export type %s", job.Type)
	}
}

func (s *ExportService) buildStudentDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	headers := []string{"Registration No", "First Name (EN)", "Last Name (EN)", "Organization", "Date of Birth", "Gender", "Level", "Guardian Name", "Guardian Phone", "Created At"}
	var dataRows []map[string]string
	for page := 1; ; page++ {
		filter := models.StudentFilter{
			OrganizationID: derefOrg(job.OrganizationID),
			Page:           page,
			PageSize:       exportPageSize,
			SortBy:         "registration_no",
			SortOrder:      "asc",
		}
		rows, _, err := s.students.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, row := range rows {
			dataRows = append(dataRows, map[string]string{
				"Registration No": row.RegistrationNo,
				"First Name (EN)": row.FirstNameEN,
				"Last Name (EN)":  row.LastNameEN,
				"Organization":    row.OrganizationName,
				"Date of Birth":   row.DateOfBirth.Format("2006-01-02"),
				"Gender":          row.Gender,
				"Level":           fmt.Sprintf("%d", row.CurrentLevel),
				"Guardian Name":   row.GuardianName,
				"Guardian Phone":  row.GuardianPhone,
				"Created At":      row.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(rows) < exportPageSize {
			break
		}
	}
	return export.Dataset{Headers: headers, Rows: dataRows}, "Students Export", nil
}

func (s *ExportService) buildEnrollmentDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	headers := []string{"Student Reg No", "Student Name", "Course", "Level", "Status", "Submitted At", "Paid At", "Invoice ID"}
	var dataRows []map[string]string
	for page := 1; ; page++ {
		filter := models.CourseEnrollmentFilter{
			OrganizationID: derefOrg(job.OrganizationID),
			CourseID:       job.Params.CourseID,
			Status:         models.RegistrationStatus(job.Params.Status),
			Page:           page,
			PageSize:       exportPageSize,
			SortBy:         "created_at",
			SortOrder:      "asc",
		}
		rows, _, err := s.enrollments.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, row := range rows {
			dataRows = append(dataRows, map[string]string{
				"Student Reg No": row.StudentRegNo,
				"Student Name":   row.StudentName,
				"Course":         row.CourseName,
				"Level":          fmt.Sprintf("%d", row.CourseLevel),
				"Status":         string(row.Status),
				"Submitted At":   formatExportTime(row.SubmittedAt),
				"Paid At":        formatExportTime(row.PaidAt),
				"Invoice ID":     derefOrg(row.InvoiceID),
			})
		}
		if len(rows) < exportPageSize {
			break
		}
	}
	return export.Dataset{Headers: headers, Rows: dataRows}, "Course Enrollments Export", nil
}

func (s *ExportService) buildRegistrationDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	headers := []string{"Student Reg No", "Student Name", "Event Code", "Event", "Status", "Fee", "Payment Ref", "Submitted At", "Paid At"}
	var dataRows []map[string]string
	for page := 1; ; page++ {
		filter := models.EventRegistrationFilter{
			OrganizationID: derefOrg(job.OrganizationID),
			EventID:        job.Params.EventID,
			Status:         models.RegistrationStatus(job.Params.Status),
			Page:           page,
			PageSize:       exportPageSize,
			SortBy:         "created_at",
			SortOrder:      "asc",
		}
		rows, _, err := s.registrations.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, row := range rows {
			fee := ""
			if row.FeeAmount.Valid {
				fee = row.FeeAmount.Decimal.StringFixed(2)
			}
			dataRows = append(dataRows, map[string]string{
				"Student Reg No": row.StudentRegNo,
				"Student Name":   row.StudentName,
				"Event Code":     row.EventCode,
				"Event":          row.EventName,
				"Status":         string(row.Status),
				"Fee":            fee,
				"Payment Ref":    row.PaymentRef,
				"Submitted At":   formatExportTime(row.SubmittedAt),
				"Paid At":        formatExportTime(row.PaidAt),
			})
		}
		if len(rows) < exportPageSize {
			break
		}
	}
	return export.Dataset{Headers: headers, Rows: dataRows}, "Event Registrations Export", nil
}

func (s *ExportService) buildInvoiceDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	headers := []string{"Invoice No", "Type", "Status", "Organization", "Invoice Date", "Subtotal", "VAT", "Total", "Paid At"}
	var dataRows []map[string]string
	for page := 1; ; page++ {
		filter := models.InvoiceFilter{
			OrganizationID: derefOrg(job.OrganizationID),
			CourseID:       job.Params.CourseID,
			EventID:        job.Params.EventID,
			Status:         models.InvoiceStatus(job.Params.Status),
			Page:           page,
			PageSize:       exportPageSize,
			SortBy:         "invoice_no",
			SortOrder:      "asc",
		}
		rows, _, err := s.invoices.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, row := range rows {
			dataRows = append(dataRows, map[string]string{
				"Invoice No":   row.InvoiceNo,
				"Type":         string(row.InvoiceType),
				"Status":       string(row.Status),
				"Organization": row.OrganizationName,
				"Invoice Date": row.InvoiceDate.Format("2006-01-02"),
				"Subtotal":     row.Subtotal.StringFixed(2),
				"VAT":          row.VATAmount.StringFixed(2),
				"Total":        row.Total.StringFixed(2),
				"Paid At":      formatExportTime(row.PaidAt),
			})
		}
		if len(rows) < exportPageSize {
			break
		}
	}
	return export.Dataset{Headers: headers, Rows: dataRows}, "Invoices Export", nil
}

func derefOrg(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
