package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/repository"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
	"github.com/ucmas-ksa/portal-api/pkg/jobs"
	"github.com/ucmas-ksa/portal-api/pkg/storage"
)

type mockExportJobStore struct {
	jobsByID map[string]*models.ExportJob
	updates  map[string][]repository.UpdateExportJobParams
	created  *models.ExportJob
}

func newMockExportJobStore() *mockExportJobStore {
	return &mockExportJobStore{
		jobsByID: make(map[string]*models.ExportJob),
		updates:  make(map[string][]repository.UpdateExportJobParams),
	}
}

func (m *mockExportJobStore) Create(_ context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now().UTC()
	m.created = job
	m.jobsByID[job.ID] = job
	return nil
}

func (m *mockExportJobStore) GetByID(_ context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobsByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *mockExportJobStore) Update(_ context.Context, id string, params repository.UpdateExportJobParams) error {
	m.updates[id] = append(m.updates[id], params)
	if job, ok := m.jobsByID[id]; ok {
		if params.Status != nil {
			job.Status = *params.Status
		}
		if params.Progress != nil {
			job.Progress = *params.Progress
		}
		if params.ResultURL != nil {
			job.ResultURL = params.ResultURL
		}
		if params.ErrorMessage != nil {
			job.ErrorMessage = params.ErrorMessage
		}
		if params.FinishedAt != nil {
			job.FinishedAt = params.FinishedAt
		}
	}
	return nil
}

func (m *mockExportJobStore) ListQueued(_ context.Context, _ int) ([]models.ExportJob, error) {
	var queued []models.ExportJob
	for _, job := range m.jobsByID {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (m *mockExportJobStore) ListFinishedBefore(_ context.Context, _ time.Time, _ int) ([]models.ExportJob, error) {
	return nil, nil
}

type mockJobQueue struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockJobQueue) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockExportStudents struct {
	rows []models.StudentDetail
}

func (m *mockExportStudents) List(_ context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	if filter.Page > 1 {
		return nil, len(m.rows), nil
	}
	return m.rows, len(m.rows), nil
}

type mockExportInvoices struct {
	rows []models.InvoiceDetail
}

func (m *mockExportInvoices) List(_ context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error) {
	if filter.Page > 1 {
		return nil, len(m.rows), nil
	}
	return m.rows, len(m.rows), nil
}

type mockGenerator struct {
	result *ExportResult
	err    error
	jobs   []string
}

func (m *mockGenerator) Generate(_ context.Context, job *models.ExportJob) (*ExportResult, error) {
	m.jobs = append(m.jobs, job.ID)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func newTestExporter(t *testing.T, students *mockExportStudents, invoices *mockExportInvoices) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(students, nil, nil, invoices, store, signer, ExportConfig{APIPrefix: "/api/v1"}, nil, nil, nil)
}

func newExportJobService(store *mockExportJobStore, queue *mockJobQueue, exporter *ExportService) *ExportJobService {
	return NewExportJobService(store, queue, exporter, nil, nil, ExportJobServiceConfig{})
}

func TestExportJobServiceCreateJobScopesOrganization(t *testing.T) {
	store := newMockExportJobStore()
	queue := &mockJobQueue{}
	svc := newExportJobService(store, queue, newTestExporter(t, &mockExportStudents{}, nil))

	status, err := svc.CreateJob(context.Background(), orgActor(models.RoleOrgManager, "org-1"), CreateExportRequest{
		Type:   models.ExportTypeStudents,
		Format: models.ExportFormatCSV,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, status.Status)
	require.NotNil(t, store.created.OrganizationID)
	assert.Equal(t, "org-1", *store.created.OrganizationID)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, store.created.ID, queue.enqueued[0].ID)
}

func TestExportJobServiceCreateJobAdminIsPlatformWide(t *testing.T) {
	store := newMockExportJobStore()
	queue := &mockJobQueue{}
	svc := newExportJobService(store, queue, newTestExporter(t, &mockExportStudents{}, nil))

	_, err := svc.CreateJob(context.Background(), adminActor(), CreateExportRequest{
		Type:   models.ExportTypeInvoices,
		Format: models.ExportFormatPDF,
	})
	require.NoError(t, err)
	assert.Nil(t, store.created.OrganizationID)
}

func TestExportJobServiceCreateJobRejectsUnknownType(t *testing.T) {
	svc := newExportJobService(newMockExportJobStore(), &mockJobQueue{}, newTestExporter(t, &mockExportStudents{}, nil))

	_, err := svc.CreateJob(context.Background(), adminActor(), CreateExportRequest{
		Type:   "COURSES",
		Format: models.ExportFormatCSV,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportJobServiceCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	store := newMockExportJobStore()
	queue := &mockJobQueue{err: errors.New("queue stopped")}
	svc := newExportJobService(store, queue, newTestExporter(t, &mockExportStudents{}, nil))

	_, err := svc.CreateJob(context.Background(), adminActor(), CreateExportRequest{
		Type:   models.ExportTypeStudents,
		Format: models.ExportFormatCSV,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	updates := store.updates[store.created.ID]
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].Status)
	assert.Equal(t, models.ExportStatusFailed, *updates[0].Status)
	require.NotNil(t, updates[0].FinishedAt)
}

func TestExportJobServiceGetStatusHidesOtherOrganizations(t *testing.T) {
	store := newMockExportJobStore()
	otherOrg := "org-2"
	job := &models.ExportJob{
		Type:           models.ExportTypeStudents,
		Status:         models.ExportStatusFinished,
		OrganizationID: &otherOrg,
	}
	require.NoError(t, store.Create(context.Background(), job))
	svc := newExportJobService(store, &mockJobQueue{}, newTestExporter(t, &mockExportStudents{}, nil))

	_, err := svc.GetStatus(context.Background(), orgActor(models.RoleOrgStaff, "org-1"), job.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	status, err := svc.GetStatus(context.Background(), adminActor(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, status.Status)
}

func TestExportServiceGeneratesStudentCSV(t *testing.T) {
	students := &mockExportStudents{rows: []models.StudentDetail{
		{
			Student: models.Student{
				RegistrationNo: "UCMAS-KSA-2026-000001",
				FirstNameEN:    "Sara",
				LastNameEN:     "Al Amri",
				Gender:         "F",
				CurrentLevel:   4,
				GuardianName:   "Khalid Al Amri",
				GuardianPhone:  "+966512345678",
				DateOfBirth:    time.Date(2017, 3, 9, 0, 0, 0, 0, time.UTC),
				CreatedAt:      time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
			},
			OrganizationName: "Al Noor School",
		},
	}}
	exporter := newTestExporter(t, students, nil)
	orgID := "org-1"
	job := &models.ExportJob{
		ID:             uuid.NewString(),
		Type:           models.ExportTypeStudents,
		Params:         models.ExportJobParams{Format: models.ExportFormatCSV},
		OrganizationID: &orgID,
	}

	result, err := exporter.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.RelativePath, "students_org-1_"))
	assert.True(t, strings.HasSuffix(result.RelativePath, ".csv"))
	assert.Contains(t, result.URL, "/api/v1/export/")

	file, err := exporter.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	content := string(payload)
	assert.Contains(t, content, "Registration No")
	assert.Contains(t, content, "UCMAS-KSA-2026-000001")
	assert.Contains(t, content, "Al Noor School")
}

func TestExportServiceGeneratesInvoicePDF(t *testing.T) {
	invoices := &mockExportInvoices{rows: []models.InvoiceDetail{
		{
			Invoice: models.Invoice{
				InvoiceNo:   "COURSE-2026-000003",
				InvoiceType: models.InvoiceTypeCourse,
				Status:      models.InvoiceStatusPaid,
				InvoiceDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
				Subtotal:    decimal.RequireFromString("300.00"),
				VATAmount:   decimal.RequireFromString("45.00"),
				Total:       decimal.RequireFromString("345.00"),
			},
			OrganizationName: "Al Noor School",
		},
	}}
	exporter := newTestExporter(t, nil, invoices)
	job := &models.ExportJob{
		ID:     uuid.NewString(),
		Type:   models.ExportTypeInvoices,
		Params: models.ExportJobParams{Format: models.ExportFormatPDF},
	}

	result, err := exporter.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.RelativePath, "invoices_all_"))
	assert.True(t, strings.HasSuffix(result.RelativePath, ".pdf"))

	file, err := exporter.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestExportJobServiceResolveDownload(t *testing.T) {
	students := &mockExportStudents{rows: []models.StudentDetail{
		{Student: models.Student{RegistrationNo: "UCMAS-KSA-2026-000002"}, OrganizationName: "Al Noor School"},
	}}
	exporter := newTestExporter(t, students, nil)
	store := newMockExportJobStore()
	svc := newExportJobService(store, &mockJobQueue{}, exporter)

	job := &models.ExportJob{
		Type:        models.ExportTypeStudents,
		Params:      models.ExportJobParams{Format: models.ExportFormatCSV},
		Status:      models.ExportStatusQueued,
		RequestedBy: "u-1",
	}
	require.NoError(t, store.Create(context.Background(), job))

	worker := NewExportWorker(store, exporter, 3, nil)
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: job.ID}))

	stored := store.jobsByID[job.ID]
	require.Equal(t, models.ExportStatusFinished, stored.Status)
	require.NotNil(t, stored.ResultURL)
	token := (*stored.ResultURL)[strings.LastIndex(*stored.ResultURL, "/")+1:]

	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ExportFormatCSV, download.Format)
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))

	payload, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "UCMAS-KSA-2026-000002")

	_, err = svc.ResolveDownload(context.Background(), token+"x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportJobServiceResolveDownloadNotReady(t *testing.T) {
	exporter := newTestExporter(t, &mockExportStudents{}, nil)
	store := newMockExportJobStore()
	svc := newExportJobService(store, &mockJobQueue{}, exporter)

	job := &models.ExportJob{Type: models.ExportTypeStudents, Status: models.ExportStatusProcessing}
	require.NoError(t, store.Create(context.Background(), job))
	token, _, err := storage.NewSignedURLSigner("test-secret", time.Hour).Generate(job.ID, "students_all_20260101.csv")
	require.NoError(t, err)
	url := "/api/v1/export/" + token
	job.ResultURL = &url
	store.jobsByID[job.ID] = job

	_, err = svc.ResolveDownload(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportWorkerRequeuesBeforeFailing(t *testing.T) {
	store := newMockExportJobStore()
	job := &models.ExportJob{Type: models.ExportTypeStudents, Status: models.ExportStatusQueued}
	require.NoError(t, store.Create(context.Background(), job))

	generator := &mockGenerator{err: errors.New("render failed")}
	worker := NewExportWorker(store, generator, 2, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 0})
	require.Error(t, err)
	updates := store.updates[job.ID]
	require.Len(t, updates, 2)
	assert.Equal(t, models.ExportStatusProcessing, *updates[0].Status)
	assert.Equal(t, models.ExportStatusQueued, *updates[1].Status)
	assert.Nil(t, updates[1].FinishedAt)

	err = worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 2})
	require.Error(t, err)
	updates = store.updates[job.ID]
	require.Len(t, updates, 4)
	assert.Equal(t, models.ExportStatusFailed, *updates[3].Status)
	assert.Equal(t, 100, *updates[3].Progress)
	require.NotNil(t, updates[3].ErrorMessage)
	assert.Equal(t, "render failed", *updates[3].ErrorMessage)
	require.NotNil(t, updates[3].FinishedAt)
}

func TestExportJobServiceRecoverPendingJobs(t *testing.T) {
	store := newMockExportJobStore()
	queue := &mockJobQueue{}
	svc := newExportJobService(store, queue, newTestExporter(t, &mockExportStudents{}, nil))

	queuedJob := &models.ExportJob{Type: models.ExportTypeStudents, Status: models.ExportStatusQueued}
	finishedJob := &models.ExportJob{Type: models.ExportTypeInvoices, Status: models.ExportStatusFinished}
	require.NoError(t, store.Create(context.Background(), queuedJob))
	require.NoError(t, store.Create(context.Background(), finishedJob))

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, queuedJob.ID, queue.enqueued[0].ID)
}
