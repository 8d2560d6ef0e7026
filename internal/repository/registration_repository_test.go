package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

func newRegistrationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	cleanup := func() { _ = sqlxDB.Close() }
	return sqlxDB, mock, cleanup
}

func registrationDetailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "organization_id", "event_id", "student_id", "status", "fee_amount", "payment_ref",
		"created_by", "submitted_at", "submitted_by", "approved_at", "approved_by", "rejection_reason", "paid_at",
		"invoice_id", "created_at", "updated_at",
		"student_name", "student_reg_no", "event_code", "event_name",
	})
}

func TestRegistrationRepositoryList(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now().UTC()
	rows := registrationDetailRows().AddRow(
		"er-1", "org-1", "ev-1", "st-1", models.StatusSubmitted, "120.00", "",
		nil, now, "u-1", nil, nil, "", nil,
		nil, now, now,
		"Sara Al Amri", "UCMAS-KSA-2026-000001", "NC26", "National Competition 2026",
	)
	mock.ExpectQuery(regexp.QuoteMeta("er.organization_id = $1")+".+"+regexp.QuoteMeta("er.event_id = $2")).
		WithArgs("org-1", "ev-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM event_registrations er")).
		WithArgs("org-1", "ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	registrations, total, err := repo.List(context.Background(), models.EventRegistrationFilter{
		OrganizationID: "org-1",
		EventID:        "ev-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, registrations, 1)
	assert.Equal(t, "NC26", registrations[0].EventCode)
	assert.Equal(t, "Sara Al Amri", registrations[0].StudentName)
	require.True(t, registrations[0].FeeAmount.Valid)
	assert.Equal(t, "120.00", registrations[0].FeeAmount.Decimal.StringFixed(2))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositorySubmitDraftsSnapshotsFee(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("fee_amount = e.fee_per_student")).
		WithArgs(models.StatusSubmitted, sqlmock.AnyArg(), "u-1", sqlmock.AnyArg(), "org-1", models.StatusDraft).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("er-1"))

	submitted, err := repo.SubmitDrafts(context.Background(), []string{"er-1", "er-2"}, "org-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"er-1"}, submitted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositorySubmitDraftsEmpty(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	submitted, err := repo.SubmitDrafts(context.Background(), nil, "org-1", "u-1")
	require.NoError(t, err)
	assert.Empty(t, submitted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryMarkPaid(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("invoice_id IS NOT NULL")).
		WithArgs(models.StatusPaid, sqlmock.AnyArg(), "BANK-42", "er-1", models.StatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.MarkPaid(context.Background(), "er-1", "BANK-42")
	require.NoError(t, err)
	assert.True(t, applied)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryMarkPaidRequiresInvoiceLink(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("invoice_id IS NOT NULL")).
		WithArgs(models.StatusPaid, sqlmock.AnyArg(), "", "er-1", models.StatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.MarkPaid(context.Background(), "er-1", "")
	require.NoError(t, err)
	assert.False(t, applied)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryResetToDraftClearsSnapshot(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("fee_amount = NULL")).
		WithArgs(models.StatusDraft, sqlmock.AnyArg(), "er-1", models.StatusRejected).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.ResetToDraft(context.Background(), "er-1")
	require.NoError(t, err)
	assert.True(t, applied)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	rows := sqlmock.NewRows([]string{"status", "total"}).
		AddRow(models.StatusDraft, 4).
		AddRow(models.StatusPaid, 2)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status")).
		WithArgs("org-1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.StatusDraft])
	assert.Equal(t, 2, counts[models.StatusPaid])

	assert.NoError(t, mock.ExpectationsWereMet())
}
