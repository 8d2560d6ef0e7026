package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

func newInvoiceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sellerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "legal_name", "vat_number", "cr_number", "address_line", "city", "postal_code", "phone", "email", "active", "created_at", "updated_at"}).
		AddRow("cp-1", "UCMAS KSA Co.", "310123456700003", "1010123456", "King Fahd Rd", "Riyadh", "12345", "+966500000000", "billing@example.com", true, time.Now(), time.Now())
}

func buyerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name_en", "name_ar", "org_type", "city", "contact_name", "contact_phone", "contact_email", "vat_number", "national_address", "status", "created_at", "updated_at"}).
		AddRow("org-1", "Al Noor School", "", "SCHOOL", "Jeddah", "Reema", "+966511111111", "", "310987654300003", "", "APPROVED", time.Now(), time.Now())
}

func TestInvoiceRepositoryList(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	cols := []string{"id", "invoice_no", "invoice_type", "status", "invoice_date", "organization_id", "course_id", "event_id",
		"seller_name", "seller_vat_number", "seller_cr_number", "seller_address", "seller_city", "seller_postal_code",
		"seller_phone", "seller_email", "buyer_name", "buyer_vat_number", "buyer_national_address",
		"vat_rate", "subtotal", "vat_amount", "total", "issued_by", "issued_at", "paid_at", "payment_ref",
		"created_at", "updated_at", "organization_name"}
	rows := sqlmock.NewRows(cols).
		AddRow("inv-1", "COURSE-2026-000001", "COURSE", "ISSUED", time.Now(), "org-1", "c-1", nil,
			"UCMAS KSA Co.", "310123456700003", "", "", "", "", "", "", "Al Noor School", "", "",
			"0.15", "300.00", "45.00", "345.00", "u-1", time.Now(), nil, "", time.Now(), time.Now(), "Al Noor School")

	mock.ExpectQuery(regexp.QuoteMeta("i.organization_id = $1") + ".+" + regexp.QuoteMeta("i.status = $2")).
		WithArgs("org-1", models.InvoiceStatusIssued).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM invoices i")).
		WithArgs("org-1", models.InvoiceStatusIssued).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.InvoiceFilter{
		OrganizationID: "org-1",
		Status:         models.InvoiceStatusIssued,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "COURSE-2026-000001", list[0].InvoiceNo)
	assert.Equal(t, "Al Noor School", list[0].OrganizationName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryListCourseBuckets(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	rows := sqlmock.NewRows([]string{"organization_id", "target_id"}).
		AddRow("org-1", "c-1").
		AddRow("org-2", "c-1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT organization_id, course_id AS target_id FROM course_enrollments")).
		WithArgs(models.StatusPendingPayment).
		WillReturnRows(rows)

	buckets, err := repo.ListCourseBuckets(context.Background(), "", "", nil)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "org-1", buckets[0].OrganizationID)
	assert.Equal(t, "c-1", buckets[0].TargetID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryIssueCourseInvoice(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)
	vatRate := decimal.RequireFromString("0.15")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_enrollments ce")).
		WithArgs("org-1", "c-1", models.StatusPendingPayment).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "fee_amount"}).
			AddRow("ce-1", "s-1", nil).
			AddRow("ce-2", "s-2", nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "level", "name", "active", "fee", "start_date", "created_at", "updated_at"}).
			AddRow("c-1", 3, "Level 3", true, "150.00", nil, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM company_profiles WHERE active = TRUE")).
		WillReturnRows(sellerRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM organizations WHERE id = $1")).
		WithArgs("org-1").
		WillReturnRows(buyerRows())
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO invoice_sequences")).
		WillReturnRows(sqlmock.NewRows([]string{"last_number"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO invoices")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO invoice_items")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO invoice_items")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_enrollments SET invoice_id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING subtotal, vat_amount, total")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"subtotal", "vat_amount", "total"}).AddRow("300.00", "45.00", "345.00"))
	mock.ExpectCommit()

	invoice, err := repo.IssueCourseInvoice(context.Background(), "org-1", "c-1", nil, "u-1", vatRate)
	require.NoError(t, err)

	year := time.Now().UTC().Year()
	assert.Equal(t, fmt.Sprintf("COURSE-%d-000007", year), invoice.InvoiceNo)
	assert.Equal(t, models.InvoiceStatusIssued, invoice.Status)
	assert.Equal(t, "UCMAS KSA Co.", invoice.SellerName)
	assert.Equal(t, "Al Noor School", invoice.BuyerName)
	require.Len(t, invoice.Items, 2)
	assert.Equal(t, "Course Enrollment: Level 3 (Level 3)", invoice.Items[0].Description)
	assert.True(t, invoice.Items[0].LineSubtotal.Equal(decimal.RequireFromString("150.00")))
	assert.True(t, invoice.Items[0].LineVAT.Equal(decimal.RequireFromString("22.50")))
	assert.True(t, invoice.Items[0].LineTotal.Equal(decimal.RequireFromString("172.50")))
	assert.True(t, invoice.Total.Equal(decimal.RequireFromString("345.00")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryIssueCourseInvoiceNothingEligible(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_enrollments ce")).
		WithArgs("org-1", "c-1", models.StatusPendingPayment).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "fee_amount"}))
	mock.ExpectRollback()

	_, err := repo.IssueCourseInvoice(context.Background(), "org-1", "c-1", nil, "u-1", decimal.RequireFromString("0.15"))
	assert.ErrorIs(t, err, ErrNothingToInvoice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryIssueCourseInvoiceNoActiveSeller(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_enrollments ce")).
		WithArgs("org-1", "c-1", models.StatusPendingPayment).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "fee_amount"}).AddRow("ce-1", "s-1", nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "level", "name", "active", "fee", "start_date", "created_at", "updated_at"}).
			AddRow("c-1", 1, "Level 1", true, "100.00", nil, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM company_profiles WHERE active = TRUE")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.IssueCourseInvoice(context.Background(), "org-1", "c-1", nil, "u-1", decimal.RequireFromString("0.15"))
	assert.ErrorIs(t, err, ErrNoActiveSeller)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryIssueEventInvoiceFeeSnapshot(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	// One row carries a submission-time fee snapshot; the other has none and
	// must be billed at zero, not at the event's current (raised) fee.
	mock.ExpectQuery(regexp.QuoteMeta("FROM event_registrations er")).
		WithArgs("org-1", "e-1", models.StatusPendingPayment).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "fee_amount"}).
			AddRow("er-1", "s-1", "90.00").
			AddRow("er-2", "s-2", nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE id = $1")).
		WithArgs("e-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "season", "city", "deadline", "status", "fee_per_student", "notes", "created_at", "updated_at"}).
			AddRow("e-1", "NC26", "National Competition 2026", "2026", "Riyadh", nil, "OPEN", "999.00", "", time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM company_profiles WHERE active = TRUE")).
		WillReturnRows(sellerRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM organizations WHERE id = $1")).
		WithArgs("org-1").
		WillReturnRows(buyerRows())
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO invoice_sequences")).
		WillReturnRows(sqlmock.NewRows([]string{"last_number"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO invoices")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO invoice_items")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO invoice_items")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE event_registrations SET invoice_id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING subtotal, vat_amount, total")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"subtotal", "vat_amount", "total"}).AddRow("90.00", "13.50", "103.50"))
	mock.ExpectCommit()

	invoice, err := repo.IssueEventInvoice(context.Background(), "org-1", "e-1", nil, "u-1", decimal.RequireFromString("0.15"))
	require.NoError(t, err)

	year := time.Now().UTC().Year()
	assert.Equal(t, fmt.Sprintf("EVENT-%d-000001", year), invoice.InvoiceNo)
	require.Len(t, invoice.Items, 2)
	assert.Equal(t, "Competition Registration: NC26 - National Competition 2026", invoice.Items[0].Description)
	assert.True(t, invoice.Items[0].UnitPrice.Equal(decimal.RequireFromString("90.00")))
	assert.True(t, invoice.Items[1].UnitPrice.IsZero(), "missing snapshot must not pick up the live event fee")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryMarkPaid(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invoices SET status = $1, paid_at = $2, payment_ref = $3")).
		WithArgs(models.InvoiceStatusPaid, sqlmock.AnyArg(), "BANK-1234", "inv-1", models.InvoiceStatusIssued).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_enrollments SET status = $1")).
		WithArgs(models.StatusPaid, sqlmock.AnyArg(), "inv-1", models.StatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE event_registrations SET status = $1")).
		WithArgs(models.StatusPaid, sqlmock.AnyArg(), "BANK-1234", "inv-1", models.StatusPendingPayment).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	applied, err := repo.MarkPaid(context.Background(), "inv-1", "BANK-1234")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryMarkPaidNotIssued(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invoices SET status = $1, paid_at = $2, payment_ref = $3")).
		WithArgs(models.InvoiceStatusPaid, sqlmock.AnyArg(), "BANK-1234", "inv-1", models.InvoiceStatusIssued).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	applied, err := repo.MarkPaid(context.Background(), "inv-1", "BANK-1234")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4")).
		WithArgs(models.InvoiceStatusCancelled, sqlmock.AnyArg(), "inv-1", models.InvoiceStatusIssued).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.Cancel(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
