package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

// Issuance failure modes the service layer maps onto API error codes.
var (
	ErrNothingToInvoice = errors.New("no eligible rows to invoice")
	ErrNoActiveSeller   = errors.New("no active company profile")
)

// InvoiceRepository owns the invoice tables and the issuance transaction.
// Invoice numbers come exclusively from the invoice_sequences counter, which
// is only ever incremented inside that transaction, so numbers are gapless
// per (type, year).
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `i.id, i.invoice_no, i.invoice_type, i.status, i.invoice_date, i.organization_id, i.course_id, i.event_id,
        i.seller_name, i.seller_vat_number, i.seller_cr_number, i.seller_address, i.seller_city, i.seller_postal_code,
        i.seller_phone, i.seller_email, i.buyer_name, i.buyer_vat_number, i.buyer_national_address,
        i.vat_rate, i.subtotal, i.vat_amount, i.total, i.issued_by, i.issued_at, i.paid_at, i.payment_ref,
        i.created_at, i.updated_at`

// List returns invoices filtered by the provided criteria.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error) {
	base := `FROM invoices i JOIN organizations o ON o.id = i.organization_id`
	var conditions []string
	var args []interface{}

	if filter.OrganizationID != "" {
		conditions = append(conditions, fmt.Sprintf("i.organization_id = $%d", len(args)+1))
		args = append(args, filter.OrganizationID)
	}
	if filter.InvoiceType != "" {
		conditions = append(conditions, fmt.Sprintf("i.invoice_type = $%d", len(args)+1))
		args = append(args, filter.InvoiceType)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("i.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.EventID != "" {
		conditions = append(conditions, fmt.Sprintf("i.event_id = $%d", len(args)+1))
		args = append(args, filter.EventID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("i.invoice_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("i.invoice_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(i.invoice_no) LIKE $%d OR LOWER(o.name_en) LIKE $%d)", idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"invoice_no":   "i.invoice_no",
		"invoice_date": "i.invoice_date",
		"total":        "i.total",
		"status":       "i.status",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "invoice_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "i.invoice_date"
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

	query := fmt.Sprintf("SELECT %s, o.name_en AS organization_name %s ORDER BY %s %s LIMIT %d OFFSET %d",
		invoiceColumns, base+clause, orderBy, order, size, offset)
	var invoices []models.InvoiceDetail
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

// FindByID returns an invoice with its items.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	query := fmt.Sprintf("SELECT %s, o.name_en AS organization_name FROM invoices i JOIN organizations o ON o.id = i.organization_id WHERE i.id = $1", invoiceColumns)
	var invoice models.InvoiceDetail
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	invoice.Items = items
	return &invoice, nil
}

func (r *InvoiceRepository) listItems(ctx context.Context, invoiceID string) ([]models.InvoiceItem, error) {
	const query = `SELECT ii.id, ii.invoice_id, ii.student_id, ii.course_enrollment_id, ii.event_registration_id,
        ii.description, ii.qty, ii.unit_price, ii.line_subtotal, ii.line_vat, ii.line_total, ii.created_at,
        s.registration_no AS student_reg_no, s.first_name_en || ' ' || s.last_name_en AS student_name
        FROM invoice_items ii
        JOIN students s ON s.id = ii.student_id
        WHERE ii.invoice_id = $1
        ORDER BY s.registration_no`
	var items []models.InvoiceItem
	if err := r.db.SelectContext(ctx, &items, query, invoiceID); err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	return items, nil
}

// InvoiceBucket is one (organization, course|event) group of eligible rows.
type InvoiceBucket struct {
	OrganizationID string `db:"organization_id"`
	TargetID       string `db:"target_id"`
}

// ListCourseBuckets returns the (organization, course) pairs that currently
// hold at least one eligible enrollment. Filters narrow the scan; an empty
// ids slice means no id restriction.
func (r *InvoiceRepository) ListCourseBuckets(ctx context.Context, organizationID, courseID string, ids []string) ([]InvoiceBucket, error) {
	query := `SELECT DISTINCT organization_id, course_id AS target_id FROM course_enrollments
        WHERE status = $1 AND invoice_id IS NULL`
	args := []interface{}{models.StatusPendingPayment}
	if organizationID != "" {
		query += fmt.Sprintf(" AND organization_id = $%d", len(args)+1)
		args = append(args, organizationID)
	}
	if courseID != "" {
		query += fmt.Sprintf(" AND course_id = $%d", len(args)+1)
		args = append(args, courseID)
	}
	if len(ids) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(ids))
	}
	query += " ORDER BY organization_id, target_id"
	var buckets []InvoiceBucket
	if err := r.db.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, fmt.Errorf("list course buckets: %w", err)
	}
	return buckets, nil
}

// ListEventBuckets returns the (organization, event) pairs that currently
// hold at least one eligible registration.
func (r *InvoiceRepository) ListEventBuckets(ctx context.Context, organizationID, eventID string, ids []string) ([]InvoiceBucket, error) {
	query := `SELECT DISTINCT organization_id, event_id AS target_id FROM event_registrations
        WHERE status = $1 AND invoice_id IS NULL`
	args := []interface{}{models.StatusPendingPayment}
	if organizationID != "" {
		query += fmt.Sprintf(" AND organization_id = $%d", len(args)+1)
		args = append(args, organizationID)
	}
	if eventID != "" {
		query += fmt.Sprintf(" AND event_id = $%d", len(args)+1)
		args = append(args, eventID)
	}
	if len(ids) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(ids))
	}
	query += " ORDER BY organization_id, target_id"
	var buckets []InvoiceBucket
	if err := r.db.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, fmt.Errorf("list event buckets: %w", err)
	}
	return buckets, nil
}

// nextNumber increments the (type, year) counter and returns the new value.
// Must run inside the issuance transaction so a rollback also rolls the
// counter back, keeping the sequence gapless.
func nextNumber(ctx context.Context, tx *sqlx.Tx, invoiceType models.InvoiceType, year int) (int, error) {
	const query = `INSERT INTO invoice_sequences (invoice_type, year, last_number)
        VALUES ($1, $2, 1)
        ON CONFLICT (invoice_type, year)
        DO UPDATE SET last_number = invoice_sequences.last_number + 1
        RETURNING last_number`
	var lastNumber int
	if err := tx.GetContext(ctx, &lastNumber, query, invoiceType, year); err != nil {
		return 0, fmt.Errorf("allocate invoice number: %w", err)
	}
	return lastNumber, nil
}

type lockedRow struct {
	ID        string              `db:"id"`
	StudentID string              `db:"student_id"`
	FeeAmount decimal.NullDecimal `db:"fee_amount"`
}

// IssueCourseInvoice issues one invoice for eligible enrollments of a single
// (organization, course) bucket. Eligible means PendingPayment and not yet
// linked to any invoice; rows are re-verified under a row lock so a
// concurrent issuance of the same bucket bills each enrollment at most once.
// An empty ids slice means the whole bucket.
func (r *InvoiceRepository) IssueCourseInvoice(ctx context.Context, organizationID, courseID string, ids []string, issuedBy string, vatRate decimal.Decimal) (*models.Invoice, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin issuance: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	lockQuery := `SELECT ce.id, ce.student_id, NULL::numeric AS fee_amount FROM course_enrollments ce
        WHERE ce.organization_id = $1 AND ce.course_id = $2 AND ce.status = $3 AND ce.invoice_id IS NULL`
	args := []interface{}{organizationID, courseID, models.StatusPendingPayment}
	if len(ids) > 0 {
		lockQuery += fmt.Sprintf(" AND ce.id = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(ids))
	}
	lockQuery += " ORDER BY ce.id FOR UPDATE OF ce"

	var rows []lockedRow
	if err := tx.SelectContext(ctx, &rows, lockQuery, args...); err != nil {
		return nil, fmt.Errorf("lock enrollments: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNothingToInvoice
	}

	var course models.Course
	if err := tx.GetContext(ctx, &course, "SELECT id, level, name, active, fee, start_date, created_at, updated_at FROM courses WHERE id = $1", courseID); err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}

	description := fmt.Sprintf("Course Enrollment: %s (Level %d)", course.Name, course.Level)
	unitPrice := func(lockedRow) decimal.Decimal { return course.Fee }

	invoice, err := r.issue(ctx, tx, issueParams{
		invoiceType:    models.InvoiceTypeCourse,
		organizationID: organizationID,
		courseID:       &courseID,
		rows:           rows,
		description:    description,
		unitPrice:      unitPrice,
		issuedBy:       issuedBy,
		vatRate:        vatRate,
		linkTable:      "course_enrollments",
		itemFK:         "course_enrollment_id",
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit issuance: %w", err)
	}
	return invoice, nil
}

// IssueEventInvoice issues one invoice for eligible registrations of a single
// (organization, event) bucket. Unit prices come from each row's fee snapshot
// captured at submission, never from the event's current fee: a row without a
// snapshot is billed at zero so a later fee change cannot reprice it.
func (r *InvoiceRepository) IssueEventInvoice(ctx context.Context, organizationID, eventID string, ids []string, issuedBy string, vatRate decimal.Decimal) (*models.Invoice, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin issuance: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	lockQuery := `SELECT er.id, er.student_id, er.fee_amount FROM event_registrations er
        WHERE er.organization_id = $1 AND er.event_id = $2 AND er.status = $3 AND er.invoice_id IS NULL`
	args := []interface{}{organizationID, eventID, models.StatusPendingPayment}
	if len(ids) > 0 {
		lockQuery += fmt.Sprintf(" AND er.id = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(ids))
	}
	lockQuery += " ORDER BY er.id FOR UPDATE OF er"

	var rows []lockedRow
	if err := tx.SelectContext(ctx, &rows, lockQuery, args...); err != nil {
		return nil, fmt.Errorf("lock registrations: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNothingToInvoice
	}

	var event models.Event
	if err := tx.GetContext(ctx, &event, "SELECT id, code, name, season, city, deadline, status, fee_per_student, notes, created_at, updated_at FROM events WHERE id = $1", eventID); err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}

	description := fmt.Sprintf("Competition Registration: %s - %s", event.Code, event.Name)
	unitPrice := func(row lockedRow) decimal.Decimal {
		if row.FeeAmount.Valid {
			return row.FeeAmount.Decimal
		}
		return decimal.Zero
	}

	invoice, err := r.issue(ctx, tx, issueParams{
		invoiceType:    models.InvoiceTypeEvent,
		organizationID: organizationID,
		eventID:        &eventID,
		rows:           rows,
		description:    description,
		unitPrice:      unitPrice,
		issuedBy:       issuedBy,
		vatRate:        vatRate,
		linkTable:      "event_registrations",
		itemFK:         "event_registration_id",
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit issuance: %w", err)
	}
	return invoice, nil
}

type issueParams struct {
	invoiceType    models.InvoiceType
	organizationID string
	courseID       *string
	eventID        *string
	rows           []lockedRow
	description    string
	unitPrice      func(lockedRow) decimal.Decimal
	issuedBy       string
	vatRate        decimal.Decimal
	linkTable      string
	itemFK         string
}

func (r *InvoiceRepository) issue(ctx context.Context, tx *sqlx.Tx, p issueParams) (*models.Invoice, error) {
	var seller models.CompanyProfile
	const sellerQuery = `SELECT id, legal_name, vat_number, cr_number, address_line, city, postal_code, phone, email, active, created_at, updated_at
        FROM company_profiles WHERE active = TRUE ORDER BY created_at DESC LIMIT 1`
	if err := tx.GetContext(ctx, &seller, sellerQuery); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveSeller
		}
		return nil, fmt.Errorf("load active seller: %w", err)
	}

	var buyer models.Organization
	const buyerQuery = `SELECT id, name_en, name_ar, org_type, city, contact_name, contact_phone, contact_email,
        vat_number, national_address, status, created_at, updated_at FROM organizations WHERE id = $1`
	if err := tx.GetContext(ctx, &buyer, buyerQuery, p.organizationID); err != nil {
		return nil, fmt.Errorf("load buyer organization: %w", err)
	}

	now := time.Now().UTC()
	year := now.Year()
	lastNumber, err := nextNumber(ctx, tx, p.invoiceType, year)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		ID:                   uuid.NewString(),
		InvoiceNo:            fmt.Sprintf("%s-%d-%06d", p.invoiceType, year, lastNumber),
		InvoiceType:          p.invoiceType,
		Status:               models.InvoiceStatusIssued,
		InvoiceDate:          now,
		OrganizationID:       p.organizationID,
		CourseID:             p.courseID,
		EventID:              p.eventID,
		SellerName:           seller.LegalName,
		SellerVATNumber:      seller.VATNumber,
		SellerCRNumber:       seller.CRNumber,
		SellerAddress:        seller.AddressLine,
		SellerCity:           seller.City,
		SellerPostalCode:     seller.PostalCode,
		SellerPhone:          seller.Phone,
		SellerEmail:          seller.Email,
		BuyerName:            buyer.NameEN,
		BuyerVATNumber:       buyer.VATNumber,
		BuyerNationalAddress: buyer.NationalAddress,
		VATRate:              p.vatRate,
		IssuedBy:             &p.issuedBy,
		IssuedAt:             &now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	const headerQuery = `INSERT INTO invoices (id, invoice_no, invoice_type, status, invoice_date, organization_id, course_id, event_id,
        seller_name, seller_vat_number, seller_cr_number, seller_address, seller_city, seller_postal_code, seller_phone, seller_email,
        buyer_name, buyer_vat_number, buyer_national_address, vat_rate, subtotal, vat_amount, total,
        issued_by, issued_at, payment_ref, created_at, updated_at)
        VALUES (:id, :invoice_no, :invoice_type, :status, :invoice_date, :organization_id, :course_id, :event_id,
        :seller_name, :seller_vat_number, :seller_cr_number, :seller_address, :seller_city, :seller_postal_code, :seller_phone, :seller_email,
        :buyer_name, :buyer_vat_number, :buyer_national_address, :vat_rate, 0, 0, 0,
        :issued_by, :issued_at, :payment_ref, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, headerQuery, invoice); err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}

	itemQuery := fmt.Sprintf(`INSERT INTO invoice_items (id, invoice_id, student_id, %s, description, qty, unit_price,
        line_subtotal, line_vat, line_total, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, p.itemFK)
	rowIDs := make([]string, 0, len(p.rows))
	for _, row := range p.rows {
		unitPrice := p.unitPrice(row)
		subtotal, vat, total := models.ComputeLineAmounts(1, unitPrice, p.vatRate)
		item := models.InvoiceItem{
			ID:           uuid.NewString(),
			InvoiceID:    invoice.ID,
			StudentID:    row.StudentID,
			Description:  p.description,
			Qty:          1,
			UnitPrice:    unitPrice,
			LineSubtotal: subtotal,
			LineVAT:      vat,
			LineTotal:    total,
			CreatedAt:    now,
		}
		if _, err := tx.ExecContext(ctx, itemQuery,
			item.ID, item.InvoiceID, item.StudentID, row.ID, item.Description, item.Qty,
			item.UnitPrice, item.LineSubtotal, item.LineVAT, item.LineTotal, item.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert invoice item: %w", err)
		}
		rowID := row.ID
		if p.invoiceType == models.InvoiceTypeCourse {
			item.CourseEnrollmentID = &rowID
		} else {
			item.EventRegistrationID = &rowID
		}
		invoice.Items = append(invoice.Items, item)
		rowIDs = append(rowIDs, row.ID)
	}

	linkQuery := fmt.Sprintf("UPDATE %s SET invoice_id = $1, updated_at = $2 WHERE id = ANY($3)", p.linkTable)
	if _, err := tx.ExecContext(ctx, linkQuery, invoice.ID, now, pq.Array(rowIDs)); err != nil {
		return nil, fmt.Errorf("link rows to invoice: %w", err)
	}

	const rollupQuery = `UPDATE invoices SET
        subtotal = (SELECT COALESCE(SUM(line_subtotal), 0) FROM invoice_items WHERE invoice_id = $1),
        vat_amount = (SELECT COALESCE(SUM(line_vat), 0) FROM invoice_items WHERE invoice_id = $1),
        total = (SELECT COALESCE(SUM(line_total), 0) FROM invoice_items WHERE invoice_id = $1)
        WHERE id = $1
        RETURNING subtotal, vat_amount, total`
	if err := tx.QueryRowxContext(ctx, rollupQuery, invoice.ID).Scan(&invoice.Subtotal, &invoice.VATAmount, &invoice.Total); err != nil {
		return nil, fmt.Errorf("compute invoice totals: %w", err)
	}
	return invoice, nil
}

// MarkPaid settles an Issued invoice and cascades every PendingPayment row it
// bills to Paid in the same transaction.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id, paymentRef string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin mark paid: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const query = `UPDATE invoices SET status = $1, paid_at = $2, payment_ref = $3, updated_at = $2 WHERE id = $4 AND status = $5`
	res, err := tx.ExecContext(ctx, query, models.InvoiceStatusPaid, now, paymentRef, id, models.InvoiceStatusIssued)
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	const enrollQuery = `UPDATE course_enrollments SET status = $1, paid_at = $2, updated_at = $2 WHERE invoice_id = $3 AND status = $4`
	if _, err := tx.ExecContext(ctx, enrollQuery, models.StatusPaid, now, id, models.StatusPendingPayment); err != nil {
		return false, fmt.Errorf("settle enrollments: %w", err)
	}
	const regQuery = `UPDATE event_registrations SET status = $1, paid_at = $2, payment_ref = $3, updated_at = $2 WHERE invoice_id = $4 AND status = $5`
	if _, err := tx.ExecContext(ctx, regQuery, models.StatusPaid, now, paymentRef, id, models.StatusPendingPayment); err != nil {
		return false, fmt.Errorf("settle registrations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit mark paid: %w", err)
	}
	return true, nil
}

// Cancel voids an Issued invoice. Linked rows keep their invoice_id so the
// billing history stays reconstructable.
func (r *InvoiceRepository) Cancel(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, models.InvoiceStatusCancelled, time.Now().UTC(), id, models.InvoiceStatusIssued)
	if err != nil {
		return false, fmt.Errorf("cancel invoice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel invoice: %w", err)
	}
	return affected > 0, nil
}

// SumPaidTotals returns the revenue of Paid invoices, optionally scoped to
// one organization.
func (r *InvoiceRepository) SumPaidTotals(ctx context.Context, organizationID string) (decimal.Decimal, error) {
	query := "SELECT COALESCE(SUM(total), 0) FROM invoices WHERE status = $1"
	args := []interface{}{models.InvoiceStatusPaid}
	if organizationID != "" {
		query += fmt.Sprintf(" AND organization_id = $%d", len(args)+1)
		args = append(args, organizationID)
	}
	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return decimal.Zero, fmt.Errorf("sum paid invoices: %w", err)
	}
	return total, nil
}

// CountByStatus aggregates invoices per status, optionally scoped to one
// organization.
func (r *InvoiceRepository) CountByStatus(ctx context.Context, organizationID string) (map[models.InvoiceStatus]int, error) {
	query := "SELECT status, COUNT(*) AS total FROM invoices"
	var args []interface{}
	if organizationID != "" {
		query += " WHERE organization_id = $1"
		args = append(args, organizationID)
	}
	query += " GROUP BY status"
	var rows []struct {
		Status models.InvoiceStatus `db:"status"`
		Total  int                  `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count invoices by status: %w", err)
	}
	counts := make(map[models.InvoiceStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
