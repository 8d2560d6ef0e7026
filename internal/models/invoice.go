package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType matches the RegistrationKind of the rows an invoice bills.
type InvoiceType string

const (
	InvoiceTypeCourse InvoiceType = "COURSE"
	InvoiceTypeEvent  InvoiceType = "EVENT"
)

// InvoiceStatus is the billing-document lifecycle, separate from the
// registration lifecycle: issuing an invoice does not mark rows paid.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is one billing document per (organization, course|event) bucket per
// issuance run. Seller and buyer blocks are snapshots taken at issuance and
// never re-derived. Subtotal, VATAmount and Total are always recomputed as
// sums over the persisted items.
type Invoice struct {
	ID          string        `db:"id" json:"id"`
	InvoiceNo   string        `db:"invoice_no" json:"invoice_no"`
	InvoiceType InvoiceType   `db:"invoice_type" json:"invoice_type"`
	Status      InvoiceStatus `db:"status" json:"status"`
	InvoiceDate time.Time     `db:"invoice_date" json:"invoice_date"`

	OrganizationID string  `db:"organization_id" json:"organization_id"`
	CourseID       *string `db:"course_id" json:"course_id,omitempty"`
	EventID        *string `db:"event_id" json:"event_id,omitempty"`

	SellerName       string `db:"seller_name" json:"seller_name"`
	SellerVATNumber  string `db:"seller_vat_number" json:"seller_vat_number"`
	SellerCRNumber   string `db:"seller_cr_number" json:"seller_cr_number,omitempty"`
	SellerAddress    string `db:"seller_address" json:"seller_address,omitempty"`
	SellerCity       string `db:"seller_city" json:"seller_city,omitempty"`
	SellerPostalCode string `db:"seller_postal_code" json:"seller_postal_code,omitempty"`
	SellerPhone      string `db:"seller_phone" json:"seller_phone,omitempty"`
	SellerEmail      string `db:"seller_email" json:"seller_email,omitempty"`

	BuyerName            string `db:"buyer_name" json:"buyer_name"`
	BuyerVATNumber       string `db:"buyer_vat_number" json:"buyer_vat_number,omitempty"`
	BuyerNationalAddress string `db:"buyer_national_address" json:"buyer_national_address,omitempty"`

	VATRate   decimal.Decimal `db:"vat_rate" json:"vat_rate"`
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
	VATAmount decimal.Decimal `db:"vat_amount" json:"vat_amount"`
	Total     decimal.Decimal `db:"total" json:"total"`

	IssuedBy   *string    `db:"issued_by" json:"issued_by,omitempty"`
	IssuedAt   *time.Time `db:"issued_at" json:"issued_at,omitempty"`
	PaidAt     *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	PaymentRef string     `db:"payment_ref" json:"payment_ref,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`

	Items []InvoiceItem `db:"-" json:"items,omitempty"`
}

// InvoiceItem bills exactly one registration row. Exactly one of
// CourseEnrollmentID / EventRegistrationID is set, matching the parent
// invoice's type. Line amounts are computed at save time, never edited.
type InvoiceItem struct {
	ID                  string          `db:"id" json:"id"`
	InvoiceID           string          `db:"invoice_id" json:"invoice_id"`
	StudentID           string          `db:"student_id" json:"student_id"`
	CourseEnrollmentID  *string         `db:"course_enrollment_id" json:"course_enrollment_id,omitempty"`
	EventRegistrationID *string         `db:"event_registration_id" json:"event_registration_id,omitempty"`
	Description         string          `db:"description" json:"description"`
	Qty                 int             `db:"qty" json:"qty"`
	UnitPrice           decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineSubtotal        decimal.Decimal `db:"line_subtotal" json:"line_subtotal"`
	LineVAT             decimal.Decimal `db:"line_vat" json:"line_vat"`
	LineTotal           decimal.Decimal `db:"line_total" json:"line_total"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`

	StudentRegNo string `db:"student_reg_no" json:"student_reg_no,omitempty"`
	StudentName  string `db:"student_name" json:"student_name,omitempty"`
}

// ComputeLineAmounts derives the monetary columns of an invoice item from
// qty, unit price and the invoice's VAT rate. Each rollup is rounded half-up
// to two decimals, matching the local currency convention.
func ComputeLineAmounts(qty int, unitPrice, vatRate decimal.Decimal) (subtotal, vat, total decimal.Decimal) {
	subtotal = unitPrice.Mul(decimal.NewFromInt(int64(qty))).Round(2)
	vat = subtotal.Mul(vatRate).Round(2)
	total = subtotal.Add(vat).Round(2)
	return subtotal, vat, total
}

// InvoiceSequence is the sole authority for invoice numbering, keyed by
// (invoice_type, year) and mutated only inside the issuance transaction.
type InvoiceSequence struct {
	InvoiceType InvoiceType `db:"invoice_type" json:"invoice_type"`
	Year        int         `db:"year" json:"year"`
	LastNumber  int         `db:"last_number" json:"last_number"`
}

// InvoiceFilter captures list criteria for invoices.
type InvoiceFilter struct {
	OrganizationID string
	InvoiceType    InvoiceType
	Status         InvoiceStatus
	CourseID       string
	EventID        string
	Search         string
	DateFrom       *time.Time
	DateTo         *time.Time
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// InvoiceDetail enriches an invoice with the buyer organization's name for
// list views.
type InvoiceDetail struct {
	Invoice
	OrganizationName string `db:"organization_name" json:"organization_name"`
}
