package models

import "time"

// CompanyProfile is the seller identity copied onto invoices at issuance. At
// most one profile is active at a time; issuance fails without one.
type CompanyProfile struct {
	ID          string    `db:"id" json:"id"`
	LegalName   string    `db:"legal_name" json:"legal_name"`
	VATNumber   string    `db:"vat_number" json:"vat_number"`
	CRNumber    string    `db:"cr_number" json:"cr_number,omitempty"`
	AddressLine string    `db:"address_line" json:"address_line,omitempty"`
	City        string    `db:"city" json:"city,omitempty"`
	PostalCode  string    `db:"postal_code" json:"postal_code,omitempty"`
	Phone       string    `db:"phone" json:"phone,omitempty"`
	Email       string    `db:"email" json:"email,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
