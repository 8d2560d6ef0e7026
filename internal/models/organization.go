package models

import "time"

// OrganizationType distinguishes the two tenant kinds.
type OrganizationType string

const (
	OrgTypeSchool      OrganizationType = "SCHOOL"
	OrgTypeAssociation OrganizationType = "ASSOCIATION"
)

// OrganizationStatus captures the tenant lifecycle. Organizations are never
// deleted, only suspended.
type OrganizationStatus string

const (
	OrgStatusPending   OrganizationStatus = "PENDING"
	OrgStatusApproved  OrganizationStatus = "APPROVED"
	OrgStatusSuspended OrganizationStatus = "SUSPENDED"
)

// Organization is the tenant boundary. Its VAT fields double as the invoice
// buyer snapshot source at issuance time.
type Organization struct {
	ID              string             `db:"id" json:"id"`
	NameEN          string             `db:"name_en" json:"name_en"`
	NameAR          string             `db:"name_ar" json:"name_ar,omitempty"`
	OrgType         OrganizationType   `db:"org_type" json:"org_type"`
	City            string             `db:"city" json:"city"`
	ContactName     string             `db:"contact_name" json:"contact_name"`
	ContactPhone    string             `db:"contact_phone" json:"contact_phone"`
	ContactEmail    string             `db:"contact_email" json:"contact_email,omitempty"`
	VATNumber       string             `db:"vat_number" json:"vat_number,omitempty"`
	NationalAddress string             `db:"national_address" json:"national_address,omitempty"`
	Status          OrganizationStatus `db:"status" json:"status"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}

// OrganizationFilter captures list criteria for organizations.
type OrganizationFilter struct {
	OrgType   OrganizationType
	Status    OrganizationStatus
	City      string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
