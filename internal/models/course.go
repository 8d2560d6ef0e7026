package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is an admin-defined catalog entry. Once enrollments reference it the
// row is protected from deletion.
type Course struct {
	ID        string          `db:"id" json:"id"`
	Level     int             `db:"level" json:"level"`
	Name      string          `db:"name" json:"name"`
	Active    bool            `db:"active" json:"active"`
	Fee       decimal.Decimal `db:"fee" json:"fee"`
	StartDate *time.Time      `db:"start_date" json:"start_date,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures list criteria for the course catalog.
type CourseFilter struct {
	Level     *int
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
