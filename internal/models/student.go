package models

import "time"

// Gender values accepted on student records.
const (
	GenderMale   = "M"
	GenderFemale = "F"
)

// Student is the permanent per-organization roster record, independent of any
// single course or event. The registration number is assigned once at creation
// and never changes.
type Student struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	RegistrationNo string    `db:"registration_no" json:"registration_no"`
	FirstNameEN    string    `db:"first_name_en" json:"first_name_en"`
	LastNameEN     string    `db:"last_name_en" json:"last_name_en"`
	FirstNameAR    string    `db:"first_name_ar" json:"first_name_ar,omitempty"`
	LastNameAR     string    `db:"last_name_ar" json:"last_name_ar,omitempty"`
	DateOfBirth    time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender         string    `db:"gender" json:"gender"`
	GuardianName   string    `db:"guardian_name" json:"guardian_name"`
	GuardianPhone  string    `db:"guardian_phone" json:"guardian_phone"`
	GuardianEmail  string    `db:"guardian_email" json:"guardian_email,omitempty"`
	CurrentLevel   int       `db:"current_level" json:"current_level"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// FullNameEN returns the student's English display name.
func (s *Student) FullNameEN() string {
	return s.FirstNameEN + " " + s.LastNameEN
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	OrganizationID string
	Level          *int
	Gender         string
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// StudentDetail enriches Student with the owning organization's name.
type StudentDetail struct {
	Student
	OrganizationName string `db:"organization_name" json:"organization_name"`
}
