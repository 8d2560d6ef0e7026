package models

import "time"

// DraftStep identifies one step of the registration wizard.
type DraftStep string

const (
	DraftStepStudent  DraftStep = "student"
	DraftStepGuardian DraftStep = "guardian"
)

// DraftStudentStep is the first wizard step: the student's own details.
type DraftStudentStep struct {
	FirstNameEN  string `json:"first_name_en" validate:"required,max=100"`
	LastNameEN   string `json:"last_name_en" validate:"required,max=100"`
	FirstNameAR  string `json:"first_name_ar,omitempty" validate:"omitempty,max=100"`
	LastNameAR   string `json:"last_name_ar,omitempty" validate:"omitempty,max=100"`
	DateOfBirth  string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Gender       string `json:"gender" validate:"required,oneof=M F"`
	CurrentLevel int    `json:"current_level" validate:"min=0,max=10"`
	Notes        string `json:"notes,omitempty"`
}

// DraftGuardianStep is the second wizard step: guardian contact details.
type DraftGuardianStep struct {
	GuardianName  string `json:"guardian_name" validate:"required,max=150"`
	GuardianPhone string `json:"guardian_phone" validate:"required,saudi_phone"`
	GuardianEmail string `json:"guardian_email,omitempty" validate:"omitempty,email"`
}

// RegistrationDraft is the server-side wizard aggregate held in Redis, keyed
// by (owner, draft id). Committing a draft with both steps valid produces a
// Student plus a Draft enrollment/registration through the standard services.
type RegistrationDraft struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"owner_id"`
	OrganizationID string            `json:"organization_id"`
	Kind           RegistrationKind  `json:"kind"`
	TargetID       string            `json:"target_id"`
	Student        *DraftStudentStep `json:"student,omitempty"`
	Guardian       *DraftGuardianStep `json:"guardian,omitempty"`
	StudentValid   bool              `json:"student_valid"`
	GuardianValid  bool              `json:"guardian_valid"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ReadyToCommit reports whether every wizard step has passed validation.
func (d *RegistrationDraft) ReadyToCommit() bool {
	return d.StudentValid && d.GuardianValid
}
