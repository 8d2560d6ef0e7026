package models

// RegistrationKind distinguishes the two billable registration entities.
type RegistrationKind string

const (
	KindCourse RegistrationKind = "COURSE"
	KindEvent  RegistrationKind = "EVENT"
)

// RegistrationStatus is the shared lifecycle for course enrollments and event
// registrations. ENROLLED and COMPLETED apply to course enrollments only.
type RegistrationStatus string

const (
	StatusDraft          RegistrationStatus = "DRAFT"
	StatusSubmitted      RegistrationStatus = "SUBMITTED"
	StatusAccepted       RegistrationStatus = "ACCEPTED"
	StatusRejected       RegistrationStatus = "REJECTED"
	StatusPendingPayment RegistrationStatus = "PENDING_PAYMENT"
	StatusPaid           RegistrationStatus = "PAID"
	StatusEnrolled       RegistrationStatus = "ENROLLED"
	StatusCompleted      RegistrationStatus = "COMPLETED"
	StatusDropped        RegistrationStatus = "DROPPED"
)

var courseTransitions = map[RegistrationStatus][]RegistrationStatus{
	StatusDraft:          {StatusSubmitted, StatusRejected},
	StatusSubmitted:      {StatusPendingPayment, StatusAccepted, StatusRejected},
	StatusPendingPayment: {StatusPaid, StatusAccepted, StatusRejected},
	StatusAccepted:       {StatusEnrolled, StatusDropped, StatusRejected},
	StatusPaid:           {StatusEnrolled, StatusDropped, StatusRejected},
	StatusEnrolled:       {StatusCompleted, StatusDropped, StatusRejected},
	StatusRejected:       {StatusDraft},
	StatusDropped:        {StatusDraft},
}

var eventTransitions = map[RegistrationStatus][]RegistrationStatus{
	StatusDraft:          {StatusSubmitted, StatusRejected},
	StatusSubmitted:      {StatusPendingPayment, StatusAccepted, StatusRejected},
	StatusPendingPayment: {StatusPaid, StatusAccepted, StatusRejected},
	StatusAccepted:       {StatusRejected},
	StatusPaid:           {StatusRejected},
	StatusRejected:       {StatusDraft},
}

// CanTransition reports whether the state machine permits moving a row of the
// given kind from one status to another. Preconditions beyond the status
// itself (ownership, invoice linkage, deadlines) are checked by the services.
func CanTransition(kind RegistrationKind, from, to RegistrationStatus) bool {
	table := eventTransitions
	if kind == KindCourse {
		table = courseTransitions
	}
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no further transitions for the
// given kind.
func IsTerminal(kind RegistrationKind, status RegistrationStatus) bool {
	table := eventTransitions
	if kind == KindCourse {
		table = courseTransitions
	}
	return len(table[status]) == 0
}
