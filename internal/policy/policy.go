// Package policy is the portal's authorization boundary. Every mutating
// service operation consults Can before touching a row; route-level RBAC is
// only a convenience on top of this layer.
package policy

import (
	"github.com/ucmas-ksa/portal-api/internal/models"
)

// Action names a capability a caller may hold.
type Action string

const (
	ActionStudentCreate  Action = "student:create"
	ActionStudentUpdate  Action = "student:update"
	ActionStudentImport  Action = "student:import"
	ActionDraftCreate    Action = "registration:draft"
	ActionSubmit         Action = "registration:submit"
	ActionApprove        Action = "registration:approve"
	ActionReject         Action = "registration:reject"
	ActionMarkPaid       Action = "registration:mark_paid"
	ActionReset          Action = "registration:reset"
	ActionEnroll         Action = "registration:enroll"
	ActionComplete       Action = "registration:complete"
	ActionDrop           Action = "registration:drop"
	ActionInvoiceIssue   Action = "invoice:issue"
	ActionInvoiceView    Action = "invoice:view"
	ActionInvoicePaid    Action = "invoice:mark_paid"
	ActionInvoiceCancel  Action = "invoice:cancel"
	ActionCatalogManage  Action = "catalog:manage"
	ActionOrgManage      Action = "org:manage"
	ActionUserManage     Action = "user:manage"
	ActionSellerManage   Action = "seller:manage"
	ActionExportRequest  Action = "export:request"
	ActionAuditView      Action = "audit:view"
	ActionDashboardView  Action = "dashboard:view"
)

// Resource identifies the target of an action. OrganizationID is empty for
// platform-wide resources (catalog entries, company profiles).
type Resource struct {
	OrganizationID string
}

// rules maps each role to the actions it may perform. Org scoping is applied
// separately in Can: org roles never reach across organizations regardless of
// the action.
var rules = map[models.UserRole]map[Action]bool{
	models.RoleAdmin: {
		ActionStudentCreate: true, ActionStudentUpdate: true, ActionStudentImport: true,
		ActionDraftCreate: true, ActionSubmit: true,
		ActionApprove: true, ActionReject: true, ActionMarkPaid: true,
		ActionReset: true, ActionEnroll: true, ActionComplete: true, ActionDrop: true,
		ActionInvoiceIssue: true, ActionInvoiceView: true, ActionInvoicePaid: true, ActionInvoiceCancel: true,
		ActionCatalogManage: true, ActionOrgManage: true, ActionUserManage: true, ActionSellerManage: true,
		ActionExportRequest: true, ActionAuditView: true, ActionDashboardView: true,
	},
	models.RoleOrgManager: {
		ActionStudentCreate: true, ActionStudentUpdate: true, ActionStudentImport: true,
		ActionDraftCreate: true, ActionSubmit: true,
		ActionReset: true,
		ActionInvoiceIssue: true, ActionInvoiceView: true,
		ActionExportRequest: true, ActionDashboardView: true,
	},
	models.RoleOrgStaff: {
		ActionStudentCreate: true, ActionStudentUpdate: true,
		ActionDraftCreate: true,
		ActionInvoiceView: true,
		ActionExportRequest: true, ActionDashboardView: true,
	},
}

// Can reports whether the actor may perform action on resource. Admins pass
// any rule-listed action platform-wide; org roles additionally require the
// resource to belong to their own organization when it is org-scoped.
func Can(actor *models.JWTClaims, action Action, resource Resource) bool {
	if actor == nil {
		return false
	}
	allowed, ok := rules[actor.Role]
	if !ok || !allowed[action] {
		return false
	}
	if actor.Role == models.RoleAdmin {
		return true
	}
	if actor.OrganizationID == nil {
		return false
	}
	if resource.OrganizationID != "" && resource.OrganizationID != *actor.OrganizationID {
		return false
	}
	return true
}

// DeniedScope is an organization id no row ever carries. ScopeOrganization
// returns it when an actor's scope cannot be resolved, so queries filtered by
// it match nothing instead of everything.
const DeniedScope = "00000000-0000-0000-0000-000000000000"

// ScopeOrganization returns the organization filter an actor's list queries
// must carry: empty for admins (no scoping), the actor's own organization for
// org roles. An org-role actor without an organization, like a missing actor,
// gets DeniedScope rather than admin-wide visibility.
func ScopeOrganization(actor *models.JWTClaims) string {
	if actor == nil {
		return DeniedScope
	}
	if actor.Role == models.RoleAdmin {
		return ""
	}
	if actor.OrganizationID == nil {
		return DeniedScope
	}
	return *actor.OrganizationID
}
