// Package access holds the role capability table consulted by every
// protected operation.
package access

import (
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/models"
)

type Operation string

const (
	OpProjectCreate Operation = "project.create"
	OpProjectList   Operation = "project.list"
	OpProjectRead   Operation = "project.read"
	OpProjectUpdate Operation = "project.update"
	OpProjectStatus Operation = "project.status"
	OpProjectDelete Operation = "project.delete"

	OpLedgerCreate           Operation = "ledger.create"
	OpLedgerRead             Operation = "ledger.read"
	OpLedgerRecordPayment    Operation = "ledger.record_payment"
	OpLedgerEditInstallments Operation = "ledger.edit_installments"
	OpLedgerExport           Operation = "ledger.export"

	OpUserManage Operation = "user.manage"
	OpAuditRead  Operation = "audit.read"
)

// Rule grants an operation to a set of roles. Owner additionally grants it to
// the user recorded as the resource's creator.
type Rule struct {
	Roles []models.UserRole
	Owner bool
}

var allRoles = []models.UserRole{
	models.RoleAdmin,
	models.RoleSalesExecutive,
	models.RoleFinance,
	models.RoleReco,
	models.RoleApprover,
}

var policy = map[Operation]Rule{
	OpProjectCreate: {Roles: []models.UserRole{models.RoleSalesExecutive, models.RoleAdmin}},
	OpProjectList:   {Roles: allRoles},
	OpProjectRead:   {Roles: allRoles},
	OpProjectUpdate: {Roles: []models.UserRole{models.RoleAdmin}, Owner: true},
	OpProjectStatus: {Roles: []models.UserRole{models.RoleAdmin}, Owner: true},
	OpProjectDelete: {Roles: []models.UserRole{models.RoleAdmin}, Owner: true},

	OpLedgerCreate:           {Roles: []models.UserRole{models.RoleFinance, models.RoleAdmin}},
	OpLedgerRead:             {Roles: allRoles},
	OpLedgerRecordPayment:    {Roles: []models.UserRole{models.RoleFinance, models.RoleAdmin}, Owner: true},
	OpLedgerEditInstallments: {Roles: []models.UserRole{models.RoleFinance, models.RoleAdmin}},
	OpLedgerExport:           {Roles: allRoles},

	OpUserManage: {Roles: []models.UserRole{models.RoleAdmin}},
	OpAuditRead:  {Roles: []models.UserRole{models.RoleAdmin}},
}

// Actor is the authenticated caller.
type Actor struct {
	UserID uint
	Name   string
	Role   models.UserRole
}

// RuleFor returns the rule for op and whether one exists.
func RuleFor(op Operation) (Rule, bool) {
	r, ok := policy[op]
	return r, ok
}

// Can reports whether role is granted op outright, ignoring ownership.
func Can(role models.UserRole, op Operation) bool {
	rule, ok := policy[op]
	if !ok {
		return false
	}
	for _, r := range rule.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize checks actor against op. ownerID is the creator of the target
// resource, or 0 when the operation has no target yet.
func Authorize(actor Actor, op Operation, ownerID uint) error {
	if Can(actor.Role, op) {
		return nil
	}
	rule, ok := policy[op]
	if ok && rule.Owner && ownerID != 0 && actor.UserID == ownerID {
		return nil
	}
	return apperr.Forbidden("role %q is not allowed to perform %s", actor.Role, op)
}
