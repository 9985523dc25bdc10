// Package policy decides whether a principal may act on a resource of the
// project hierarchy. Every function is pure: callers load the project, task
// or comment and the membership flag, then ask.
package policy

import "taskflow/models"

// Principal is the authenticated caller of a request.
type Principal struct {
	ID   uint
	Role models.Role
}

// PrincipalOf builds the principal for an already loaded user.
func PrincipalOf(u *models.User) Principal {
	return Principal{ID: u.ID, Role: u.Role}
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// IsManagerRole reports whether the role passes the project_manager|admin route gate.
func (p Principal) IsManagerRole() bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleProjectManager
}

func isCreator(p Principal, project *models.Project) bool {
	return project != nil && project.CreatedBy == p.ID
}

// HasManagerAccess is the manager-class capability over a project: its
// creator, any admin or any project manager.
func HasManagerAccess(p Principal, project *models.Project) bool {
	return p.IsAdmin() || p.Role == models.RoleProjectManager || isCreator(p, project)
}

// CanReadProject allows admins, the creator and members.
func CanReadProject(p Principal, project *models.Project, isMember bool) bool {
	return p.IsAdmin() || isCreator(p, project) || isMember
}

// CanModifyProject covers project update and delete. Ownership alone is not
// enough, the caller must also hold a manager role.
func CanModifyProject(p Principal, project *models.Project) bool {
	if p.IsAdmin() {
		return true
	}
	return isCreator(p, project) && p.IsManagerRole()
}

// CanManageLists covers list create, update and delete. Membership is not enough.
func CanManageLists(p Principal, project *models.Project) bool {
	return p.IsAdmin() || isCreator(p, project)
}

// CanManageMembers covers adding and removing project members.
func CanManageMembers(p Principal, project *models.Project) bool {
	return p.IsAdmin() || isCreator(p, project)
}

// CanContribute covers task creation and commenting.
func CanContribute(p Principal, project *models.Project, isMember bool) bool {
	return CanReadProject(p, project, isMember)
}

// TaskScope is how much of a task a principal may change.
type TaskScope int

const (
	TaskScopeNone TaskScope = iota
	// TaskScopeAssignee may change description and status only
	TaskScopeAssignee
	// TaskScopeFull may change every field
	TaskScopeFull
)

// TaskUpdateScope resolves the task update rule: manager-class principals may
// change anything, the current assignee only description and status.
func TaskUpdateScope(p Principal, project *models.Project, task *models.Task) TaskScope {
	if HasManagerAccess(p, project) {
		return TaskScopeFull
	}
	if task != nil && task.AssignedTo != nil && *task.AssignedTo == p.ID {
		return TaskScopeAssignee
	}
	return TaskScopeNone
}

// CanDeleteTask allows the manager class only.
func CanDeleteTask(p Principal, project *models.Project) bool {
	return HasManagerAccess(p, project)
}

// CanEditComment covers comment update and delete. Project ownership does
// not grant it.
func CanEditComment(p Principal, comment *models.Comment) bool {
	return p.IsAdmin() || (comment != nil && comment.UserID == p.ID)
}

// CanManageUser covers profile update and account deletion.
func CanManageUser(p Principal, targetID uint) bool {
	return p.IsAdmin() || p.ID == targetID
}

// CanChangeRole is admin only.
func CanChangeRole(p Principal) bool {
	return p.IsAdmin()
}

// MustVerifyPassword reports whether a password change by p needs the
// current password. Admins resetting someone's password skip the check.
func MustVerifyPassword(p Principal) bool {
	return !p.IsAdmin()
}
