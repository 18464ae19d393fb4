package auth

import (
	"strings"

	"lms/internal/model"
)

// Permission names an action a role may perform.
type Permission string

const (
	PermViewContent    Permission = "view:content"
	PermViewProfile    Permission = "view:profile"
	PermUpdateProfile  Permission = "update:profile"
	PermEnrollCourse   Permission = "enroll:course"
	PermCompleteLesson Permission = "complete:lesson"
	PermAwardXP        Permission = "award:xp"
	PermCreateCourse   Permission = "create:course"
	PermUpdateCourse   Permission = "update:course"
	PermDeleteCourse   Permission = "delete:course"
	PermCreateLesson   Permission = "create:lesson"
	PermUpdateLesson   Permission = "update:lesson"
	PermDeleteLesson   Permission = "delete:lesson"
	PermViewUsers      Permission = "view:users"
	PermUpdateUser     Permission = "update:user"
	PermDeleteUser     Permission = "delete:user"
	PermViewAnalytics  Permission = "view:analytics"
	PermManageSecrets  Permission = "manage:secrets"
)

var studentPermissions = []Permission{
	PermViewContent,
	PermViewProfile,
	PermUpdateProfile,
	PermEnrollCourse,
	PermCompleteLesson,
}

var teacherPermissions = append(append([]Permission{}, studentPermissions...), PermAwardXP)

var adminPermissions = append(append([]Permission{}, teacherPermissions...),
	PermCreateCourse,
	PermUpdateCourse,
	PermDeleteCourse,
	PermCreateLesson,
	PermUpdateLesson,
	PermDeleteLesson,
	PermViewUsers,
	PermUpdateUser,
	PermDeleteUser,
	PermViewAnalytics,
	PermManageSecrets,
)

// RolePermissions is the declarative permission map. It is read-only after
// package initialization.
var RolePermissions = map[model.Role]map[Permission]struct{}{
	model.RoleStudent: setOf(studentPermissions),
	model.RoleTeacher: setOf(teacherPermissions),
	model.RoleAdmin:   setOf(adminPermissions),
}

func setOf(perms []Permission) map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		m[p] = struct{}{}
	}
	return m
}

// Can reports whether role grants permission. Unknown roles grant nothing.
func Can(role model.Role, permission Permission) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[permission]
	return ok
}

// SignupRole maps a requested signup role onto the allow-list. Only STUDENT
// and ADMIN may be requested; anything else becomes STUDENT.
func SignupRole(requested string) model.Role {
	switch model.Role(strings.ToUpper(strings.TrimSpace(requested))) {
	case model.RoleAdmin:
		return model.RoleAdmin
	default:
		return model.RoleStudent
	}
}
