package rbac

// Roles known to the permission table.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// RolePermissions is the default policy. Ownership of a course is checked by
// the handlers on top of these.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"course:view",
		"lesson:view",
		"quiz:view",
		"quiz:attempt",
		"grade:view-own",
		"enrollment:create",
		"enrollment:drop-own",
		"enrollment:view-own",
		"progress:write-own",
		"progress:view-own",
		"user:self",
	},
	RoleInstructor: {
		"course:*",
		"lesson:*",
		"quiz:*",
		"grade:*",
		"enrollment:view-own",
		"enrollment:manage",
		"progress:view-own",
		"progress:view-all",
		"user:self",
	},
	RoleAdmin: {
		"*",
	},
}
