package shared

// Core platform permissions.
const (
	PermAdminsView = "admins.view"
	PermAdminsEdit = "admins.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	PermAuditView = "audit.view"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermAdminsView,
		PermAdminsEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermAuditView,
	}
}
