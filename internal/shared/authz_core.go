package shared

// Parish permissions. The strings are stored in the permissions table and
// shared with the record management screens, so they must not change.
const (
	PermMembersView    = "view members"
	PermMembersManage  = "manage members"
	PermFamiliesView   = "view families"
	PermFamiliesManage = "manage families"

	PermSacramentsView   = "view sacraments"
	PermSacramentsManage = "manage sacraments"

	PermTithesView   = "view tithes"
	PermTithesManage = "manage tithes"

	PermGroupsView       = "view groups"
	PermGroupsManage     = "manage groups"
	PermActivitiesView   = "view activities"
	PermActivitiesManage = "manage activities"

	PermReportsAccess = "access reports"
	PermReportsExport = "export reports"
)

// Administration permissions.
const (
	PermUsersView   = "view users"
	PermUsersManage = "manage users"
	PermUsersDelete = "delete users"
	PermRolesAssign = "assign roles"
	PermRolesManage = "manage roles"
	PermSettings    = "manage settings"
)

// RecordScopes lists the permissions guarding parish records.
func RecordScopes() []string {
	return []string{
		PermMembersView,
		PermMembersManage,
		PermFamiliesView,
		PermFamiliesManage,
		PermSacramentsView,
		PermSacramentsManage,
		PermTithesView,
		PermTithesManage,
		PermGroupsView,
		PermGroupsManage,
		PermActivitiesView,
		PermActivitiesManage,
		PermReportsAccess,
		PermReportsExport,
	}
}

// AdminScopes lists the permissions guarding user and role administration.
func AdminScopes() []string {
	return []string{
		PermUsersView,
		PermUsersManage,
		PermUsersDelete,
		PermRolesAssign,
		PermRolesManage,
		PermSettings,
	}
}

// AllScopes lists every permission known to the application.
func AllScopes() []string {
	return append(RecordScopes(), AdminScopes()...)
}
