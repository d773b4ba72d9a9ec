package rbac

type Role string
type Action string

const (
	RoleAgencyOwner     Role = "AGENCY_OWNER"
	RoleAgencyAdmin     Role = "AGENCY_ADMIN"
	RoleSubAccountUser  Role = "SUBACCOUNT_USER"
	RoleSubAccountGuest Role = "SUBACCOUNT_GUEST"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAgencyOwner, RoleAgencyAdmin:
		return true
	case RoleSubAccountUser:
		return action == ActionRead || action == ActionWrite
	case RoleSubAccountGuest:
		return action == ActionRead
	default:
		return false
	}
}

// AgencyWide reports whether the role reaches every sub-account of its agency.
func AgencyWide(role Role) bool {
	return role == RoleAgencyOwner || role == RoleAgencyAdmin
}

// Normalize maps unknown roles to the least privileged one.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleAgencyOwner, RoleAgencyAdmin, RoleSubAccountUser, RoleSubAccountGuest:
		return Role(role)
	default:
		return RoleSubAccountGuest
	}
}
