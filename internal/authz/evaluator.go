package authz

// Facts are the three independent role layers for one identity, one company
// context and (optionally) one project.
type Facts struct {
	GlobalRole      GlobalRole
	CompanyRole     CompanyRole
	IsProjectMember bool
	IsProjectLead   bool
}

func IsPlatformAdmin(r GlobalRole) bool {
	return r == GlobalPlatformAdmin
}

func IsCompanyAdminOrAbove(r CompanyRole) bool {
	return r == CompanyOwner || r == CompanyAdmin
}

func IsCompanyManagerOrAbove(r CompanyRole) bool {
	return r == CompanyOwner || r == CompanyAdmin || r == CompanyManager
}

func IsCompanyOwner(r CompanyRole) bool {
	return r == CompanyOwner
}

// CanViewProject lets OWNER and ADMIN bypass project membership. MANAGER and
// below, as well as personal workspace users, must be explicit members or the
// lead.
func CanViewProject(f Facts) bool {
	return IsPlatformAdmin(f.GlobalRole) ||
		IsCompanyAdminOrAbove(f.CompanyRole) ||
		f.IsProjectMember ||
		f.IsProjectLead
}

func CanManageProjectMembers(f Facts) bool {
	return IsPlatformAdmin(f.GlobalRole) || IsCompanyManagerOrAbove(f.CompanyRole)
}

// CanManageProjectLead gates lead transfer: the current lead may hand the
// project over, and company admins may reassign it.
func CanManageProjectLead(f Facts) bool {
	return IsPlatformAdmin(f.GlobalRole) ||
		IsCompanyAdminOrAbove(f.CompanyRole) ||
		f.IsProjectLead
}

// NeedsProjectFacts reports whether the company and global layers alone are
// insufficient to grant project visibility, so the project membership must be
// loaded.
func NeedsProjectFacts(f Facts) bool {
	return !IsPlatformAdmin(f.GlobalRole) && !IsCompanyAdminOrAbove(f.CompanyRole)
}
