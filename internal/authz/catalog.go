package authz

// RoleInfo describes a role for display and documentation.
type RoleInfo struct {
	Name        string `json:"name"`
	Scope       string `json:"scope"`
	Description string `json:"description"`
}

// DefaultPlanID is assigned to companies that have no billing record yet.
const DefaultPlanID = "free"

// catalog is populated once at init and only read afterwards.
var catalog = buildCatalog()

func buildCatalog() []RoleInfo {
	return []RoleInfo{
		{Name: string(GlobalPlatformAdmin), Scope: "global", Description: "Operates the platform; sees every company and project."},
		{Name: string(GlobalPlatformUser), Scope: "global", Description: "Regular account."},
		{Name: string(CompanyOwner), Scope: "company", Description: "Full control, including ownership changes. A company always keeps at least one."},
		{Name: string(CompanyAdmin), Scope: "company", Description: "Manages members and settings; sees every project."},
		{Name: string(CompanyManager), Scope: "company", Description: "Manages project members; sees only projects they belong to."},
		{Name: string(CompanyMember), Scope: "company", Description: "Works in projects they belong to."},
		{Name: string(CompanyViewer), Scope: "company", Description: "Read-only access to projects they belong to."},
		{Name: string(CompanyBilling), Scope: "company", Description: "Reads billing and subscription data."},
		{Name: string(ProjectLead), Scope: "project", Description: "Owns a project; exactly one per project."},
		{Name: string(ProjectMember), Scope: "project", Description: "Participates in a project."},
	}
}

// Catalog returns a copy of the role descriptions.
func Catalog() []RoleInfo {
	out := make([]RoleInfo, len(catalog))
	copy(out, catalog)
	return out
}

// Describe returns the description for a role name in the given scope.
func Describe(scope, name string) (RoleInfo, bool) {
	for _, info := range catalog {
		if info.Scope == scope && info.Name == name {
			return info, true
		}
	}
	return RoleInfo{}, false
}
