// Package authz holds the fixed role sets and the pure predicates that decide
// what a combination of global, company and project roles may do. Nothing in
// this package performs I/O.
package authz

import "strings"

// GlobalRole is scoped to the identity regardless of company.
type GlobalRole string

const (
	GlobalPlatformAdmin GlobalRole = "PLATFORM_ADMIN"
	GlobalPlatformUser  GlobalRole = "PLATFORM_USER"
)

// CompanyRole is scoped to one company membership. The empty value means no
// membership (personal workspace or outsider).
type CompanyRole string

const (
	CompanyOwner   CompanyRole = "OWNER"
	CompanyAdmin   CompanyRole = "ADMIN"
	CompanyManager CompanyRole = "MANAGER"
	CompanyMember  CompanyRole = "MEMBER"
	CompanyViewer  CompanyRole = "VIEWER"
	CompanyBilling CompanyRole = "BILLING"
	CompanyNone    CompanyRole = ""
)

// ProjectRole is scoped to one project membership.
type ProjectRole string

const (
	ProjectLead   ProjectRole = "LEAD"
	ProjectMember ProjectRole = "MEMBER"
)

// companyRank orders the ranked company roles. MEMBER, VIEWER and BILLING are
// lateral and share the lowest rank.
var companyRank = map[CompanyRole]int{
	CompanyOwner:   4,
	CompanyAdmin:   3,
	CompanyManager: 2,
	CompanyMember:  1,
	CompanyViewer:  1,
	CompanyBilling: 1,
}

// Valid reports whether r is one of the known company roles.
func (r CompanyRole) Valid() bool {
	_, ok := companyRank[r]
	return ok
}

// Valid reports whether r is one of the known global roles.
func (r GlobalRole) Valid() bool {
	return r == GlobalPlatformAdmin || r == GlobalPlatformUser
}

// Valid reports whether r is one of the known project roles.
func (r ProjectRole) Valid() bool {
	return r == ProjectLead || r == ProjectMember
}

// AtLeast reports whether r ranks at or above min. Unknown roles never do.
func (r CompanyRole) AtLeast(min CompanyRole) bool {
	have, ok := companyRank[r]
	if !ok {
		return false
	}
	want, ok := companyRank[min]
	if !ok {
		return false
	}
	return have >= want
}

// ParseCompanyRole normalizes user input into a CompanyRole.
func ParseCompanyRole(s string) (CompanyRole, bool) {
	r := CompanyRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return CompanyNone, false
	}
	return r, true
}

// ParseGlobalRole normalizes user input into a GlobalRole.
func ParseGlobalRole(s string) (GlobalRole, bool) {
	r := GlobalRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}

// ParseProjectRole normalizes user input into a ProjectRole.
func ParseProjectRole(s string) (ProjectRole, bool) {
	r := ProjectRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}
