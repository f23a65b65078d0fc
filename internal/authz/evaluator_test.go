package authz

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanViewProjectMatrix(t *testing.T) {
	globals := []GlobalRole{GlobalPlatformAdmin, GlobalPlatformUser, GlobalRole("bogus")}
	companies := []CompanyRole{
		CompanyOwner, CompanyAdmin, CompanyManager, CompanyMember,
		CompanyViewer, CompanyBilling, CompanyNone, CompanyRole("SUPERUSER"),
	}

	for _, g := range globals {
		for _, c := range companies {
			for _, member := range []bool{false, true} {
				for _, lead := range []bool{false, true} {
					f := Facts{GlobalRole: g, CompanyRole: c, IsProjectMember: member, IsProjectLead: lead}
					want := g == GlobalPlatformAdmin ||
						c == CompanyOwner || c == CompanyAdmin ||
						member || lead
					name := fmt.Sprintf("%s/%q/member=%t/lead=%t", g, c, member, lead)
					assert.Equal(t, want, CanViewProject(f), name)
				}
			}
		}
	}
}

func TestManagerNeedsExplicitProjectMembership(t *testing.T) {
	f := Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyManager}
	assert.False(t, CanViewProject(f))
	assert.True(t, NeedsProjectFacts(f))

	f.IsProjectMember = true
	assert.True(t, CanViewProject(f))

	f = Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyManager, IsProjectLead: true}
	assert.True(t, CanViewProject(f))
}

func TestCanManageProjectMembers(t *testing.T) {
	cases := []struct {
		facts Facts
		want  bool
	}{
		{Facts{GlobalRole: GlobalPlatformAdmin}, true},
		{Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyOwner}, true},
		{Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyAdmin}, true},
		{Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyManager}, true},
		{Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyMember, IsProjectLead: true}, false},
		{Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyViewer}, false},
		{Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyBilling}, false},
		{Facts{GlobalRole: GlobalPlatformUser}, false},
		{Facts{}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanManageProjectMembers(tc.facts), "%+v", tc.facts)
	}
}

func TestCanManageProjectLead(t *testing.T) {
	assert.True(t, CanManageProjectLead(Facts{GlobalRole: GlobalPlatformUser, IsProjectLead: true}))
	assert.True(t, CanManageProjectLead(Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyAdmin}))
	assert.False(t, CanManageProjectLead(Facts{GlobalRole: GlobalPlatformUser, CompanyRole: CompanyManager, IsProjectMember: true}))
}

func TestCompanyRolePredicates(t *testing.T) {
	assert.True(t, IsCompanyOwner(CompanyOwner))
	assert.False(t, IsCompanyOwner(CompanyAdmin))

	assert.True(t, IsCompanyAdminOrAbove(CompanyAdmin))
	assert.False(t, IsCompanyAdminOrAbove(CompanyManager))

	assert.True(t, IsCompanyManagerOrAbove(CompanyManager))
	assert.False(t, IsCompanyManagerOrAbove(CompanyBilling))

	assert.True(t, IsPlatformAdmin(GlobalPlatformAdmin))
	assert.False(t, IsPlatformAdmin(GlobalRole("platform_admin")))
}

func TestAtLeastTreatsLateralRolesEqually(t *testing.T) {
	assert.True(t, CompanyViewer.AtLeast(CompanyMember))
	assert.True(t, CompanyBilling.AtLeast(CompanyViewer))
	assert.False(t, CompanyBilling.AtLeast(CompanyManager))
	assert.True(t, CompanyOwner.AtLeast(CompanyAdmin))
	assert.False(t, CompanyRole("ROOT").AtLeast(CompanyMember))
	assert.False(t, CompanyOwner.AtLeast(CompanyRole("ROOT")))
}

func TestParseRoles(t *testing.T) {
	r, ok := ParseCompanyRole(" manager ")
	assert.True(t, ok)
	assert.Equal(t, CompanyManager, r)

	_, ok = ParseCompanyRole("root")
	assert.False(t, ok)
	_, ok = ParseCompanyRole("")
	assert.False(t, ok)

	g, ok := ParseGlobalRole("platform_user")
	assert.True(t, ok)
	assert.Equal(t, GlobalPlatformUser, g)

	p, ok := ParseProjectRole("lead")
	assert.True(t, ok)
	assert.Equal(t, ProjectLead, p)
}

func TestCatalogIsACopy(t *testing.T) {
	list := Catalog()
	list[0].Description = "mutated"

	info, ok := Describe("global", string(GlobalPlatformAdmin))
	assert.True(t, ok)
	assert.NotEqual(t, "mutated", info.Description)

	_, ok = Describe("company", "ROOT")
	assert.False(t, ok)
}
