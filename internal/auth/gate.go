package auth

import (
	"context"
	"errors"
	"fmt"

	"orbitdesk.io/internal/authz"
	"orbitdesk.io/internal/obs"
)

// Gate loads role facts for a request and asks the evaluator whether the
// guarded operation may proceed. Facts are read fresh on every call.
type Gate struct {
	store Queries
}

// NewGate builds a Gate over store.
func NewGate(store Queries) *Gate {
	return &Gate{store: store}
}

// Access describes the caller as the gate saw it when a check passed.
type Access struct {
	Identity    Identity
	CompanyID   string
	CompanyRole authz.CompanyRole
	Project     *Project
	Facts       authz.Facts
}

// Identity loads the active identity behind a verified session. Unknown and
// non-active identities are ErrInvalidCredentials.
func (g *Gate) Identity(ctx context.Context, identityID string) (Identity, error) {
	if identityID == "" {
		return Identity{}, ErrSessionInvalid
	}
	ident, err := g.store.IdentityByID(ctx, identityID)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}
	if ident.Status != StatusActive {
		return Identity{}, ErrInvalidCredentials
	}
	return ident, nil
}

func (g *Gate) load(ctx context.Context, identityID, companyID string) (Access, error) {
	ident, err := g.Identity(ctx, identityID)
	if err != nil {
		return Access{}, err
	}
	a := Access{
		Identity:  ident,
		CompanyID: companyID,
		Facts:     authz.Facts{GlobalRole: ident.GlobalRole},
	}
	if companyID == "" {
		return a, nil
	}
	m, err := g.store.CompanyMembership(ctx, companyID, identityID)
	switch {
	case err == nil:
		a.CompanyRole = m.Role
		a.Facts.CompanyRole = m.Role
	case !errors.Is(err, ErrNotFound):
		return Access{}, err
	}
	return a, nil
}

// CheckPlatformAdmin requires the PLATFORM_ADMIN global role.
func (g *Gate) CheckPlatformAdmin(ctx context.Context, identityID string) (Access, error) {
	a, err := g.load(ctx, identityID, "")
	if err == nil && !authz.IsPlatformAdmin(a.Facts.GlobalRole) {
		err = ErrForbidden
	}
	return a, decide("platform_admin", err)
}

// CheckCompanyMember requires any role in companyID.
func (g *Gate) CheckCompanyMember(ctx context.Context, identityID, companyID string) (Access, error) {
	return g.company(ctx, "company_member", identityID, companyID, func(authz.Facts) bool { return true })
}

// CheckCompanyAdminOrManager requires MANAGER or above in companyID.
func (g *Gate) CheckCompanyAdminOrManager(ctx context.Context, identityID, companyID string) (Access, error) {
	return g.company(ctx, "company_manager", identityID, companyID, func(f authz.Facts) bool {
		return authz.IsPlatformAdmin(f.GlobalRole) || authz.IsCompanyManagerOrAbove(f.CompanyRole)
	})
}

// CheckCompanyAdmin requires ADMIN or OWNER in companyID.
func (g *Gate) CheckCompanyAdmin(ctx context.Context, identityID, companyID string) (Access, error) {
	return g.company(ctx, "company_admin", identityID, companyID, func(f authz.Facts) bool {
		return authz.IsPlatformAdmin(f.GlobalRole) || authz.IsCompanyAdminOrAbove(f.CompanyRole)
	})
}

// CheckCompanyOwner requires OWNER in companyID. Platform admins are not
// exempt.
func (g *Gate) CheckCompanyOwner(ctx context.Context, identityID, companyID string) (Access, error) {
	return g.company(ctx, "company_owner", identityID, companyID, func(f authz.Facts) bool {
		return authz.IsCompanyOwner(f.CompanyRole)
	})
}

func (g *Gate) company(ctx context.Context, check, identityID, companyID string, allow func(authz.Facts) bool) (Access, error) {
	a, err := g.load(ctx, identityID, companyID)
	if err != nil {
		return Access{}, decide(check, err)
	}
	switch {
	case companyID == "":
		err = fmt.Errorf("%w: personal workspace", ErrNotAMember)
	case a.CompanyRole == authz.CompanyNone && !authz.IsPlatformAdmin(a.Facts.GlobalRole):
		err = ErrNotAMember
	case !allow(a.Facts):
		err = ErrForbidden
	}
	return a, decide(check, err)
}

// CheckProjectMembership allows callers who can view projectID from the
// workspace companyID.
func (g *Gate) CheckProjectMembership(ctx context.Context, identityID, companyID, projectID string) (Access, error) {
	return g.project(ctx, "project_view", identityID, companyID, projectID, authz.CanViewProject)
}

// CheckProjectLeadOrAdmin allows the project lead, company admins and
// platform admins.
func (g *Gate) CheckProjectLeadOrAdmin(ctx context.Context, identityID, companyID, projectID string) (Access, error) {
	return g.project(ctx, "project_lead", identityID, companyID, projectID, authz.CanManageProjectLead)
}

// CheckManageProjectMembers allows company managers and above.
func (g *Gate) CheckManageProjectMembers(ctx context.Context, identityID, companyID, projectID string) (Access, error) {
	return g.project(ctx, "project_members", identityID, companyID, projectID, authz.CanManageProjectMembers)
}

func (g *Gate) project(ctx context.Context, check, identityID, companyID, projectID string, allow func(authz.Facts) bool) (Access, error) {
	a, err := g.load(ctx, identityID, companyID)
	if err != nil {
		return Access{}, decide(check, err)
	}
	admin := authz.IsPlatformAdmin(a.Facts.GlobalRole)

	p, err := g.store.Project(ctx, projectID)
	if errors.Is(err, ErrNotFound) {
		if admin {
			return a, decide(check, err)
		}
		return a, decide(check, ErrForbidden)
	}
	if err != nil {
		return Access{}, decide(check, err)
	}
	a.Project = &p

	// Company-level facts only count for a project in the active company.
	if p.CompanyID != companyID {
		if !admin {
			return a, decide(check, ErrForbidden)
		}
		a.Facts.CompanyRole = authz.CompanyNone
	} else if !p.Personal() && a.CompanyRole == authz.CompanyNone && !admin {
		return a, decide(check, ErrForbidden)
	}

	if authz.NeedsProjectFacts(a.Facts) {
		pm, err := g.store.ProjectMembership(ctx, projectID, identityID)
		switch {
		case err == nil:
			a.Facts.IsProjectMember = true
			a.Facts.IsProjectLead = pm.Role == authz.ProjectLead
		case !errors.Is(err, ErrNotFound):
			return Access{}, decide(check, err)
		}
		if p.LeadID == identityID {
			a.Facts.IsProjectLead = true
		}
	}
	if !allow(a.Facts) {
		return a, decide(check, ErrForbidden)
	}
	return a, decide(check, nil)
}

func decide(check string, err error) error {
	outcome := "allow"
	switch {
	case err == nil:
	case IsDenial(err):
		outcome = "deny"
	default:
		outcome = "error"
	}
	obs.AuthzDecisions.WithLabelValues(check, outcome).Inc()
	return err
}
