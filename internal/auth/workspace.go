package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// resolveWorkspace picks the active company for identityID. Precedence:
// the requested company, then a saved company that is still a membership,
// then an explicit personal choice, then the single-company fallback which
// only applies when no preference was ever saved, then personal.
func resolveWorkspace(ctx context.Context, q Queries, identityID, requested string) (Workspace, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		m, err := q.CompanyMembership(ctx, requested, identityID)
		if errors.Is(err, ErrNotFound) {
			return Workspace{}, fmt.Errorf("%w: company %s", ErrNotAMember, requested)
		}
		if err != nil {
			return Workspace{}, err
		}
		return Workspace{CompanyID: m.CompanyID, Role: m.Role, Source: SourceRequested}, nil
	}

	pref, err := q.Preference(ctx, identityID)
	switch {
	case err == nil:
		if pref.LastActiveCompanyID == "" {
			return personalWorkspace(), nil
		}
		m, err := q.CompanyMembership(ctx, pref.LastActiveCompanyID, identityID)
		if errors.Is(err, ErrNotFound) {
			// Saved company is gone; the record still exists so the
			// single-company fallback does not apply.
			return personalWorkspace(), nil
		}
		if err != nil {
			return Workspace{}, err
		}
		return Workspace{CompanyID: m.CompanyID, Role: m.Role, Source: SourcePreference}, nil
	case !errors.Is(err, ErrNotFound):
		return Workspace{}, err
	}

	memberships, err := q.MembershipsForIdentity(ctx, identityID)
	if err != nil {
		return Workspace{}, err
	}
	if len(memberships) == 1 {
		m := memberships[0]
		return Workspace{CompanyID: m.CompanyID, Role: m.Role, Source: SourceSingleCompany}, nil
	}
	return personalWorkspace(), nil
}

func personalWorkspace() Workspace {
	return Workspace{Source: SourcePersonal}
}

// ResolveWorkspace reports the workspace a session for identityID would use.
// It never writes; only SwitchWorkspace persists a choice.
func (s *Service) ResolveWorkspace(ctx context.Context, identityID, requestedCompanyID string) (Workspace, error) {
	if strings.TrimSpace(identityID) == "" {
		return Workspace{}, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	return resolveWorkspace(ctx, s.store, identityID, requestedCompanyID)
}

// SwitchWorkspace makes companyID (empty for personal) the identity's saved
// workspace and re-issues a credential bound to it.
func (s *Service) SwitchWorkspace(ctx context.Context, identityID, companyID string) (Credential, error) {
	identityID = strings.TrimSpace(identityID)
	companyID = strings.TrimSpace(companyID)
	if identityID == "" {
		return Credential{}, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}

	ws := personalWorkspace()
	err := s.store.WithinTx(ctx, func(q Queries) error {
		if companyID != "" {
			resolved, err := resolveWorkspace(ctx, q, identityID, companyID)
			if err != nil {
				return err
			}
			ws = resolved
		}
		return q.SavePreference(ctx, Preference{
			IdentityID:          identityID,
			LastActiveCompanyID: companyID,
			UpdatedAt:           s.now().UTC(),
		})
	})
	if err != nil {
		return Credential{}, err
	}
	return s.issue(identityID, ws, "switch")
}
