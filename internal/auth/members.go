package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"orbitdesk.io/internal/authz"
	"orbitdesk.io/internal/ids"
	"orbitdesk.io/internal/obs"
)

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug from a company name.
func Slugify(name string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// CreateCompany creates a company with creatorID as its first OWNER.
func (s *Service) CreateCompany(ctx context.Context, creatorID, name, slug string) (Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	slug = Slugify(slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		// Names with no ASCII letters or digits still get a unique slug.
		slug = "company-" + strings.ToLower(ids.New())
	}

	var company Company
	err := s.store.WithinTx(ctx, func(q Queries) error {
		creator, err := q.IdentityByID(ctx, creatorID)
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if creator.Status != StatusActive {
			return fmt.Errorf("%w: creator is not active", ErrForbidden)
		}
		now := s.now().UTC()
		company = Company{ID: ids.New(), Name: name, Slug: slug, CreatedAt: now}
		if err := q.CreateCompany(ctx, &company); err != nil {
			return err
		}
		return q.InsertCompanyMembership(ctx, CompanyMembership{
			CompanyID:  company.ID,
			IdentityID: creator.ID,
			Role:       authz.CompanyOwner,
			CreatedAt:  now,
		})
	})
	recordMutation("create_company", err)
	if err != nil {
		return Company{}, err
	}
	return company, nil
}

// InviteMember adds the identity registered under email to the company. An
// empty role means MEMBER.
func (s *Service) InviteMember(ctx context.Context, companyID, email string, role authz.CompanyRole) (CompanyMembership, error) {
	email = normalizeEmail(email)
	if email == "" {
		return CompanyMembership{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if role == authz.CompanyNone {
		role = authz.CompanyMember
	}
	if !role.Valid() {
		return CompanyMembership{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	var out CompanyMembership
	err := s.store.WithinTx(ctx, func(q Queries) error {
		if _, err := q.LockCompany(ctx, companyID); err != nil {
			return err
		}
		ident, err := q.IdentityByEmail(ctx, email)
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		_, err = q.CompanyMembership(ctx, companyID, ident.ID)
		switch {
		case err == nil:
			return ErrUserAlreadyMember
		case !errors.Is(err, ErrNotFound):
			return err
		}
		out = CompanyMembership{
			CompanyID:  companyID,
			IdentityID: ident.ID,
			Role:       role,
			CreatedAt:  s.now().UTC(),
		}
		err = q.InsertCompanyMembership(ctx, out)
		if errors.Is(err, ErrConflict) {
			return ErrUserAlreadyMember
		}
		return err
	})
	recordMutation("invite", err)
	if err != nil {
		return CompanyMembership{}, err
	}
	return out, nil
}

// RemoveMember deletes a membership, drops the identity from the company's
// projects and unassigns it from their issues. A member who still leads a
// project must hand the lead over first.
func (s *Service) RemoveMember(ctx context.Context, companyID, identityID string) error {
	return s.removeMember(ctx, "", companyID, identityID)
}

// RemoveMemberAs is RemoveMember on behalf of actorID. Removing an OWNER
// requires actorID to hold OWNER at commit time.
func (s *Service) RemoveMemberAs(ctx context.Context, actorID, companyID, identityID string) error {
	if actorID == "" {
		return ErrSessionInvalid
	}
	return s.removeMember(ctx, actorID, companyID, identityID)
}

func (s *Service) removeMember(ctx context.Context, actorID, companyID, identityID string) error {
	err := s.store.WithinTx(ctx, func(q Queries) error {
		m, err := lockedMembership(ctx, q, companyID, identityID)
		if err != nil {
			return err
		}
		if m.Role == authz.CompanyOwner {
			if err := requireOwnerActor(ctx, q, companyID, actorID); err != nil {
				return err
			}
			if err := ensureAnotherOwner(ctx, q, companyID); err != nil {
				return err
			}
		}
		led, err := q.CountProjectsLedBy(ctx, companyID, identityID)
		if err != nil {
			return err
		}
		if led > 0 {
			return fmt.Errorf("%w: transfer the lead of %d project(s) before removing the member", ErrInvalidInput, led)
		}
		if err := q.DeleteCompanyMembership(ctx, companyID, identityID); err != nil {
			return err
		}
		if _, err := q.DeleteCompanyProjectMemberships(ctx, companyID, identityID); err != nil {
			return err
		}
		_, err = q.ClearIssueAssignees(ctx, companyID, identityID)
		return err
	})
	recordMutation("remove", err)
	return err
}

// UpdateMemberRole changes a member's company role.
func (s *Service) UpdateMemberRole(ctx context.Context, companyID, identityID string, role authz.CompanyRole) (CompanyMembership, error) {
	return s.updateMemberRole(ctx, "", companyID, identityID, role)
}

// UpdateMemberRoleAs is UpdateMemberRole on behalf of actorID. Granting OWNER
// or changing an existing OWNER requires actorID to hold OWNER at commit time.
func (s *Service) UpdateMemberRoleAs(ctx context.Context, actorID, companyID, identityID string, role authz.CompanyRole) (CompanyMembership, error) {
	if actorID == "" {
		return CompanyMembership{}, ErrSessionInvalid
	}
	return s.updateMemberRole(ctx, actorID, companyID, identityID, role)
}

func (s *Service) updateMemberRole(ctx context.Context, actorID, companyID, identityID string, role authz.CompanyRole) (CompanyMembership, error) {
	if !role.Valid() {
		return CompanyMembership{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	var out CompanyMembership
	err := s.store.WithinTx(ctx, func(q Queries) error {
		m, err := lockedMembership(ctx, q, companyID, identityID)
		if err != nil {
			return err
		}
		if m.Role == authz.CompanyOwner || role == authz.CompanyOwner {
			if err := requireOwnerActor(ctx, q, companyID, actorID); err != nil {
				return err
			}
		}
		if m.Role == role {
			out = m
			return nil
		}
		if m.Role == authz.CompanyOwner {
			if err := ensureAnotherOwner(ctx, q, companyID); err != nil {
				return err
			}
		}
		if err := q.UpdateCompanyMembershipRole(ctx, companyID, identityID, role); err != nil {
			return err
		}
		m.Role = role
		out = m
		return nil
	})
	recordMutation("update_role", err)
	if err != nil {
		return CompanyMembership{}, err
	}
	return out, nil
}

// ListMembers returns the company's members with their identities.
func (s *Service) ListMembers(ctx context.Context, companyID string) ([]Member, error) {
	return s.store.CompanyMembers(ctx, companyID)
}

// ListCompanies returns every membership the identity holds.
func (s *Service) ListCompanies(ctx context.Context, identityID string) ([]CompanyMembership, error) {
	return s.store.MembershipsForIdentity(ctx, identityID)
}

// lockedMembership locks the company row and loads the target membership.
func lockedMembership(ctx context.Context, q Queries, companyID, identityID string) (CompanyMembership, error) {
	if _, err := q.LockCompany(ctx, companyID); err != nil {
		return CompanyMembership{}, err
	}
	m, err := q.CompanyMembership(ctx, companyID, identityID)
	if errors.Is(err, ErrNotFound) {
		return CompanyMembership{}, ErrUserNotMember
	}
	return m, err
}

// requireOwnerActor checks the actor's role inside the transaction, after the
// company lock, so a concurrent demotion of the actor is observed. An empty
// actorID is an internal caller and passes.
func requireOwnerActor(ctx context.Context, q Queries, companyID, actorID string) error {
	if actorID == "" {
		return nil
	}
	m, err := q.CompanyMembership(ctx, companyID, actorID)
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: only an owner can change an owner", ErrForbidden)
	case err != nil:
		return err
	case m.Role != authz.CompanyOwner:
		return fmt.Errorf("%w: only an owner can change an owner", ErrForbidden)
	}
	return nil
}

func ensureAnotherOwner(ctx context.Context, q Queries, companyID string) error {
	owners, err := q.CountOwners(ctx, companyID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}

func recordMutation(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrLastOwner):
		outcome = "last_owner"
	case errors.Is(err, ErrForbidden):
		outcome = "forbidden"
	case errors.Is(err, ErrUserAlreadyMember):
		outcome = "already_member"
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrUserNotMember), errors.Is(err, ErrNotAMember):
		outcome = "not_member"
	default:
		outcome = obs.Outcome(err)
	}
	obs.MembershipMutations.WithLabelValues(op, outcome).Inc()
}
