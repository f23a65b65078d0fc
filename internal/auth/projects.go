package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"orbitdesk.io/internal/authz"
	"orbitdesk.io/internal/ids"
)

// CreateProject creates a project led by creatorID. An empty companyID makes
// a personal project; otherwise the creator must belong to the company.
func (s *Service) CreateProject(ctx context.Context, creatorID, companyID, name string) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	var out Project
	err := s.store.WithinTx(ctx, func(q Queries) error {
		if companyID != "" {
			if _, err := q.LockCompany(ctx, companyID); err != nil {
				return err
			}
			if _, err := q.CompanyMembership(ctx, companyID, creatorID); err != nil {
				if errors.Is(err, ErrNotFound) {
					return ErrNotAMember
				}
				return err
			}
		}
		now := s.now().UTC()
		out = Project{ID: ids.New(), CompanyID: companyID, Name: name, LeadID: creatorID, CreatedAt: now}
		if err := q.CreateProject(ctx, &out); err != nil {
			return err
		}
		return q.InsertProjectMembership(ctx, ProjectMembership{
			ProjectID:  out.ID,
			IdentityID: creatorID,
			Role:       authz.ProjectLead,
			CreatedAt:  now,
		})
	})
	recordMutation("create_project", err)
	if err != nil {
		return Project{}, err
	}
	return out, nil
}

// AddProjectMember adds a company member to a company project.
func (s *Service) AddProjectMember(ctx context.Context, projectID, identityID string) (ProjectMembership, error) {
	var out ProjectMembership
	err := s.store.WithinTx(ctx, func(q Queries) error {
		p, err := q.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if p.Personal() {
			return fmt.Errorf("%w: personal projects have no members besides the creator", ErrInvalidInput)
		}
		if _, err := q.CompanyMembership(ctx, p.CompanyID, identityID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotAMember
			}
			return err
		}
		_, err = q.ProjectMembership(ctx, projectID, identityID)
		switch {
		case err == nil:
			return ErrUserAlreadyMember
		case !errors.Is(err, ErrNotFound):
			return err
		}
		out = ProjectMembership{
			ProjectID:  projectID,
			IdentityID: identityID,
			Role:       authz.ProjectMember,
			CreatedAt:  s.now().UTC(),
		}
		err = q.InsertProjectMembership(ctx, out)
		if errors.Is(err, ErrConflict) {
			return ErrUserAlreadyMember
		}
		return err
	})
	recordMutation("add_project_member", err)
	if err != nil {
		return ProjectMembership{}, err
	}
	return out, nil
}

// RemoveProjectMember removes a non-lead member from a project.
func (s *Service) RemoveProjectMember(ctx context.Context, projectID, identityID string) error {
	err := s.store.WithinTx(ctx, func(q Queries) error {
		p, err := q.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if p.LeadID == identityID {
			return fmt.Errorf("%w: transfer the lead before removing them", ErrInvalidInput)
		}
		if _, err := q.ProjectMembership(ctx, projectID, identityID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUserNotMember
			}
			return err
		}
		return q.DeleteProjectMembership(ctx, projectID, identityID)
	})
	recordMutation("remove_project_member", err)
	return err
}

// TransferProjectLead makes newLeadID the project lead. The new lead must
// already be a project member and, for company projects, still belong to the
// company; the previous lead stays on as a MEMBER.
func (s *Service) TransferProjectLead(ctx context.Context, projectID, newLeadID string) (Project, error) {
	var out Project
	err := s.store.WithinTx(ctx, func(q Queries) error {
		p, err := q.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if _, err := q.ProjectMembership(ctx, projectID, newLeadID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotAMember
			}
			return err
		}
		if !p.Personal() {
			if _, err := q.CompanyMembership(ctx, p.CompanyID, newLeadID); err != nil {
				if errors.Is(err, ErrNotFound) {
					return ErrNotAMember
				}
				return err
			}
		}
		if p.LeadID == newLeadID {
			out = p
			return nil
		}
		if err := q.UpdateProjectMembershipRole(ctx, projectID, newLeadID, authz.ProjectLead); err != nil {
			return err
		}
		if p.LeadID != "" {
			err := q.UpdateProjectMembershipRole(ctx, projectID, p.LeadID, authz.ProjectMember)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		if err := q.SetProjectLead(ctx, projectID, newLeadID); err != nil {
			return err
		}
		p.LeadID = newLeadID
		out = p
		return nil
	})
	recordMutation("transfer_lead", err)
	if err != nil {
		return Project{}, err
	}
	return out, nil
}
