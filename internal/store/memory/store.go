// Package memory is an in-process auth.Store. A single mutex serializes
// transactions; writes inside WithinTx go to a private copy that replaces the
// live state only when fn succeeds.
package memory

import (
	"context"
	"sort"
	"sync"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/authz"
)

type pairKey struct{ a, b string }

// Issue is the minimal issue row touched by member removal.
type Issue struct {
	ID         string
	ProjectID  string
	AssigneeID string
}

type state struct {
	identities     map[string]auth.Identity
	emails         map[string]string
	preferences    map[string]auth.Preference
	companies      map[string]auth.Company
	slugs          map[string]string
	companyMembers map[pairKey]auth.CompanyMembership
	projects       map[string]auth.Project
	projectMembers map[pairKey]auth.ProjectMembership
	issues         map[string]Issue
}

func newState() *state {
	return &state{
		identities:     map[string]auth.Identity{},
		emails:         map[string]string{},
		preferences:    map[string]auth.Preference{},
		companies:      map[string]auth.Company{},
		slugs:          map[string]string{},
		companyMembers: map[pairKey]auth.CompanyMembership{},
		projects:       map[string]auth.Project{},
		projectMembers: map[pairKey]auth.ProjectMembership{},
		issues:         map[string]Issue{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.identities {
		c.identities[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.preferences {
		c.preferences[k] = v
	}
	for k, v := range s.companies {
		c.companies[k] = v
	}
	for k, v := range s.slugs {
		c.slugs[k] = v
	}
	for k, v := range s.companyMembers {
		c.companyMembers[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.projectMembers {
		c.projectMembers[k] = v
	}
	for k, v := range s.issues {
		c.issues[k] = v
	}
	return c
}

// Store keeps everything in maps.
type Store struct {
	mu    sync.Mutex
	state *state
	view
}

var _ auth.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	s := &Store{state: newState()}
	s.view = view{store: s}
	return s
}

// WithinTx runs fn against a copy of the state and commits it when fn returns
// nil. Transactions are fully serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(q auth.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(view{store: s, tx: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// SeedIssue stores an issue row so removal side effects can be observed.
func (s *Store) SeedIssue(issue Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.issues[issue.ID] = issue
}

// IssueAssignee returns the assignee of an issue, empty when unassigned.
func (s *Store) IssueAssignee(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.issues[id].AssigneeID
}

// view serves Queries either against a transaction's working copy (tx set)
// or against the live state under the store lock.
type view struct {
	store *Store
	tx    *state
}

func (v view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

func (v view) CreateIdentity(_ context.Context, ident *auth.Identity) error {
	return v.do(func(st *state) error {
		if _, ok := st.emails[ident.Email]; ok {
			return auth.ErrConflict
		}
		if _, ok := st.identities[ident.ID]; ok {
			return auth.ErrConflict
		}
		st.identities[ident.ID] = *ident
		st.emails[ident.Email] = ident.ID
		return nil
	})
}

func (v view) IdentityByID(_ context.Context, id string) (auth.Identity, error) {
	var out auth.Identity
	err := v.do(func(st *state) error {
		ident, ok := st.identities[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = ident
		return nil
	})
	return out, err
}

func (v view) IdentityByEmail(_ context.Context, email string) (auth.Identity, error) {
	var out auth.Identity
	err := v.do(func(st *state) error {
		id, ok := st.emails[email]
		if !ok {
			return auth.ErrNotFound
		}
		out = st.identities[id]
		return nil
	})
	return out, err
}

func (v view) UpdateIdentityStatus(_ context.Context, id string, status auth.Status) error {
	return v.do(func(st *state) error {
		ident, ok := st.identities[id]
		if !ok {
			return auth.ErrNotFound
		}
		ident.Status = status
		st.identities[id] = ident
		return nil
	})
}

func (v view) SetSecondFactorSecret(_ context.Context, id, secret string) error {
	return v.do(func(st *state) error {
		ident, ok := st.identities[id]
		if !ok {
			return auth.ErrNotFound
		}
		ident.SecondFactorSecret = secret
		st.identities[id] = ident
		return nil
	})
}

func (v view) Preference(_ context.Context, identityID string) (auth.Preference, error) {
	var out auth.Preference
	err := v.do(func(st *state) error {
		p, ok := st.preferences[identityID]
		if !ok {
			return auth.ErrNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (v view) SavePreference(_ context.Context, pref auth.Preference) error {
	return v.do(func(st *state) error {
		if _, ok := st.identities[pref.IdentityID]; !ok {
			return auth.ErrNotFound
		}
		st.preferences[pref.IdentityID] = pref
		return nil
	})
}

func (v view) CreateCompany(_ context.Context, company *auth.Company) error {
	return v.do(func(st *state) error {
		if _, ok := st.slugs[company.Slug]; ok {
			return auth.ErrConflict
		}
		st.companies[company.ID] = *company
		st.slugs[company.Slug] = company.ID
		return nil
	})
}

func (v view) LockCompany(_ context.Context, id string) (auth.Company, error) {
	var out auth.Company
	err := v.do(func(st *state) error {
		c, ok := st.companies[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = c
		return nil
	})
	return out, err
}

func (v view) CompanyMembership(_ context.Context, companyID, identityID string) (auth.CompanyMembership, error) {
	var out auth.CompanyMembership
	err := v.do(func(st *state) error {
		m, ok := st.companyMembers[pairKey{companyID, identityID}]
		if !ok {
			return auth.ErrNotFound
		}
		out = m
		return nil
	})
	return out, err
}

func (v view) CompanyMembers(_ context.Context, companyID string) ([]auth.Member, error) {
	var out []auth.Member
	err := v.do(func(st *state) error {
		for k, m := range st.companyMembers {
			if k.a != companyID {
				continue
			}
			ident := st.identities[k.b]
			out = append(out, auth.Member{CompanyMembership: m, Email: ident.Email, DisplayName: ident.DisplayName})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].IdentityID < out[j].IdentityID
	})
	return out, err
}

func (v view) MembershipsForIdentity(_ context.Context, identityID string) ([]auth.CompanyMembership, error) {
	var out []auth.CompanyMembership
	err := v.do(func(st *state) error {
		for k, m := range st.companyMembers {
			if k.b == identityID {
				out = append(out, m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, err
}

func (v view) CountOwners(_ context.Context, companyID string) (int, error) {
	n := 0
	err := v.do(func(st *state) error {
		for k, m := range st.companyMembers {
			if k.a == companyID && m.Role == authz.CompanyOwner {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (v view) InsertCompanyMembership(_ context.Context, m auth.CompanyMembership) error {
	return v.do(func(st *state) error {
		if _, ok := st.companies[m.CompanyID]; !ok {
			return auth.ErrNotFound
		}
		if _, ok := st.identities[m.IdentityID]; !ok {
			return auth.ErrNotFound
		}
		key := pairKey{m.CompanyID, m.IdentityID}
		if _, ok := st.companyMembers[key]; ok {
			return auth.ErrConflict
		}
		st.companyMembers[key] = m
		return nil
	})
}

func (v view) UpdateCompanyMembershipRole(_ context.Context, companyID, identityID string, role authz.CompanyRole) error {
	return v.do(func(st *state) error {
		key := pairKey{companyID, identityID}
		m, ok := st.companyMembers[key]
		if !ok {
			return auth.ErrNotFound
		}
		m.Role = role
		st.companyMembers[key] = m
		return nil
	})
}

func (v view) DeleteCompanyMembership(_ context.Context, companyID, identityID string) error {
	return v.do(func(st *state) error {
		key := pairKey{companyID, identityID}
		if _, ok := st.companyMembers[key]; !ok {
			return auth.ErrNotFound
		}
		delete(st.companyMembers, key)
		return nil
	})
}

func (v view) ClearIssueAssignees(_ context.Context, companyID, identityID string) (int64, error) {
	var n int64
	err := v.do(func(st *state) error {
		for id, is := range st.issues {
			if is.AssigneeID != identityID {
				continue
			}
			if p, ok := st.projects[is.ProjectID]; !ok || p.CompanyID != companyID {
				continue
			}
			is.AssigneeID = ""
			st.issues[id] = is
			n++
		}
		return nil
	})
	return n, err
}

func (v view) CountProjectsLedBy(_ context.Context, companyID, identityID string) (int, error) {
	n := 0
	err := v.do(func(st *state) error {
		for _, p := range st.projects {
			if p.CompanyID == companyID && p.LeadID == identityID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (v view) DeleteCompanyProjectMemberships(_ context.Context, companyID, identityID string) (int64, error) {
	var n int64
	err := v.do(func(st *state) error {
		for k := range st.projectMembers {
			if k.b != identityID {
				continue
			}
			if p, ok := st.projects[k.a]; !ok || p.CompanyID != companyID {
				continue
			}
			delete(st.projectMembers, k)
			n++
		}
		return nil
	})
	return n, err
}

func (v view) CreateProject(_ context.Context, project *auth.Project) error {
	return v.do(func(st *state) error {
		if _, ok := st.projects[project.ID]; ok {
			return auth.ErrConflict
		}
		if project.CompanyID != "" {
			if _, ok := st.companies[project.CompanyID]; !ok {
				return auth.ErrNotFound
			}
		}
		st.projects[project.ID] = *project
		return nil
	})
}

func (v view) Project(_ context.Context, id string) (auth.Project, error) {
	var out auth.Project
	err := v.do(func(st *state) error {
		p, ok := st.projects[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (v view) LockProject(ctx context.Context, id string) (auth.Project, error) {
	return v.Project(ctx, id)
}

func (v view) ProjectMembership(_ context.Context, projectID, identityID string) (auth.ProjectMembership, error) {
	var out auth.ProjectMembership
	err := v.do(func(st *state) error {
		m, ok := st.projectMembers[pairKey{projectID, identityID}]
		if !ok {
			return auth.ErrNotFound
		}
		out = m
		return nil
	})
	return out, err
}

func (v view) InsertProjectMembership(_ context.Context, m auth.ProjectMembership) error {
	return v.do(func(st *state) error {
		if _, ok := st.projects[m.ProjectID]; !ok {
			return auth.ErrNotFound
		}
		key := pairKey{m.ProjectID, m.IdentityID}
		if _, ok := st.projectMembers[key]; ok {
			return auth.ErrConflict
		}
		st.projectMembers[key] = m
		return nil
	})
}

func (v view) UpdateProjectMembershipRole(_ context.Context, projectID, identityID string, role authz.ProjectRole) error {
	return v.do(func(st *state) error {
		key := pairKey{projectID, identityID}
		m, ok := st.projectMembers[key]
		if !ok {
			return auth.ErrNotFound
		}
		m.Role = role
		st.projectMembers[key] = m
		return nil
	})
}

func (v view) DeleteProjectMembership(_ context.Context, projectID, identityID string) error {
	return v.do(func(st *state) error {
		key := pairKey{projectID, identityID}
		if _, ok := st.projectMembers[key]; !ok {
			return auth.ErrNotFound
		}
		delete(st.projectMembers, key)
		return nil
	})
}

func (v view) SetProjectLead(_ context.Context, projectID, identityID string) error {
	return v.do(func(st *state) error {
		p, ok := st.projects[projectID]
		if !ok {
			return auth.ErrNotFound
		}
		p.LeadID = identityID
		st.projects[projectID] = p
		return nil
	})
}
