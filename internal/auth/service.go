package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orbitdesk.io/internal/authz"
	"orbitdesk.io/internal/ids"
	"orbitdesk.io/internal/obs"
)

const defaultTOTPIssuer = "Orbit"

// Service authenticates identities, resolves workspaces, issues credentials
// and performs membership mutations.
type Service struct {
	store      Store
	now        func() time.Time
	secret     []byte
	issuerName string
	ttl        time.Duration
	totpIssuer string
	tokens     *Issuer
	attempts   *attemptBudget
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSigningSecret sets the HS256 secret used for session credentials.
func WithSigningSecret(secret string) ServiceOption {
	return func(s *Service) error {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return fmt.Errorf("%w: empty signing secret", ErrNotConfigured)
		}
		s.secret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuerName = strings.TrimSpace(issuer)
		return nil
	}
}

// WithSessionTTL configures credential lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.ttl = ttl
		}
		return nil
	}
}

// WithTOTPIssuer sets the issuer label shown by authenticator apps.
func WithTOTPIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.totpIssuer = issuer
		}
		return nil
	}
}

// WithSecondFactorBudget allows attempts failed second-factor codes per
// email, refilling over window.
func WithSecondFactorBudget(attempts int, window time.Duration) ServiceOption {
	return func(s *Service) error {
		if attempts <= 0 || window <= 0 {
			return fmt.Errorf("%w: second factor budget must be positive", ErrNotConfigured)
		}
		s.attempts = newAttemptBudget(attempts, window)
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration. A signing
// secret is required.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrNotConfigured)
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		ttl:        defaultSessionTTL,
		totpIssuer: defaultTOTPIssuer,
		attempts:   newAttemptBudget(defaultSecondFactorAttempts, defaultSecondFactorWindow),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	tokens, err := NewIssuer(svc.secret, svc.issuerName, svc.ttl, svc.now)
	if err != nil {
		return nil, err
	}
	svc.tokens = tokens
	return svc, nil
}

// Store exposes the underlying store for the gate and readiness checks.
func (s *Service) Store() Store {
	return s.store
}

// Outcome tells the caller what a login attempt produced.
type Outcome string

const (
	OutcomeAuthenticated        Outcome = "authenticated"
	OutcomeSecondFactorRequired Outcome = "second_factor_required"
	OutcomeAccountStatus        Outcome = "account_status"
)

// Login is the input of Authenticate. CompanyID optionally requests a
// specific workspace.
type Login struct {
	Email     string
	Password  string
	CompanyID string
}

// SecondFactor is the input of VerifySecondFactor.
type SecondFactor struct {
	Email     string
	Code      string
	CompanyID string
}

// LoginResult carries a credential only when Outcome is OutcomeAuthenticated.
type LoginResult struct {
	Outcome       Outcome    `json:"outcome"`
	Identity      Summary    `json:"identity"`
	Workspace     *Workspace `json:"workspace,omitempty"`
	Token         string     `json:"token,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	AccountStatus Status     `json:"account_status,omitempty"`
}

// Authenticate checks email and password. Unknown emails and wrong passwords
// both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, in Login) (LoginResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		burnPasswordCheck(in.Password)
		return LoginResult{}, ErrInvalidCredentials
	}
	ident, err := s.store.IdentityByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		burnPasswordCheck(in.Password)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err := VerifyPassword(ident.PasswordHash, in.Password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if ident.Status != StatusActive {
		return LoginResult{
			Outcome:       OutcomeAccountStatus,
			Identity:      ident.Summary(),
			AccountStatus: ident.Status,
		}, nil
	}
	if ident.HasSecondFactor() {
		return LoginResult{Outcome: OutcomeSecondFactorRequired, Identity: ident.Summary()}, nil
	}
	return s.completeLogin(ctx, ident, in.CompanyID, "login")
}

// VerifySecondFactor completes a login that returned
// OutcomeSecondFactorRequired. Failed codes spend the email's attempt
// budget; once it is empty every code, right or wrong, is ErrRateLimited
// until it refills.
func (s *Service) VerifySecondFactor(ctx context.Context, in SecondFactor) (LoginResult, error) {
	email := normalizeEmail(in.Email)
	code := strings.TrimSpace(in.Code)
	if email == "" || code == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	now := s.now()
	if s.attempts.exhausted(email, now) {
		return LoginResult{}, ErrRateLimited
	}
	ident, err := s.store.IdentityByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.attempts.fail(email, now)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if ident.Status != StatusActive || !ident.HasSecondFactor() || !checkTOTP(code, ident.SecondFactorSecret, now) {
		s.attempts.fail(email, now)
		return LoginResult{}, ErrInvalidCredentials
	}
	s.attempts.reset(email)
	return s.completeLogin(ctx, ident, in.CompanyID, "second_factor")
}

func (s *Service) completeLogin(ctx context.Context, ident Identity, requested, reason string) (LoginResult, error) {
	ws, err := resolveWorkspace(ctx, s.store, ident.ID, requested)
	if err != nil {
		return LoginResult{}, err
	}
	cred, err := s.issue(ident.ID, ws, reason)
	if err != nil {
		return LoginResult{}, err
	}
	exp := cred.Session.ExpiresAt
	return LoginResult{
		Outcome:   OutcomeAuthenticated,
		Identity:  ident.Summary(),
		Workspace: &cred.Workspace,
		Token:     cred.Token,
		ExpiresAt: &exp,
	}, nil
}

func (s *Service) issue(identityID string, ws Workspace, reason string) (Credential, error) {
	token, session, err := s.tokens.Issue(identityID, ws.CompanyID)
	if err != nil {
		return Credential{}, err
	}
	obs.CredentialsIssued.WithLabelValues(reason).Inc()
	return Credential{Token: token, Session: session, Workspace: ws}, nil
}

// VerifyToken checks a credential and returns its session. It does not touch
// the store; role facts are loaded by the Gate.
func (s *Service) VerifyToken(token string) (Session, error) {
	return s.tokens.Verify(token)
}

// Registration is the input of Register.
type Registration struct {
	Email       string
	Password    string
	DisplayName string
}

// Register creates an identity awaiting verification.
func (s *Service) Register(ctx context.Context, in Registration) (Identity, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Identity{}, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}
	now := s.now().UTC()
	ident := Identity{
		ID:           ids.New(),
		Email:        email,
		DisplayName:  name,
		GlobalRole:   authz.GlobalPlatformUser,
		Status:       StatusPendingVerification,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateIdentity(ctx, &ident); err != nil {
		return Identity{}, err
	}
	return ident, nil
}

// SetIdentityStatus moves an identity through its lifecycle. Forward moves
// towards ACTIVE are allowed, ACTIVE is final, and REJECTED can be entered
// from or left to either pending state.
func (s *Service) SetIdentityStatus(ctx context.Context, identityID string, next Status) (Identity, error) {
	if !next.Valid() {
		return Identity{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, next)
	}
	var out Identity
	err := s.store.WithinTx(ctx, func(q Queries) error {
		ident, err := q.IdentityByID(ctx, identityID)
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if ident.Status == next {
			out = ident
			return nil
		}
		if !statusTransitionAllowed(ident.Status, next) {
			return fmt.Errorf("%w: %s cannot become %s", ErrInvalidInput, ident.Status, next)
		}
		if err := q.UpdateIdentityStatus(ctx, identityID, next); err != nil {
			return err
		}
		ident.Status = next
		ident.UpdatedAt = s.now().UTC()
		out = ident
		return nil
	})
	return out, err
}

var statusRank = map[Status]int{
	StatusPendingVerification: 0,
	StatusPendingApproval:     1,
	StatusActive:              2,
}

func statusTransitionAllowed(from, to Status) bool {
	switch {
	case from == StatusActive:
		return false
	case to == StatusRejected:
		return from == StatusPendingVerification || from == StatusPendingApproval
	case from == StatusRejected:
		return to == StatusPendingVerification || to == StatusPendingApproval
	}
	return statusRank[to] > statusRank[from]
}

// Enrollment is a freshly generated second-factor secret.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// EnrollSecondFactor generates and stores a TOTP secret for an identity that
// has none yet.
func (s *Service) EnrollSecondFactor(ctx context.Context, identityID string) (Enrollment, error) {
	var out Enrollment
	err := s.store.WithinTx(ctx, func(q Queries) error {
		ident, err := q.IdentityByID(ctx, identityID)
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if ident.HasSecondFactor() {
			return fmt.Errorf("%w: second factor already enrolled", ErrConflict)
		}
		key, err := newTOTPKey(s.totpIssuer, ident.Email)
		if err != nil {
			return err
		}
		if err := q.SetSecondFactorSecret(ctx, ident.ID, key.Secret()); err != nil {
			return err
		}
		out = Enrollment{Secret: key.Secret(), URL: key.URL()}
		return nil
	})
	return out, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
