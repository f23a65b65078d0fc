package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "orbit"
	defaultSessionTTL = 30 * 24 * time.Hour
	issuedAtSkew      = 5 * time.Second
)

// sessionClaims carry identity and workspace only; roles are re-read from the
// store on every request.
type sessionClaims struct {
	CompanyID string `json:"cid,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session credentials with a shared HS256 secret.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an Issuer. Empty issuer and non-positive ttl fall back to
// the defaults.
func NewIssuer(secret []byte, issuer string, ttl time.Duration, now func() time.Time) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is required", ErrNotConfigured)
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl, now: now}, nil
}

// Issue mints a credential binding identityID to companyID (empty for the
// personal workspace).
func (i *Issuer) Issue(identityID, companyID string) (string, Session, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return "", Session{}, errors.New("identity id is required")
	}
	now := i.now().UTC().Truncate(time.Second)
	claims := sessionClaims{
		CompanyID: strings.TrimSpace(companyID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.session(), nil
}

// Verify checks signature, algorithm, issuer and lifetime. Every failure is
// reported as ErrInvalidCredentials.
func (i *Issuer) Verify(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidCredentials
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(issuedAtSkew),
		jwt.WithTimeFunc(i.now),
	)
	var claims sessionClaims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Session{}, ErrInvalidCredentials
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return Session{}, ErrInvalidCredentials
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return Session{}, ErrInvalidCredentials
	}
	return claims.session(), nil
}

// TTL returns the lifetime of issued credentials.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (c sessionClaims) session() Session {
	s := Session{
		IdentityID: c.Subject,
		CompanyID:  c.CompanyID,
		TokenID:    c.ID,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}
