package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrConflict      = errors.New("auth: conflict")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrNotConfigured = errors.New("auth: not configured")
)

// Denials and invariant violations surfaced by the engine. Callers match them
// with errors.Is; transports translate them into generic responses.
var (
	// ErrInvalidCredentials covers unknown emails, wrong passwords, bad second
	// factor codes and malformed or expired tokens alike.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrNotAMember         = errors.New("auth: not a member")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserAlreadyMember  = errors.New("auth: user already a member")
	ErrUserNotMember      = errors.New("auth: user is not a member")
	ErrLastOwner          = errors.New("auth: company must keep at least one owner")
	ErrForbidden          = errors.New("auth: forbidden")
	// ErrRateLimited means the caller spent its attempt budget; the answer
	// does not depend on whether the attempt would have succeeded.
	ErrRateLimited = errors.New("auth: too many attempts")
	// ErrSessionInvalid means an authenticated request reached a handler
	// without a usable session. It indicates a wiring bug, not a user error.
	ErrSessionInvalid = errors.New("auth: session invalid")
)

// IsDenial reports whether err is an ordinary authorization outcome as opposed
// to an infrastructure failure.
func IsDenial(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrNotAMember) ||
		errors.Is(err, ErrForbidden)
}
