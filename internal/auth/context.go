package auth

import "context"

type sessionContextKey struct{}
type tokenContextKey struct{}

// ContextWithSession attaches the verified session to the context.
func ContextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &session)
}

// SessionFromContext extracts the verified session from the context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil || v.IdentityID == "" {
		return Session{}, false
	}
	return *v, true
}

// RequireSession is SessionFromContext for handlers that sit behind the
// authentication middleware; a missing session there is ErrSessionInvalid.
func RequireSession(ctx context.Context) (Session, error) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return Session{}, ErrSessionInvalid
	}
	return s, nil
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
