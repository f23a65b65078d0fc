// Package grpcauth carries session verification and store readiness onto
// gRPC servers. The process registers only the health service itself; the
// interceptors exist for services that embed this engine and register their
// own RPCs, which read the session with auth.SessionFromContext and ask the
// gate for role facts, exactly like the HTTP handlers.
package grpcauth

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/obs"
)

const (
	authorizationKey = "authorization"
	healthPrefix     = "/grpc.health.v1.Health/"
	reflectionPrefix = "/grpc.reflection."
)

type verifier interface {
	VerifyToken(token string) (auth.Session, error)
}

type identityLoader interface {
	Identity(ctx context.Context, identityID string) (auth.Identity, error)
}

// Authenticator verifies bearer credentials from incoming metadata.
type Authenticator struct {
	tokens     verifier
	identities identityLoader
}

func New(svc *auth.Service, gate *auth.Gate) *Authenticator {
	return &Authenticator{tokens: svc, identities: gate}
}

// Unary returns the unary server interceptor.
func (a *Authenticator) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isPublicMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		ctx, err := a.authenticate(ctx)
		if err != nil {
			return nil, ToStatus(info.FullMethod, err)
		}
		return handler(ctx, req)
	}
}

// Stream returns the stream server interceptor.
func (a *Authenticator) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if isPublicMethod(info.FullMethod) {
			return handler(srv, ss)
		}
		ctx, err := a.authenticate(ss.Context())
		if err != nil {
			return ToStatus(info.FullMethod, err)
		}
		return handler(srv, &sessionStream{ServerStream: ss, ctx: ctx})
	}
}

func (a *Authenticator) authenticate(ctx context.Context) (context.Context, error) {
	token, err := bearerFromMetadata(ctx)
	if err != nil {
		return ctx, err
	}
	session, err := a.tokens.VerifyToken(token)
	if err != nil {
		return ctx, err
	}
	if _, err := a.identities.Identity(ctx, session.IdentityID); err != nil {
		return ctx, err
	}
	ctx = auth.ContextWithSession(ctx, session)
	return auth.ContextWithToken(ctx, token), nil
}

func bearerFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", auth.ErrInvalidCredentials
	}
	values := md.Get(authorizationKey)
	if len(values) == 0 {
		return "", auth.ErrInvalidCredentials
	}
	raw := strings.TrimSpace(values[0])
	const prefix = "bearer "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return "", auth.ErrInvalidCredentials
	}
	token := strings.TrimSpace(raw[len(prefix):])
	if token == "" {
		return "", auth.ErrInvalidCredentials
	}
	return token, nil
}

func isPublicMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, healthPrefix) || strings.HasPrefix(fullMethod, reflectionPrefix)
}

type sessionStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *sessionStream) Context() context.Context {
	return s.ctx
}

// ToStatus maps engine errors onto gRPC codes. Denials carry generic messages.
func ToStatus(method string, err error) error {
	if err == nil {
		return nil
	}
	entry := obs.Logger().WithFields(logrus.Fields{"rpc": method})
	switch {
	case errors.Is(err, auth.ErrSessionInvalid):
		entry.WithError(err).Error("authenticated rpc without session")
		return status.Error(codes.Unauthenticated, "invalid session")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, auth.ErrNotAMember), errors.Is(err, auth.ErrForbidden):
		entry.WithError(err).Info("rpc denied")
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, auth.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "too many attempts")
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrUserNotMember),
		errors.Is(err, auth.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, auth.ErrUserAlreadyMember), errors.Is(err, auth.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, auth.ErrLastOwner):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	entry.WithError(err).Error("rpc failed")
	return status.Error(codes.Internal, "internal error")
}
