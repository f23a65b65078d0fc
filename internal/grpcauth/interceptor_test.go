package grpcauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/authz"
	"orbitdesk.io/internal/ids"
	"orbitdesk.io/internal/store/memory"
)

type fixture struct {
	interceptor *Authenticator
	store       *memory.Store
	svc         *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	svc, err := auth.NewService(st, auth.WithSigningSecret("grpc-test-secret"))
	require.NoError(t, err)
	return &fixture{interceptor: New(svc, auth.NewGate(st)), store: st, svc: svc}
}

func (f *fixture) token(t *testing.T, st auth.Status) (auth.Identity, string) {
	t.Helper()
	const password = "correct horse battery"
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	now := time.Now().UTC()
	ident := auth.Identity{
		ID:           ids.New(),
		Email:        strings.ToLower(ids.New()) + "@example.com",
		GlobalRole:   authz.GlobalPlatformUser,
		Status:       auth.StatusActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.store.CreateIdentity(context.Background(), &ident))
	res, err := f.svc.Authenticate(context.Background(), auth.Login{Email: ident.Email, Password: password})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	if st != auth.StatusActive {
		require.NoError(t, f.store.WithinTx(context.Background(), func(q auth.Queries) error {
			return q.UpdateIdentityStatus(context.Background(), ident.ID, st)
		}))
	}
	return ident, res.Token
}

func withBearer(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func TestUnaryAttachesSession(t *testing.T) {
	f := newFixture(t)
	ident, token := f.token(t, auth.StatusActive)

	var got auth.Session
	handler := func(ctx context.Context, req any) (any, error) {
		s, err := auth.RequireSession(ctx)
		if err != nil {
			return nil, err
		}
		got = s
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/orbit.v1.Workspace/Get"}
	resp, err := f.interceptor.Unary()(withBearer(token), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, ident.ID, got.IdentityID)
	assert.True(t, got.Personal())
}

func TestUnaryRejects(t *testing.T) {
	f := newFixture(t)
	_, inactive := f.token(t, auth.StatusRejected)

	cases := map[string]context.Context{
		"no metadata":    context.Background(),
		"no header":      metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "1")),
		"wrong scheme":   metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic Zm9v")),
		"garbage token":  withBearer("garbage"),
		"inactive owner": withBearer(inactive),
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/orbit.v1.Workspace/Get"}
	for name, ctx := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			_, err := f.interceptor.Unary()(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
				called = true
				return nil, nil
			})
			assert.False(t, called)
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	resp, err := f.interceptor.Unary()(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "serving", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "serving", resp)
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func TestStreamAttachesSession(t *testing.T) {
	f := newFixture(t)
	ident, token := f.token(t, auth.StatusActive)
	info := &grpc.StreamServerInfo{FullMethod: "/orbit.v1.Events/Watch", IsServerStream: true}

	err := f.interceptor.Stream()(nil, &fakeStream{ctx: withBearer(token)}, info, func(srv any, ss grpc.ServerStream) error {
		s, err := auth.RequireSession(ss.Context())
		if err != nil {
			return err
		}
		if s.IdentityID != ident.ID {
			return fmt.Errorf("unexpected identity %s", s.IdentityID)
		}
		return nil
	})
	require.NoError(t, err)

	err = f.interceptor.Stream()(nil, &fakeStream{ctx: context.Background()}, info, func(srv any, ss grpc.ServerStream) error {
		return nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{auth.ErrInvalidCredentials, codes.Unauthenticated},
		{auth.ErrSessionInvalid, codes.Unauthenticated},
		{fmt.Errorf("%w: company x", auth.ErrNotAMember), codes.PermissionDenied},
		{auth.ErrForbidden, codes.PermissionDenied},
		{auth.ErrUserNotFound, codes.NotFound},
		{auth.ErrNotFound, codes.NotFound},
		{auth.ErrUserAlreadyMember, codes.AlreadyExists},
		{auth.ErrLastOwner, codes.FailedPrecondition},
		{auth.ErrRateLimited, codes.ResourceExhausted},
		{fmt.Errorf("%w: bad role", auth.ErrInvalidInput), codes.InvalidArgument},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, status.Code(ToStatus("/test", tc.err)), tc.err.Error())
	}
	assert.NoError(t, ToStatus("/test", nil))

	st, _ := status.FromError(ToStatus("/test", fmt.Errorf("%w: company secret-co", auth.ErrNotAMember)))
	assert.Equal(t, "forbidden", st.Message())
}
