package auth

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestAPIKeyInterceptor(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		header string
		key    string
		ctx    context.Context
		want   codes.Code
	}{
		{"mode none ignores missing key", "none", "x-api-key", "secret", context.Background(), codes.OK},
		{"apikey with no configured key is open", "apikey", "x-api-key", "", context.Background(), codes.OK},
		{"correct key", "apikey", "x-api-key", "secret", incoming("x-api-key", "secret"), codes.OK},
		{"custom header", "apikey", "x-admin-token", "tok", incoming("x-admin-token", "tok"), codes.OK},
		{"wrong key", "apikey", "x-api-key", "secret", incoming("x-api-key", "guess"), codes.Unauthenticated},
		{"key under another header", "apikey", "x-admin-token", "tok", incoming("x-api-key", "tok"), codes.Unauthenticated},
		{"empty metadata", "apikey", "x-api-key", "secret", metadata.NewIncomingContext(context.Background(), metadata.MD{}), codes.Unauthenticated},
		{"no metadata at all", "apikey", "x-api-key", "secret", context.Background(), codes.Unauthenticated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := func(ctx context.Context, req any) (any, error) {
				called = true
				return "health", nil
			}
			i := APIKeyInterceptor(tc.mode, tc.header, tc.key)
			_, err := i(tc.ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
			if code := status.Code(err); code != tc.want {
				t.Fatalf("code: got %v, want %v (err %v)", code, tc.want, err)
			}
			if called != (tc.want == codes.OK) {
				t.Errorf("handler called = %v, want %v", called, tc.want == codes.OK)
			}
		})
	}
}

// watchStream carries only a context; the interceptor never touches the rest.
type watchStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s watchStream) Context() context.Context { return s.ctx }

func TestAPIKeyStreamInterceptor(t *testing.T) {
	i := APIKeyStreamInterceptor("apikey", "x-api-key", "secret")
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}

	called := false
	handler := func(srv any, ss grpc.ServerStream) error {
		called = true
		return nil
	}

	if err := i(nil, watchStream{ctx: incoming("x-api-key", "secret")}, info, handler); err != nil {
		t.Fatalf("correct key: %v", err)
	}
	if !called {
		t.Error("handler not called with correct key")
	}

	called = false
	err := i(nil, watchStream{ctx: incoming("x-api-key", "nope")}, info, handler)
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("wrong key: got %v, want Unauthenticated", code)
	}
	if called {
		t.Error("handler called with wrong key")
	}
}
