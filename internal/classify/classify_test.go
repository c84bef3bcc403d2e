package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// apiError mimics an object store SDK error that exposes ErrorCode.
type apiError struct{ code string }

func (e *apiError) Error() string     { return "api error " + e.code }
func (e *apiError) ErrorCode() string { return e.code }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		category Category
		typ      Type
	}{
		{"duplicate account", NewError("auth/email-already-exists", "taken"), CategoryAuth, TypeDuplicate},
		{"invalid email", NewError("auth/invalid-email", "bad"), CategoryAuth, TypeInvalidInput},
		{"expired token", NewError("auth/id-token-expired", ""), CategoryAuth, TypeAuthentication},
		{"throttled", NewError("auth/too-many-requests", ""), CategoryAuth, TypeRateLimited},
		{"session revoked", NewError("auth/session-cookie-revoked", ""), CategoryAuth, TypeSession},
		{"permission", NewError("permission-denied", ""), CategoryPermission, TypeAccessDenied},
		{"missing", NewError("not-found", ""), CategoryNotFound, TypeResourceMissing},
		{"conflict", NewError("already-exists", ""), CategoryConflict, TypeDuplicate},
		{"quota", NewError("resource-exhausted", ""), CategoryQuota, TypeExceeded},
		{"code is case insensitive", NewError("Auth/User-Not-Found", ""), CategoryNotFound, TypeResourceMissing},
		{"code wins over message", NewError("auth/invalid-email", "timeout parsing"), CategoryAuth, TypeInvalidInput},
		{"wrapped code", fmt.Errorf("createUser: %w", NewError("auth/uid-already-exists", "")), CategoryAuth, TypeDuplicate},
		{"object store code", &apiError{code: "NoSuchKey"}, CategoryNotFound, TypeResourceMissing},
		{"object store access", &apiError{code: "AccessDenied"}, CategoryPermission, TypeAccessDenied},
		{"object store throttle", &apiError{code: "SlowDown"}, CategoryQuota, TypeExceeded},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "bad token"), CategoryAuth, TypeAuthentication},
		{"grpc permission", status.Error(codes.PermissionDenied, "no"), CategoryPermission, TypeAccessDenied},
		{"grpc not found", status.Error(codes.NotFound, "gone"), CategoryNotFound, TypeResourceMissing},
		{"grpc exists", status.Error(codes.AlreadyExists, "dup"), CategoryConflict, TypeDuplicate},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), CategoryQuota, TypeExceeded},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), CategoryNetwork, TypeServiceUnavailable},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow"), CategoryNetwork, TypeTimeout},
		{"context deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), CategoryNetwork, TypeTimeout},
		{"connection reset errno", fmt.Errorf("read: %w", syscall.ECONNRESET), CategoryNetwork, TypeConnection},
		{"connection refused errno", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), CategoryNetwork, TypeConnection},
		{"unexpected eof", io.ErrUnexpectedEOF, CategoryNetwork, TypeConnection},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route")}, CategoryNetwork, TypeConnection},
		{"reset message", errors.New("socket hang up: connection reset by peer"), CategoryNetwork, TypeConnection},
		{"timeout message", errors.New("request timed out"), CategoryNetwork, TypeTimeout},
		{"unavailable message", errors.New("503 Service Unavailable"), CategoryNetwork, TypeServiceUnavailable},
		{"breaker open", gobreaker.ErrOpenState, CategoryNetwork, TypeServiceUnavailable},
		{"unknown code", NewError("weird/thing", "boom"), CategoryUnknown, TypeGeneric},
		{"plain error", errors.New("boom"), CategoryUnknown, TypeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Classify(tt.err)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.typ, got.Type)
			assert.NotEmpty(t, got.Suggestion)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", NewError("auth/invalid-credential", "expired"))
	first := Classify(err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(err))
	}
}

func TestClassify_Nil(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Classification{}, Classify(nil))
}

func TestClassification_Retryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ       Type
		retryable bool
	}{
		{TypeAuthentication, false},
		{TypeAccessDenied, false},
		{TypeInvalidInput, false},
		{TypeDuplicate, true},
		{TypeRateLimited, true},
		{TypeSession, true},
		{TypeResourceMissing, true},
		{TypeExceeded, true},
		{TypeTimeout, true},
		{TypeServiceUnavailable, true},
		{TypeConnection, true},
		{TypeGeneric, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, Classification{Type: tt.typ}.Retryable())
		})
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying")
	err := Wrap("auth/invalid-credential", cause)

	assert.Equal(t, "auth/invalid-credential: underlying", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("op: %w", err), NewError("auth/invalid-credential", ""))
	assert.NotErrorIs(t, err, NewError("auth/invalid-email", ""))
	assert.Equal(t, "not-found", NewError("not-found", "").Error())
}

func TestLookup(t *testing.T) {
	t.Parallel()

	c, ok := Lookup("  PERMISSION-DENIED ")
	assert.True(t, ok)
	assert.Equal(t, "Permission/AccessDenied", c.String())

	_, ok = Lookup("nope")
	assert.False(t, ok)
}
