// Package classify maps raw operation failures onto the gateway error taxonomy.
//
// Classification is a pure function of the error value. A structured error
// code found anywhere in the wrap chain wins; gRPC status codes come next,
// then transient network signals. Everything else is Unknown/Generic.
package classify

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/sony/gobreaker"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Category is the coarse error family.
type Category string

// Error categories.
const (
	CategoryAuth       Category = "Auth"
	CategoryPermission Category = "Permission"
	CategoryNotFound   Category = "NotFound"
	CategoryConflict   Category = "Conflict"
	CategoryQuota      Category = "Quota"
	CategoryNetwork    Category = "Network"
	CategoryUnknown    Category = "Unknown"
)

// Type is the fine-grained error kind within a Category.
type Type string

// Error types.
const (
	TypeDuplicate          Type = "Duplicate"
	TypeInvalidInput       Type = "InvalidInput"
	TypeAuthentication     Type = "Authentication"
	TypeRateLimited        Type = "RateLimited"
	TypeSession            Type = "Session"
	TypeAccessDenied       Type = "AccessDenied"
	TypeResourceMissing    Type = "ResourceMissing"
	TypeExceeded           Type = "Exceeded"
	TypeTimeout            Type = "Timeout"
	TypeServiceUnavailable Type = "ServiceUnavailable"
	TypeConnection         Type = "Connection"
	TypeGeneric            Type = "Generic"
)

// Classification is the verdict for one failure.
type Classification struct {
	Category   Category `json:"category"`
	Type       Type     `json:"type"`
	Suggestion string   `json:"suggestion"`
}

// Retryable reports whether another attempt can change the outcome.
func (c Classification) Retryable() bool {
	switch c.Type {
	case TypeAuthentication, TypeAccessDenied, TypeInvalidInput:
		return false
	default:
		return true
	}
}

// String returns "Category/Type".
func (c Classification) String() string {
	return string(c.Category) + "/" + string(c.Type)
}

// Coder is implemented by errors that carry a structured code. AWS SDK API
// errors satisfy it as well.
type Coder interface {
	ErrorCode() string
}

// Classify maps err onto the taxonomy.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var coder Coder
	if errors.As(err, &coder) {
		if c, ok := Lookup(coder.ErrorCode()); ok {
			return c
		}
	}

	if c, ok := fromGRPC(err); ok {
		return c
	}

	if c, ok := fromNetwork(err); ok {
		return c
	}

	return newClassification(CategoryUnknown, TypeGeneric)
}

// Lookup returns the classification registered for a structured code.
func Lookup(code string) (Classification, bool) {
	key, ok := codeTable[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Classification{}, false
	}
	return newClassification(key.category, key.typ), true
}

// Unknown returns the Unknown/Generic classification.
func Unknown() Classification {
	return newClassification(CategoryUnknown, TypeGeneric)
}

// Of builds a classification with the standard suggestion for its type.
func Of(category Category, typ Type) Classification {
	return newClassification(category, typ)
}

func fromGRPC(err error) (Classification, bool) {
	st, ok := status.FromError(err)
	if !ok || st == nil {
		return Classification{}, false
	}

	switch st.Code() {
	case codes.Unauthenticated:
		return newClassification(CategoryAuth, TypeAuthentication), true
	case codes.PermissionDenied:
		return newClassification(CategoryPermission, TypeAccessDenied), true
	case codes.NotFound:
		return newClassification(CategoryNotFound, TypeResourceMissing), true
	case codes.AlreadyExists:
		return newClassification(CategoryConflict, TypeDuplicate), true
	case codes.ResourceExhausted:
		return newClassification(CategoryQuota, TypeExceeded), true
	case codes.InvalidArgument, codes.OutOfRange:
		return newClassification(CategoryAuth, TypeInvalidInput), true
	case codes.Unavailable:
		return newClassification(CategoryNetwork, TypeServiceUnavailable), true
	case codes.DeadlineExceeded:
		return newClassification(CategoryNetwork, TypeTimeout), true
	default:
		return Classification{}, false
	}
}

// networkPatterns are matched against lowercased messages in order.
var networkPatterns = []struct {
	pattern string
	typ     Type
}{
	{"connection reset", TypeConnection},
	{"econnreset", TypeConnection},
	{"broken pipe", TypeConnection},
	{"connection refused", TypeConnection},
	{"econnrefused", TypeConnection},
	{"etimedout", TypeTimeout},
	{"timed out", TypeTimeout},
	{"timeout", TypeTimeout},
	{"deadline exceeded", TypeTimeout},
	{"service unavailable", TypeServiceUnavailable},
	{"unavailable", TypeServiceUnavailable},
}

func fromNetwork(err error) (Classification, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newClassification(CategoryNetwork, TypeTimeout), true
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return newClassification(CategoryNetwork, TypeServiceUnavailable), true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return newClassification(CategoryNetwork, TypeConnection), true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newClassification(CategoryNetwork, TypeTimeout), true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return newClassification(CategoryNetwork, TypeConnection), true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range networkPatterns {
		if strings.Contains(msg, p.pattern) {
			return newClassification(CategoryNetwork, p.typ), true
		}
	}

	return Classification{}, false
}

func newClassification(category Category, typ Type) Classification {
	return Classification{
		Category:   category,
		Type:       typ,
		Suggestion: suggestion(category, typ),
	}
}
