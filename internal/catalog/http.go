package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/propagation"

	"github.com/vyrodovalexey/opgw/internal/backend"
	"github.com/vyrodovalexey/opgw/internal/classify"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

// maxResponseBytes bounds a decoded admin API response.
const maxResponseBytes = 10 << 20

// Headers sent to the admin API.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderRequestID = "X-Request-ID"
)

var pathParam = regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9]*)\}`)

// apiError is the admin API error body. Both {"error":{...}} and a bare
// {"code":...} object are accepted.
type apiError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusCodes maps HTTP statuses without a structured body onto platform
// codes understood by the classifier.
var statusCodes = map[int]string{
	http.StatusBadRequest:          "invalid-argument",
	http.StatusUnauthorized:        "unauthenticated",
	http.StatusForbidden:           "permission-denied",
	http.StatusNotFound:            "not-found",
	http.StatusConflict:            "already-exists",
	http.StatusPreconditionFailed:  "failed-precondition",
	http.StatusUnprocessableEntity: "invalid-argument",
	http.StatusTooManyRequests:     "resource-exhausted",
	http.StatusBadGateway:          "unavailable",
	http.StatusServiceUnavailable:  "unavailable",
	http.StatusGatewayTimeout:      "deadline-exceeded",
	http.StatusRequestTimeout:      "deadline-exceeded",
}

// API returns a Handler that calls the tenant admin API. Path parameters
// such as {uid} are taken from args; the remaining arguments travel as the
// query string for GET and DELETE and as a JSON body otherwise.
func API(method, path string) Handler {
	return func(ctx context.Context, h *backend.TenantHandle, args map[string]any) (any, error) {
		req, err := newAPIRequest(ctx, h, method, path, args)
		if err != nil {
			return nil, err
		}

		resp, err := h.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read %s %s response: %w", method, req.URL.Path, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, decodeAPIError(resp.StatusCode, body)
		}

		if len(bytes.TrimSpace(body)) == 0 {
			return map[string]any{}, nil
		}

		var out any
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode %s %s response: %w", method, req.URL.Path, err)
		}
		return out, nil
	}
}

func newAPIRequest(
	ctx context.Context,
	h *backend.TenantHandle,
	method, path string,
	args map[string]any,
) (*http.Request, error) {
	if h == nil || h.HTTPClient == nil || h.BaseURL == "" {
		return nil, classify.NewError("unavailable", "admin API is not configured")
	}

	rest := make(map[string]any, len(args))
	for k, v := range args {
		rest[k] = v
	}

	var missing []string
	expanded := pathParam.ReplaceAllStringFunc(path, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := rest[name]
		if !ok || v == nil || v == "" {
			missing = append(missing, name)
			return m
		}
		delete(rest, name)
		return url.PathEscape(fmt.Sprint(v))
	})
	if len(missing) > 0 {
		return nil, invalidArg("missing path arguments: %s", strings.Join(missing, ", "))
	}

	target := h.BaseURL + expanded

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(rest) > 0 {
			q, err := encodeQuery(rest)
			if err != nil {
				return nil, err
			}
			target += "?" + q
		}
	} else {
		data, err := json.Marshal(rest)
		if err != nil {
			return nil, invalidArg("arguments are not JSON encodable: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderTenantID, h.TenantID)
	if id := observability.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(HeaderRequestID, id)
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))

	return req, nil
}

// encodeQuery renders scalars as-is and everything else as JSON.
func encodeQuery(args map[string]any) (string, error) {
	q := url.Values{}
	for k, v := range args {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			q.Set(k, val)
		case bool, int, int32, int64, float64, json.Number:
			q.Set(k, fmt.Sprint(val))
		default:
			data, err := json.Marshal(val)
			if err != nil {
				return "", invalidArg("argument %q is not JSON encodable: %v", k, err)
			}
			q.Set(k, string(data))
		}
	}
	return q.Encode(), nil
}

func decodeAPIError(status int, body []byte) error {
	var e apiError
	if json.Unmarshal(body, &e) == nil {
		code, msg := e.Code, e.Message
		if e.Error != nil {
			code, msg = e.Error.Code, e.Error.Message
		}
		if code != "" {
			if msg == "" {
				msg = http.StatusText(status)
			}
			return classify.NewError(code, msg)
		}
	}

	code, ok := statusCodes[status]
	if !ok {
		if status >= 500 {
			code = "internal"
		} else {
			code = "unknown"
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" || len(msg) > 512 {
		msg = http.StatusText(status)
	}
	return classify.NewError(code, msg)
}
