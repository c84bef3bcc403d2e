package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/opgw/internal/classify"
	"github.com/vyrodovalexey/opgw/internal/gateway"
	"github.com/vyrodovalexey/opgw/internal/health"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

// InvokeRequest is the body of an invocation. Every field is optional.
type InvokeRequest struct {
	Args        map[string]any `json:"args"`
	TimeoutMs   int64          `json:"timeoutMs"`
	BypassCache bool           `json:"bypassCache"`
}

// OperationInfo describes one catalog entry.
type OperationInfo struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	Cacheable  bool   `json:"cacheable"`
	TTLSeconds int64  `json:"ttlSeconds,omitempty"`
}

type handlers struct {
	invoker Invoker
	health  *health.Checker
	logger  observability.Logger
}

func (h *handlers) invoke(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, invalidInput("request body too large"))
			return
		}
		c.JSON(http.StatusBadRequest, invalidInput("malformed request body: "+err.Error()))
		return
	}
	if req.TimeoutMs < 0 {
		c.JSON(http.StatusBadRequest, invalidInput("timeoutMs must not be negative"))
		return
	}

	opts := gateway.InvokeOptions{
		Timeout:     time.Duration(req.TimeoutMs) * time.Millisecond,
		BypassCache: req.BypassCache || noCache(c.GetHeader("Cache-Control")),
	}

	res := h.invoker.Invoke(c.Request.Context(), c.Param("operation"), c.Param("tenant"), req.Args, opts)

	status := StatusCode(res)
	if status == http.StatusTooManyRequests && res.Error.RetryAfterMs > 0 {
		c.Header("Retry-After", strconv.FormatInt(retryAfterSeconds(res.Error.RetryAfterMs), 10))
	}
	c.JSON(status, res)
}

func (h *handlers) operations(c *gin.Context) {
	cat := h.invoker.Catalog()
	names := cat.Names()
	ops := make([]OperationInfo, 0, len(names))
	for _, name := range names {
		e, _ := cat.Lookup(name)
		ops = append(ops, OperationInfo{
			Name:       e.Name,
			Category:   e.Category,
			Cacheable:  e.Cacheable,
			TTLSeconds: int64(e.TTL / time.Second),
		})
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

func (h *handlers) metrics(c *gin.Context) {
	snap := h.invoker.Metrics().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"operations":            snap.Operations,
		"rateLimitHits":         snap.RateLimitHits,
		"cacheHits":             snap.CacheHits,
		"cacheMisses":           snap.CacheMisses,
		"cacheHitRate":          snap.CacheHitRate(),
		"totalInvocations":      snap.TotalInvocations,
		"averageResponseTimeMs": snap.AverageResponseTimeMs,
	})
}

func (h *handlers) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.Health())
}

func (h *handlers) readiness(c *gin.Context) {
	res := h.health.Readiness(c.Request.Context())
	if !res.Ready() {
		h.logger.Warn("not ready", observability.String("status", string(res.Status)))
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// StatusCode maps an envelope onto an HTTP status.
func StatusCode(res gateway.Result) int {
	if res.Success || res.Error == nil {
		return http.StatusOK
	}

	switch res.Error.Type {
	case classify.TypeInvalidInput:
		return http.StatusBadRequest
	case classify.TypeAuthentication, classify.TypeSession:
		return http.StatusUnauthorized
	case classify.TypeAccessDenied:
		return http.StatusForbidden
	case classify.TypeResourceMissing:
		return http.StatusNotFound
	case classify.TypeDuplicate:
		return http.StatusConflict
	case classify.TypeExceeded, classify.TypeRateLimited:
		return http.StatusTooManyRequests
	case classify.TypeServiceUnavailable, classify.TypeConnection:
		return http.StatusServiceUnavailable
	case classify.TypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func retryAfterSeconds(ms int64) int64 {
	secs := (ms + 999) / 1000
	if secs < 1 {
		return 1
	}
	return secs
}

func noCache(cacheControl string) bool {
	for _, directive := range strings.Split(cacheControl, ",") {
		if strings.EqualFold(strings.TrimSpace(directive), "no-cache") {
			return true
		}
	}
	return false
}

func invalidInput(message string) gateway.Result {
	return envelope(classify.Of(classify.CategoryAuth, classify.TypeInvalidInput), message)
}

func internalError(message string) gateway.Result {
	return envelope(classify.Unknown(), message)
}

func envelope(c classify.Classification, message string) gateway.Result {
	return gateway.Result{
		Error: &gateway.ErrorInfo{
			Category:   c.Category,
			Type:       c.Type,
			Suggestion: c.Suggestion,
			Message:    message,
		},
	}
}
