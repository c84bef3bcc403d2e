package backend

import (
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/vyrodovalexey/opgw/internal/config"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

// TenantPlaceholder is replaced by the tenant id in URL and bucket patterns.
const TenantPlaceholder = "{tenant}"

// Factory constructs the handle of one tenant.
type Factory func(ctx context.Context, tenantID string) (*TenantHandle, error)

// NewFactory returns the default Factory. The AWS configuration is resolved
// once here and shared by every tenant's storage client.
func NewFactory(
	ctx context.Context,
	backendCfg config.BackendConfig,
	breakerCfg config.CircuitBreakerConfig,
	storageCfg config.StorageConfig,
	opts ...Option,
) (Factory, error) {
	o := buildOptions(opts)

	var awsCfg aws.Config
	if storageCfg.Enabled {
		var err error
		awsCfg, err = LoadAWSConfig(ctx, storageCfg)
		if err != nil {
			return nil, err
		}
	}

	return func(_ context.Context, tenantID string) (*TenantHandle, error) {
		h := &TenantHandle{
			TenantID:   tenantID,
			BaseURL:    strings.TrimRight(expandTenant(backendCfg.BaseURL, url.PathEscape(tenantID)), "/"),
			HTTPClient: newHTTPClient(backendCfg, o.metrics),
			CreatedAt:  o.now(),
		}

		if breakerCfg.Enabled {
			h.Breaker = NewBreaker(tenantID, breakerCfg, opts...)
		}

		if storageCfg.Enabled {
			bucket := expandTenant(storageCfg.BucketPattern, tenantID)
			h.Storage = NewS3Storage(awsCfg, storageCfg, bucket, o.tracer)
		}

		o.logger.Debug("tenant handle constructed",
			observability.String("tenant", tenantID),
			observability.String("baseUrl", h.BaseURL),
			observability.Bool("storage", h.Storage != nil),
			observability.Bool("breaker", h.Breaker != nil),
		)
		return h, nil
	}, nil
}

func expandTenant(pattern, tenantID string) string {
	return strings.ReplaceAll(pattern, TenantPlaceholder, tenantID)
}
