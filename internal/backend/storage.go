package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/opgw/internal/config"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

// ChecksumMetadataKey holds the hex sha256 of an uploaded object.
const ChecksumMetadataKey = "checksum-sha256"

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"contentType,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	LastModified *time.Time        `json:"lastModified,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Object is an object with its content.
type Object struct {
	ObjectInfo
	Data []byte `json:"-"`
}

// ObjectPage is one page of a listing.
type ObjectPage struct {
	Objects   []ObjectInfo `json:"objects"`
	NextToken string       `json:"nextToken,omitempty"`
	Truncated bool         `json:"truncated"`
}

// ObjectStore is the tenant's blob storage.
type ObjectStore interface {
	List(ctx context.Context, prefix string, maxKeys int32, token string) (*ObjectPage, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) (*Object, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// s3API is the subset of *s3.Client used by S3Storage.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage is an ObjectStore over one S3 bucket. API errors are returned
// wrapped, so their codes (NoSuchKey, AccessDenied, SlowDown, ...) stay
// visible to the classifier.
type S3Storage struct {
	api    s3API
	bucket string
	tracer *observability.Tracer
}

// LoadAWSConfig resolves the shared AWS configuration. Static keys win over
// the default credential chain.
func LoadAWSConfig(ctx context.Context, cfg config.StorageConfig) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewS3Storage creates the store of bucket.
func NewS3Storage(awsCfg aws.Config, cfg config.StorageConfig, bucket string, tracer *observability.Tracer) *S3Storage {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Storage{api: client, bucket: bucket, tracer: tracer}
}

// Bucket returns the bucket name.
func (s *S3Storage) Bucket() string {
	return s.bucket
}

func (s *S3Storage) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return s.tracer.StartSpan(ctx, "S3."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("s3.operation", op),
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", key),
		),
	)
}

// List implements ObjectStore.
func (s *S3Storage) List(ctx context.Context, prefix string, maxKeys int32, token string) (*ObjectPage, error) {
	ctx, span := s.startSpan(ctx, "ListObjectsV2", prefix)
	defer span.End()

	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	if maxKeys > 0 {
		in.MaxKeys = aws.Int32(maxKeys)
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := s.api.ListObjectsV2(ctx, in)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("list objects in %s: %w", s.bucket, err)
	}

	page := &ObjectPage{
		Objects:   make([]ObjectInfo, 0, len(out.Contents)),
		NextToken: aws.ToString(out.NextContinuationToken),
		Truncated: aws.ToBool(out.IsTruncated),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         aws.ToString(obj.ETag),
			LastModified: obj.LastModified,
		})
	}

	span.SetAttributes(attribute.Int("s3.objects", len(page.Objects)))
	return page, nil
}

// Put implements ObjectStore. The sha256 of data is stored as metadata.
func (s *S3Storage) Put(ctx context.Context, key string, data []byte, contentType string) (*ObjectInfo, error) {
	ctx, span := s.startSpan(ctx, "PutObject", key)
	defer span.End()

	span.SetAttributes(attribute.Int("content.size", len(data)))

	hash := sha256.Sum256(data)
	metadata := map[string]string{ChecksumMetadataKey: hex.EncodeToString(hash[:])}

	in := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: metadata,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	out, err := s.api.PutObject(ctx, in)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("put object %s/%s: %w", s.bucket, key, err)
	}

	return &ObjectInfo{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
		ETag:        aws.ToString(out.ETag),
		Metadata:    metadata,
	}, nil
}

// Get implements ObjectStore.
func (s *S3Storage) Get(ctx context.Context, key string) (*Object, error) {
	ctx, span := s.startSpan(ctx, "GetObject", key)
	defer span.End()

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("get object %s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("read object %s/%s: %w", s.bucket, key, err)
	}

	span.SetAttributes(attribute.Int("content.size", len(data)))
	return &Object{
		ObjectInfo: ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  aws.ToString(out.ContentType),
			ETag:         aws.ToString(out.ETag),
			LastModified: out.LastModified,
			Metadata:     out.Metadata,
		},
		Data: data,
	}, nil
}

// Head implements ObjectStore.
func (s *S3Storage) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	ctx, span := s.startSpan(ctx, "HeadObject", key)
	defer span.End()

	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("head object %s/%s: %w", s.bucket, key, err)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         aws.ToString(out.ETag),
		LastModified: out.LastModified,
		Metadata:     out.Metadata,
	}, nil
}

// Delete implements ObjectStore.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	ctx, span := s.startSpan(ctx, "DeleteObject", key)
	defer span.End()

	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("delete object %s/%s: %w", s.bucket, key, err)
	}
	return nil
}
