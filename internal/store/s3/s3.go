// Package s3 provides S3 archival of processed alerts.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds S3 connection and archival behavior configuration.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Region is the AWS region.
	Region string `yaml:"region"`

	// Bucket is the S3 bucket name.
	Bucket string `yaml:"bucket"`

	// Prefix is the key prefix for all archived objects.
	Prefix string `yaml:"prefix"`

	// Endpoint is an optional custom endpoint (for S3-compatible storage).
	Endpoint string `yaml:"endpoint,omitempty"`

	// AccessKeyID for static credentials (optional, uses IAM if not set).
	AccessKeyID string `yaml:"access_key_id,omitempty"`

	// SecretAccessKey for static credentials.
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`

	// StorageClass for uploaded objects (STANDARD, INTELLIGENT_TIERING, etc.).
	StorageClass string `yaml:"storage_class"`

	// UsePathStyle forces path-style addressing (for MinIO, etc.).
	UsePathStyle bool `yaml:"use_path_style"`

	// RetryMaxAttempts for failed operations.
	RetryMaxAttempts int `yaml:"retry_max_attempts"`

	// BatchSize is the number of alerts per archive object.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is how often to flush incomplete batches.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:          false,
		Region:           "us-east-1",
		Bucket:           "soc-triage-archive",
		Prefix:           "alerts/",
		StorageClass:     "INTELLIGENT_TIERING",
		RetryMaxAttempts: 3,
		BatchSize:        1000,
		FlushInterval:    5 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.New("s3: region is required")
	}
	if c.Bucket == "" {
		return errors.New("s3: bucket is required")
	}
	if c.BatchSize <= 0 {
		return errors.New("s3: batch size must be positive")
	}
	return nil
}

// storageClass returns the S3 storage class type.
func (c *Config) storageClass() types.StorageClass {
	switch strings.ToUpper(c.StorageClass) {
	case "STANDARD":
		return types.StorageClassStandard
	case "STANDARD_IA":
		return types.StorageClassStandardIa
	case "INTELLIGENT_TIERING":
		return types.StorageClassIntelligentTiering
	case "GLACIER":
		return types.StorageClassGlacier
	case "DEEP_ARCHIVE":
		return types.StorageClassDeepArchive
	default:
		return types.StorageClassStandard
	}
}

// Client is an S3 client for archive uploads.
type Client struct {
	client *awss3.Client
	config Config
	logger *slog.Logger

	bytesUploaded   atomic.Int64
	objectsUploaded atomic.Int64
	uploadErrors    atomic.Int64
}

// NewClient creates a new S3 client.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	if cfg.RetryMaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.RetryMaxAttempts))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	c := &Client{
		client: awss3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		logger: logger,
	}

	logger.Info("s3 client initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"storage_class", cfg.StorageClass,
	)

	return c, nil
}

// Upload uploads an object under the configured prefix.
func (c *Client) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	fullKey := c.config.Prefix + key

	_, err := c.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:       aws.String(c.config.Bucket),
		Key:          aws.String(fullKey),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		StorageClass: c.config.storageClass(),
	})
	if err != nil {
		c.uploadErrors.Add(1)
		return fmt.Errorf("s3: failed to upload object %s: %w", fullKey, err)
	}

	c.bytesUploaded.Add(int64(len(body)))
	c.objectsUploaded.Add(1)

	c.logger.Debug("uploaded object", "key", fullKey, "size", len(body))

	return nil
}

// ClientMetrics holds upload counters.
type ClientMetrics struct {
	BytesUploaded   int64
	ObjectsUploaded int64
	UploadErrors    int64
}

// Metrics returns current client metrics.
func (c *Client) Metrics() ClientMetrics {
	return ClientMetrics{
		BytesUploaded:   c.bytesUploaded.Load(),
		ObjectsUploaded: c.objectsUploaded.Load(),
		UploadErrors:    c.uploadErrors.Load(),
	}
}
