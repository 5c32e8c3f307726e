// Package archive copies document backups to S3 compatible object storage
// before they are pruned locally.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/store"
)

// Config selects the bucket and how to reach it. Endpoint is only needed for
// non-AWS servers such as MinIO.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Timeout   time.Duration
}

// putter is the part of *s3.Client the archiver uses.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ store.Archiver = (*S3Archiver)(nil)

// S3Archiver uploads each backup as <prefix>/<document>/<backup id>.
type S3Archiver struct {
	client putter
	cfg    Config
	logger logger.Logger
}

// NewS3 builds an archiver from cfg. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg Config, log logger.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archiver(client, cfg, log), nil
}

func newS3Archiver(client putter, cfg Config, log logger.Logger) *S3Archiver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &S3Archiver{client: client, cfg: cfg, logger: log}
}

// ObjectKey returns where info is stored in the bucket.
func (a *S3Archiver) ObjectKey(info store.BackupInfo) string {
	return path.Join(a.cfg.Prefix, info.Key, info.ID)
}

// Archive uploads one backup.
func (a *S3Archiver) Archive(ctx context.Context, info store.BackupInfo, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	key := a.ObjectKey(info)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
		Metadata: map[string]string{
			"document": info.Key,
			"taken-at": info.TakenAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s: %w", key, a.cfg.Bucket, err)
	}

	a.logger.Debug("backup archived",
		logger.String("bucket", a.cfg.Bucket),
		logger.String("object", key),
		logger.Int("bytes", len(data)))
	return nil
}
