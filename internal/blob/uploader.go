package blob

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"storyspool/internal/config"
)

// Uploader stores a finished audio blob and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// AudioKey builds the object key for a job's narration:
// audio/<urlhash>/<yyyymmdd>/<urlhash>.mp3.
func AudioKey(urlhash string, now time.Time) string {
	return fmt.Sprintf("audio/%s/%s/%s.mp3", urlhash, now.Format("20060102"), urlhash)
}

// New picks the uploader from config: S3 when a bucket is set, local
// filesystem otherwise.
func New(ctx context.Context, cfg config.Config) (Uploader, error) {
	if cfg.AudioS3Bucket == "" {
		return &LocalUploader{BaseDir: cfg.AudioOutputDir, PublicBase: cfg.AudioPublicBase}, nil
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &S3Uploader{client: client, bucket: cfg.AudioS3Bucket, publicBase: cfg.AudioPublicBase}, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AudioS3Region),
	}
	if cfg.AudioS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.AudioS3Endpoint,
					HostnameImmutable: cfg.AudioS3PathStyle,
					SigningRegion:     cfg.AudioS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AudioS3PathStyle
	}), nil
}

// S3Uploader writes audio to an S3 (or compatible) bucket.
type S3Uploader struct {
	client     *s3.Client
	bucket     string
	publicBase string
}

func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	if u.publicBase != "" {
		return strings.TrimSuffix(u.publicBase, "/") + "/" + key, nil
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

// LocalUploader writes audio under a base directory for development.
type LocalUploader struct {
	BaseDir    string
	PublicBase string
}

func (u *LocalUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	key = sanitizeKey(key)
	path := filepath.Join(u.BaseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if u.PublicBase != "" {
		return strings.TrimSuffix(u.PublicBase, "/") + "/" + filepath.ToSlash(key), nil
	}
	return path, nil
}

func sanitizeKey(key string) string {
	key = filepath.Clean(key)
	for strings.HasPrefix(key, "..") {
		key = strings.TrimPrefix(key, "..")
		key = strings.TrimPrefix(key, string(filepath.Separator))
	}
	key = strings.TrimPrefix(key, string(filepath.Separator))
	return key
}
