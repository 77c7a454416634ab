// Package upload stores organization logos in S3-compatible object storage.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/nexura/nexura-api/pkg/config"
)

// MaxLogoBytes bounds accepted logo uploads.
const MaxLogoBytes = 5 << 20

// ErrInvalidImage is returned for empty, oversized or non-image uploads.
var ErrInvalidImage = errors.New("invalid image")

type Uploader interface {
	Upload(ctx context.Context, data []byte, filename, folder string) (string, error)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client    putObjectAPI
	bucket    string
	publicURL string
}

func NewS3Uploader(ctx context.Context, cfg *config.StorageConfig) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3Uploader{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

// Upload stores data under folder with a random key and returns its public URL.
func (u *S3Uploader) Upload(ctx context.Context, data []byte, filename, folder string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	if len(data) > MaxLogoBytes {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrInvalidImage, MaxLogoBytes)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrInvalidImage, contentType)
	}

	key := objectKey(folder, filename, contentType)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading to s3: %w", err)
	}

	return u.publicURL + "/" + key, nil
}

func objectKey(folder, filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return path.Join(strings.Trim(folder, "/"), uuid.NewString()+ext)
}

// PlaceholderLogo synthesizes an avatar image URL from a display name.
func PlaceholderLogo(name string) string {
	return "https://ui-avatars.com/api/?background=random&name=" + url.QueryEscape(strings.TrimSpace(name))
}

var _ Uploader = (*S3Uploader)(nil)
