// Package storage publishes uploaded radiographs to an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// Store publishes an object and returns a URL anyone can fetch it from.
type Store interface {
	Put(ctx context.Context, data []byte, name string) (string, error)
}

type Config struct {
	// "http://127.0.0.1:9000"; empty for AWS.
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prepended to the object key to build the public URL. When empty the
	// uploader's reported location is used.
	PublicBaseURL string
	KeyPrefix     string
}

// Connect builds an S3 client for cfg.
func Connect(cfg Config) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.AccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		}
	})
}

type S3Store struct {
	uploader *manager.Uploader
	cfg      Config
}

func NewS3Store(client *s3.Client, cfg Config) (*S3Store, error) {
	if client == nil {
		return nil, errors.New("s3 client can't be nil")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &S3Store{uploader: manager.NewUploader(client), cfg: cfg}, nil
}

func (s *S3Store) Put(ctx context.Context, data []byte, name string) (string, error) {
	key := ObjectKey(s.cfg.KeyPrefix, name)
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to bucket %s: %w", key, s.cfg.Bucket, err)
	}
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key, nil
	}
	return out.Location, nil
}

// ObjectKey prefixes the base name of an upload with a random id so two
// uploads of the same file never collide.
func ObjectKey(prefix, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	key := uuid.NewString() + "-" + base
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}
