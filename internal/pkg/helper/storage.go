package helper

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/davexpro/hybrid-backup/internal/config"
)

type Storage struct {
	client     *minio.Client
	bucket     string
	pathPrefix string
	log        logrus.FieldLogger
}

// NewStorage creates a new Storage instance using minio-go/v7.
func NewStorage(cfg config.R2Config, log logrus.FieldLogger) (*Storage, error) {
	endpoint, secure := splitEndpoint(cfg.Endpoint)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	return &Storage{
		client:     client,
		bucket:     cfg.Bucket,
		pathPrefix: strings.Trim(cfg.PathPrefix, "/"),
		log:        log.WithField("component", "storage"),
	}, nil
}

// splitEndpoint removes the scheme, minio-go expects host:port.
func splitEndpoint(endpoint string) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), false
	}
	return endpoint, true
}

func (s *Storage) objectKey(filename string) string {
	if s.pathPrefix == "" {
		return filename
	}
	return path.Join(s.pathPrefix, filename)
}

// Upload stores content under the path prefix. size may be -1 when unknown.
func (s *Storage) Upload(ctx context.Context, filename string, content io.Reader, size int64, contentType string) error {
	key := s.objectKey(filename)

	info, err := s.client.PutObject(ctx, s.bucket, key, content, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{"key": key, "bucket": s.bucket, "size": info.Size}).Info("Uploaded object")
	return nil
}

// EnforceRetention deletes objects under the prefix older than retentionHours.
func (s *Storage) EnforceRetention(ctx context.Context, retentionHours int) error {
	if retentionHours <= 0 {
		return nil
	}
	deadline := time.Now().Add(-time.Duration(retentionHours) * time.Hour)

	opts := minio.ListObjectsOptions{
		Recursive: true,
	}
	if s.pathPrefix != "" {
		opts.Prefix = s.pathPrefix + "/"
	}

	deleted, failed := 0, 0
	for object := range s.client.ListObjects(ctx, s.bucket, opts) {
		if object.Err != nil {
			return fmt.Errorf("failed to list objects under %q: %w", opts.Prefix, object.Err)
		}
		if !object.LastModified.Before(deadline) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			s.log.WithError(err).WithField("key", object.Key).Warn("Failed to delete expired object")
			failed++
			continue
		}
		deleted++
		s.log.WithFields(logrus.Fields{
			"key":           object.Key,
			"last_modified": object.LastModified.Format(time.RFC3339),
		}).Debug("Deleted expired object")
	}

	if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("Retention policy enforced")
	}
	if failed > 0 {
		return fmt.Errorf("retention left %d expired objects in place", failed)
	}
	return nil
}
