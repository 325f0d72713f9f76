// Package storage locates built script files on disk or in S3 and records
// script usage in DynamoDB.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/klaviyo-webflow/internal/config"
	"github.com/ignite/klaviyo-webflow/internal/metrics"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
	"github.com/ignite/klaviyo-webflow/internal/versions"
)

// ErrNotFound is returned when no candidate holds the script.
var ErrNotFound = errors.New("storage: script not found")

const (
	legacyScript   = "webflow-to-klaviyo-script.js"
	legacyMinified = "klaviyo-webflow.min.js"
)

// S3API is the subset of the S3 client used for script objects.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Script is a resolved script body and where it came from.
type Script struct {
	Body   []byte
	Source string
	Path   string
}

// ScriptStore resolves a version to its file. Local candidates are tried in
// order, then the S3 object when a bucket is configured.
type ScriptStore struct {
	cfg config.CDNConfig
	s3  S3API
	log *logger.Entry
}

// NewScriptStore creates a store. s3Client may be nil to disable the S3 lookup.
func NewScriptStore(cfg config.CDNConfig, s3Client S3API) *ScriptStore {
	return &ScriptStore{cfg: cfg, s3: s3Client, log: logger.Component("storage")}
}

func fileName(v versions.ScriptVersion) string {
	if name := v.FileName(); name != "" {
		return name
	}
	return filepath.Base(versions.FilePathFor(v.Version))
}

// Candidates returns the local paths checked for v, in priority order.
func (s *ScriptStore) Candidates(v versions.ScriptVersion) []string {
	scripts := filepath.Join(s.cfg.PublicDir, "scripts")
	return []string{
		filepath.Join(scripts, "versions", fileName(v)),
		filepath.Join(scripts, legacyScript),
		filepath.Join(scripts, legacyMinified),
		filepath.Join(s.cfg.AssetsDir, legacyScript),
		filepath.Join(s.cfg.AssetsDir, "dist", legacyMinified),
	}
}

// Open returns the first available body for v.
func (s *ScriptStore) Open(ctx context.Context, v versions.ScriptVersion) (*Script, error) {
	for _, path := range s.Candidates(v) {
		body, err := os.ReadFile(path)
		if err == nil {
			return &Script{Body: body, Source: metrics.SourceFile, Path: path}, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("error reading script candidate", "path", path, "error", err)
		}
	}

	if s.s3 != nil && s.cfg.S3Bucket != "" {
		key := s.cfg.S3Prefix + fileName(v)
		body, err := s.getObject(ctx, key)
		if err == nil {
			return &Script{Body: body, Source: metrics.SourceS3, Path: "s3://" + s.cfg.S3Bucket + "/" + key}, nil
		}
		s.log.Warn("script not in S3", "key", key, "error", err)
	}

	return nil, fmt.Errorf("%w: version %s", ErrNotFound, v.Version)
}

func (s *ScriptStore) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object body: %w", err)
	}
	return data, nil
}

// Size returns the on-disk size of v's versioned file, else of the assets
// script. ok is false when neither exists.
func (s *ScriptStore) Size(v versions.ScriptVersion) (int64, bool) {
	for _, path := range []string{
		filepath.Join(s.cfg.PublicDir, "scripts", "versions", fileName(v)),
		filepath.Join(s.cfg.AssetsDir, legacyScript),
	} {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return info.Size(), true
		}
	}
	return 0, false
}
