// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBackup mirrors snapshots to a Google Cloud Storage bucket for
// off-machine retention.
//
// Objects are gzip-compressed payload JSON named
// codemap/{projectHash}/{snapshotID}.json.gz, with the map hash and
// project root recorded as object metadata.
type GCSBackup struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// GCSOption customizes the backup client.
type GCSOption func(*gcsConfig)

type gcsConfig struct {
	clientOptions []option.ClientOption
}

// WithCredentialsFile authenticates with a service account key file
// instead of application default credentials.
func WithCredentialsFile(path string) GCSOption {
	return func(c *gcsConfig) {
		c.clientOptions = append(c.clientOptions, option.WithCredentialsFile(path))
	}
}

// WithEndpoint points the client at an alternate endpoint, typically a
// local emulator in tests.
func WithEndpoint(url string) GCSOption {
	return func(c *gcsConfig) {
		c.clientOptions = append(c.clientOptions,
			option.WithEndpoint(url), option.WithoutAuthentication())
	}
}

// NewGCSBackup connects to GCS and validates the bucket name.
func NewGCSBackup(ctx context.Context, bucket string, logger *slog.Logger, opts ...GCSOption) (*GCSBackup, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := &gcsConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := storage.NewClient(ctx, cfg.clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSBackup{client: client, bucket: bucket, logger: logger}, nil
}

// Close releases the underlying client.
func (b *GCSBackup) Close() error {
	return b.client.Close()
}

func (b *GCSBackup) objectName(projectHash, snapshotID string) string {
	return fmt.Sprintf("codemap/%s/%s.json.gz", projectHash, snapshotID)
}

// Upload writes one snapshot payload to the bucket.
//
// Outputs:
//   - string: The object name written.
//   - error: Non-nil on marshal, compression, or upload failure.
func (b *GCSBackup) Upload(ctx context.Context, payload *Payload, snapshotID string) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload must not be nil")
	}
	if snapshotID == "" {
		return "", fmt.Errorf("snapshot id must not be empty")
	}

	jsonData, err := payload.Encode()
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return "", fmt.Errorf("compress payload: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("close gzip writer: %w", err)
	}

	projectHash := hashString(payload.ProjectRoot)[:16]
	name := b.objectName(projectHash, snapshotID)

	w := b.client.Bucket(b.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/gzip"
	w.Metadata = map[string]string{
		"map-hash":       payload.MapHash,
		"project-root":   payload.ProjectRoot,
		"schema-version": payload.SchemaVersion,
		"uploaded-at":    time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := w.Write(compressed.Bytes()); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}

	b.logger.Info("Snapshot backed up to GCS",
		slog.String("bucket", b.bucket),
		slog.String("object", name),
		slog.Int("compressed_size", compressed.Len()))
	return name, nil
}

// Download fetches one backed-up snapshot and decodes it.
func (b *GCSBackup) Download(ctx context.Context, projectRoot, snapshotID string) (*Payload, error) {
	projectHash := hashString(projectRoot)[:16]
	name := b.objectName(projectHash, snapshotID)

	r, err := b.client.Bucket(b.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer r.Close()

	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream for %s: %w", name, err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return DecodePayload(jsonData)
}

// ListBackups returns the backed-up snapshot ids for a project, sorted.
func (b *GCSBackup) ListBackups(ctx context.Context, projectRoot string) ([]string, error) {
	projectHash := hashString(projectRoot)[:16]
	prefix := fmt.Sprintf("codemap/%s/", projectHash)

	var ids []string
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list backups under %s: %w", prefix, err)
		}
		name := strings.TrimPrefix(attrs.Name, prefix)
		if strings.HasSuffix(name, ".json.gz") {
			ids = append(ids, strings.TrimSuffix(name, ".json.gz"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}
