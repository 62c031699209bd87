// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cloudbackup optionally mirrors local files off-host to Google
// Cloud Storage. The configuration manager uses it to copy each rotated
// orch-config.yaml.backup snapshot off the machine the supervisor runs on,
// so a lost or corrupted local disk does not also lose the project
// registry's history. A nil *Uploader disables the feature entirely. Upload
// failure is never a fatal error, since the local .backup file already
// satisfies the durability guarantee; it is reported only to the handler
// set with WithErrorHandler, if any.
package cloudbackup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
)

// Uploader mirrors files to a single GCS bucket under a fixed prefix.
//
// # Thread Safety
//
// Uploader is safe for concurrent use; the underlying storage.Client is.
type Uploader struct {
	client *storage.Client
	bucket string
	prefix string

	onError func(path string, err error)
}

// New creates an Uploader targeting the given bucket. objectPrefix groups
// uploaded objects, e.g. "orch-config-backups" yields object names like
// "orch-config-backups/2026-07-31T10-00-00/orch-config.yaml.backup".
func New(ctx context.Context, bucket, objectPrefix string) (*Uploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudbackup: create GCS client: %w", err)
	}
	return &Uploader{client: client, bucket: bucket, prefix: objectPrefix}, nil
}

// WithErrorHandler registers a callback invoked whenever Upload fails,
// letting the caller log the failure with its own logger.
func (u *Uploader) WithErrorHandler(fn func(path string, err error)) *Uploader {
	u.onError = fn
	return u
}

// Upload copies path to the bucket under a timestamped object name. Meant
// to be called in its own goroutine: it never blocks a config Save, and
// any failure is reported only through the registered error handler.
func (u *Uploader) Upload(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := u.upload(ctx, path); err != nil && u.onError != nil {
		u.onError(path, err)
	}
}

func (u *Uploader) upload(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cloudbackup: read %s: %w", path, err)
	}

	objectName := fmt.Sprintf("%s/%s/%s", u.prefix, time.Now().UTC().Format("2006-01-02T15-04-05"), filepath.Base(path))
	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("cloudbackup: write object %s: %w", objectName, err)
	}
	return w.Close()
}

// Close releases the underlying GCS client.
func (u *Uploader) Close() error {
	return u.client.Close()
}
