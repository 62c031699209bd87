// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

// GCSExporter ships buffered log entries to a Google Cloud Storage bucket.
//
// Entries are newline-delimited JSON, batched and flushed either when the
// in-memory buffer reaches batchSize or when Flush is called explicitly
// (normally during graceful shutdown). This is the off-host export path
// a daemon deployment of the supervisor uses when --daemon runs unattended
// and stderr is not monitored.
//
// # Thread Safety
//
// GCSExporter is safe for concurrent use; the buffer is protected by a mutex.
type GCSExporter struct {
	client     *storage.Client
	bucket     string
	objectBase string
	batchSize  int

	mu     sync.Mutex
	buffer []LogEntry
}

// NewGCSExporter creates an exporter that uploads to the given bucket.
//
// objectBase prefixes every uploaded object name, e.g. "supervisor" yields
// object names like "supervisor/2026-07-31T10-00-00.000000000.log".
func NewGCSExporter(ctx context.Context, bucket, objectBase string) (*GCSExporter, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSExporter{
		client:     client,
		bucket:     bucket,
		objectBase: objectBase,
		batchSize:  100,
		buffer:     make([]LogEntry, 0, 100),
	}, nil
}

// Export buffers the entry, flushing asynchronously once the batch fills.
func (e *GCSExporter) Export(ctx context.Context, entry LogEntry) error {
	e.mu.Lock()
	e.buffer = append(e.buffer, entry)
	full := len(e.buffer) >= e.batchSize
	e.mu.Unlock()

	if full {
		go func() {
			uploadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = e.uploadBatch(uploadCtx)
		}()
	}
	return nil
}

// Flush uploads all buffered entries before returning.
func (e *GCSExporter) Flush(ctx context.Context) error {
	return e.uploadBatch(ctx)
}

// Close releases the underlying GCS client.
func (e *GCSExporter) Close() error {
	return e.client.Close()
}

func (e *GCSExporter) uploadBatch(ctx context.Context) error {
	e.mu.Lock()
	if len(e.buffer) == 0 {
		e.mu.Unlock()
		return nil
	}
	batch := e.buffer
	e.buffer = make([]LogEntry, 0, e.batchSize)
	e.mu.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range batch {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("encode log entry: %w", err)
		}
	}

	objectName := fmt.Sprintf("%s/%s.log", e.objectBase, time.Now().UTC().Format("2006-01-02T15-04-05.000000000"))
	w := e.client.Bucket(e.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	if _, err := w.Write(buf.Bytes()); err != nil {
		_ = w.Close()
		return fmt.Errorf("write GCS object: %w", err)
	}
	return w.Close()
}

var _ LogExporter = (*GCSExporter)(nil)
