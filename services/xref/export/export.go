// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes analysis reports to a local file or a Google Cloud
// Storage object.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSScheme prefixes Cloud Storage destinations.
const GCSScheme = "gs://"

// ErrInvalidDestination is returned for an unparseable destination.
var ErrInvalidDestination = errors.New("invalid export destination")

// Destination is a parsed export target.
type Destination struct {
	// Path is set for local files.
	Path string

	// Bucket and Object are set for gs:// targets.
	Bucket string
	Object string
}

// IsGCS reports whether d names a Cloud Storage object.
func (d Destination) IsGCS() bool {
	return d.Bucket != ""
}

// String renders d the way it was given.
func (d Destination) String() string {
	if d.IsGCS() {
		return GCSScheme + d.Bucket + "/" + d.Object
	}
	return d.Path
}

// ParseDestination parses "gs://bucket/object" or a local path.
func ParseDestination(dest string) (Destination, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return Destination{}, fmt.Errorf("%w: empty", ErrInvalidDestination)
	}
	if !strings.HasPrefix(dest, GCSScheme) {
		return Destination{Path: dest}, nil
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(dest, GCSScheme), "/")
	if !ok || bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return Destination{}, fmt.Errorf("%w: %s needs gs://bucket/object", ErrInvalidDestination, dest)
	}
	return Destination{Bucket: bucket, Object: object}, nil
}

// Options configures Write.
type Options struct {
	// CredentialsFile is a service account key for Cloud Storage. Empty
	// uses application default credentials.
	CredentialsFile string

	// ContentType of the uploaded object. Default: application/json
	ContentType string
}

// Write stores data at dest.
func Write(ctx context.Context, data []byte, dest Destination, opts Options) error {
	if !dest.IsGCS() {
		return writeLocal(data, dest.Path)
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); err != nil {
			return fmt.Errorf("service account key %s: %w", opts.CredentialsFile, err)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("create GCS storage client: %w", err)
	}
	defer client.Close()

	return upload(client.Bucket(dest.Bucket).Object(dest.Object).NewWriter(ctx), data, opts)
}

func upload(w *storage.Writer, data []byte, opts Options) error {
	w.ContentType = opts.ContentType
	if w.ContentType == "" {
		w.ContentType = "application/json"
	}
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy report to GCS object %s: %w", w.ObjectAttrs.Name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer for %s: %w", w.ObjectAttrs.Name, err)
	}
	return nil
}

func writeLocal(data []byte, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
