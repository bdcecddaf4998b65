// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDB key layout for report snapshots.
//
//	xref:snap:{rootHash}:{snapshotID}:data -> gzip(JSON(Report))
//	xref:snap:{rootHash}:{snapshotID}:meta -> JSON(SnapshotMetadata)
//	xref:snap:{rootHash}:latest            -> snapshotID
//	xref:idx:{snapshotID}                  -> rootHash
const (
	keyPrefixSnap   = "xref:snap:"
	keyPrefixIndex  = "xref:idx:"
	keySuffixData   = ":data"
	keySuffixMeta   = ":meta"
	keySuffixLatest = ":latest"
)

// SnapshotMetadata describes a saved report.
type SnapshotMetadata struct {
	// SnapshotID is SHA256(RootDir + RunID)[:16].
	SnapshotID string `json:"snapshot_id"`

	RunID    string `json:"run_id"`
	RootDir  string `json:"root_dir"`
	RootHash string `json:"root_hash"`

	// ReportHash is the structural hash of the saved report.
	ReportHash string `json:"report_hash"`

	Label          string `json:"label,omitempty"`
	CreatedAtMilli int64  `json:"created_at_milli"`
	NodeCount      int    `json:"node_count"`
	ModuleCount    int    `json:"module_count"`
	ErrorCount     int    `json:"error_count"`
	SchemaVersion  string `json:"schema_version"`
	CompressedSize int64  `json:"compressed_size"`

	// ContentHash is the SHA256 of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// SnapshotManager stores reports as gzip-compressed JSON in BadgerDB.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager creates a manager over an opened database. The
// caller owns db and closes it.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// Save persists rep and moves the root's latest pointer to it.
//
// Outputs:
//
//	*SnapshotMetadata - Metadata of the stored snapshot.
//	error - Non-nil if serialization or the write fails.
func (m *SnapshotManager) Save(ctx context.Context, rep *Report, label string) (*SnapshotMetadata, error) {
	if rep == nil {
		return nil, fmt.Errorf("report must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}
	compressed, err := gzipBytes(payload)
	if err != nil {
		return nil, err
	}

	rootHash := RootHash(rep.RootDir)
	meta := &SnapshotMetadata{
		SnapshotID:     hashString(rep.RootDir + ":" + rep.RunID)[:16],
		RunID:          rep.RunID,
		RootDir:        rep.RootDir,
		RootHash:       rootHash,
		ReportHash:     rep.ReportHash,
		Label:          label,
		CreatedAtMilli: time.Now().UnixMilli(),
		NodeCount:      len(rep.Nodes),
		ModuleCount:    len(rep.Modules),
		ErrorCount:     len(rep.Errors),
		SchemaVersion:  rep.SchemaVersion,
		CompressedSize: int64(len(compressed)),
		ContentHash:    hashBytes(compressed),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	base := snapKey(rootHash, meta.SnapshotID)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(base+keySuffixData), compressed); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(base+keySuffixMeta), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(keyPrefixSnap+rootHash+keySuffixLatest), []byte(meta.SnapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		return txn.Set([]byte(keyPrefixIndex+meta.SnapshotID), []byte(rootHash))
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}

	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", meta.SnapshotID),
		slog.String("root", meta.RootDir),
		slog.Int("nodes", meta.NodeCount),
		slog.Int64("compressed_size", meta.CompressedSize))
	return meta, nil
}

// Load returns the report saved under snapshotID.
//
// Errors:
//
//	ErrSnapshotNotFound when the ID is unknown; an integrity error when
//	the stored payload no longer matches its content hash.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*Report, *SnapshotMetadata, error) {
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	rootHash, err := m.rootHashOf(snapshotID)
	if err != nil {
		return nil, nil, err
	}
	return m.load(rootHash, snapshotID)
}

// LoadLatest returns the newest report saved for rootDir.
func (m *SnapshotManager) LoadLatest(ctx context.Context, rootDir string) (*Report, *SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	rootHash := RootHash(rootDir)
	var snapshotID string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefixSnap + rootHash + keySuffixLatest))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("%w: no snapshot for %s", ErrSnapshotNotFound, rootDir)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest pointer: %w", err)
	}
	return m.load(rootHash, snapshotID)
}

// List returns snapshot metadata, newest first. An empty rootDir lists
// every root. limit <= 0 means 100.
func (m *SnapshotManager) List(ctx context.Context, rootDir string, limit int) ([]*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	prefix := keyPrefixSnap
	if rootDir != "" {
		prefix += RootHash(rootDir) + ":"
	}

	results := []*SnapshotMetadata{}
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, keySuffixMeta) {
				continue
			}
			var meta SnapshotMetadata
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &meta) }); err != nil {
				m.logger.Warn("skipping corrupt snapshot metadata",
					slog.String("key", key),
					slog.String("error", err.Error()))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAtMilli > results[j].CreatedAtMilli
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot and, if it was the latest, the latest pointer.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rootHash, err := m.rootHashOf(snapshotID)
	if err != nil {
		return err
	}

	base := snapKey(rootHash, snapshotID)
	latestKey := []byte(keyPrefixSnap + rootHash + keySuffixLatest)
	err = m.db.Update(func(txn *badger.Txn) error {
		for _, k := range []string{base + keySuffixData, base + keySuffixMeta, keyPrefixIndex + snapshotID} {
			if err := txn.Delete([]byte(k)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		item, err := txn.Get(latestKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		latest, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(latest) == snapshotID {
			return txn.Delete(latestKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

func (m *SnapshotManager) load(rootHash, snapshotID string) (*Report, *SnapshotMetadata, error) {
	base := snapKey(rootHash, snapshotID)
	var compressed, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(base + keySuffixData))
		if err != nil {
			return err
		}
		if compressed, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get([]byte(base + keySuffixMeta))
		if err != nil {
			return err
		}
		metaJSON, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot %s: %w", snapshotID, err)
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if actual := hashBytes(compressed); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s", snapshotID, meta.ContentHash, actual)
	}

	payload, err := gunzipBytes(compressed)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	rep, err := DecodeReport(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	return rep, &meta, nil
}

func (m *SnapshotManager) rootHashOf(snapshotID string) (string, error) {
	var rootHash string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefixIndex + snapshotID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rootHash = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
	}
	if err != nil {
		return "", fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	return rootHash, nil
}

// RootHash returns SHA256(abs(rootDir))[:16], the key prefix for a root.
func RootHash(rootDir string) string {
	if abs, err := filepath.Abs(rootDir); err == nil {
		rootDir = abs
	}
	return hashString(rootDir)[:16]
}

func snapKey(rootHash, snapshotID string) string {
	return keyPrefixSnap + rootHash + ":" + snapshotID
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(data); err != nil {
		return nil, fmt.Errorf("compressing report: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
