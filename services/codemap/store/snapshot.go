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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerDB key schema for map snapshots.
const (
	keyPrefixSnap      = "map:snap:"
	keyPrefixSnapIndex = "map:snap:index:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"
)

// ErrSnapshotNotFound is returned when no snapshot matches an id.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotMetadata describes one saved snapshot.
type SnapshotMetadata struct {
	// SnapshotID is a fresh uuid assigned at save time.
	SnapshotID string `json:"snapshot_id"`

	// ProjectRoot the snapshot was built from.
	ProjectRoot string `json:"project_root"`

	// ProjectHash is SHA256(ProjectRoot)[:16], used for key grouping.
	ProjectHash string `json:"project_hash"`

	// MapHash is the deterministic structural hash of the payload.
	MapHash string `json:"map_hash"`

	// Label is an optional human-readable label.
	Label string `json:"label,omitempty"`

	// CreatedAtMilli is the save time in Unix milliseconds.
	CreatedAtMilli int64 `json:"created_at_milli"`

	// SymbolCount and EdgeCount summarize the payload for listings.
	SymbolCount int `json:"symbol_count"`
	EdgeCount   int `json:"edge_count"`

	// DiagnosticCount is how many diagnostics the build recorded.
	DiagnosticCount int `json:"diagnostic_count"`

	// SchemaVersion of the stored payload.
	SchemaVersion string `json:"schema_version"`

	// CompressedSize of the gzip payload in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is SHA256 of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// SnapshotManager saves and loads map snapshots in BadgerDB.
//
// Payloads are stored as gzip-compressed JSON under per-project key
// prefixes; a latest pointer per project makes LoadLatest cheap.
//
// Thread Safety: safe for concurrent use; Badger handles its own
// transaction isolation.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager creates a manager over an opened BadgerDB.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// Save persists one payload.
//
// Key Schema:
//
//	map:snap:{projectHash}:{snapshotID}:data → gzip(JSON(Payload))
//	map:snap:{projectHash}:{snapshotID}:meta → JSON(SnapshotMetadata)
//	map:snap:{projectHash}:latest            → snapshotID
//	map:snap:index:{snapshotID}              → projectHash
func (m *SnapshotManager) Save(ctx context.Context, payload *Payload, label string) (*SnapshotMetadata, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jsonData, err := payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	snapshotID := uuid.NewString()
	projectHash := hashString(payload.ProjectRoot)[:16]

	meta := &SnapshotMetadata{
		SnapshotID:      snapshotID,
		ProjectRoot:     payload.ProjectRoot,
		ProjectHash:     projectHash,
		MapHash:         payload.MapHash,
		Label:           label,
		CreatedAtMilli:  time.Now().UnixMilli(),
		SymbolCount:     len(payload.Symbols),
		EdgeCount:       len(payload.Edges),
		DiagnosticCount: len(payload.Diagnostics),
		SchemaVersion:   payload.SchemaVersion,
		CompressedSize:  int64(len(compressedData)),
		ContentHash:     hashBytes(compressedData),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey), compressedData); err != nil {
			return fmt.Errorf("store data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("store metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey), []byte(snapshotID)); err != nil {
			return fmt.Errorf("update latest pointer: %w", err)
		}
		if err := txn.Set([]byte(indexKey), []byte(projectHash)); err != nil {
			return fmt.Errorf("store reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	m.logger.Info("Snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("project_root", payload.ProjectRoot),
		slog.Int("symbols", meta.SymbolCount),
		slog.Int("edges", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize))

	return meta, nil
}

// Load retrieves one snapshot by id.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*Payload, *SnapshotMetadata, error) {
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot id must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	projectHash, err := m.projectHashFor(snapshotID)
	if err != nil {
		return nil, nil, err
	}

	var compressedData, metaJSON []byte
	err = m.db.View(func(txn *badger.Txn) error {
		dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
		metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta

		item, err := txn.Get([]byte(dataKey))
		if err != nil {
			return err
		}
		if compressedData, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get([]byte(metaKey))
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
		return nil, nil, fmt.Errorf("read snapshot: %w", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("open gzip payload: %w", err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress payload: %w", err)
	}

	payload, err := DecodePayload(jsonData)
	if err != nil {
		return nil, nil, err
	}
	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("decode metadata: %w", err)
	}
	return payload, &meta, nil
}

// LoadLatest retrieves the most recently saved snapshot for a project.
func (m *SnapshotManager) LoadLatest(ctx context.Context, projectRoot string) (*Payload, *SnapshotMetadata, error) {
	projectHash := hashString(projectRoot)[:16]
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest

	var snapshotID string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		snapshotID = string(val)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("%w: no snapshots for %s", ErrSnapshotNotFound, projectRoot)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read latest pointer: %w", err)
	}
	return m.Load(ctx, snapshotID)
}

// List returns metadata for every snapshot of a project, newest first.
func (m *SnapshotManager) List(ctx context.Context, projectRoot string) ([]*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	projectHash := hashString(projectRoot)[:16]
	prefix := []byte(keyPrefixSnap + projectHash + ":")

	var metas []*SnapshotMetadata
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if !bytes.HasSuffix([]byte(key), []byte(keySuffixMeta)) {
				continue
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var meta SnapshotMetadata
			if err := json.Unmarshal(val, &meta); err != nil {
				m.logger.Warn("Skipping undecodable snapshot metadata",
					slog.String("key", key),
					slog.String("error", err.Error()))
				continue
			}
			metas = append(metas, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAtMilli > metas[j].CreatedAtMilli
	})
	return metas, nil
}

// Delete removes one snapshot and its index entries.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	projectHash, err := m.projectHashFor(snapshotID)
	if err != nil {
		return err
	}

	return m.db.Update(func(txn *badger.Txn) error {
		base := keyPrefixSnap + projectHash + ":" + snapshotID
		for _, key := range []string{base + keySuffixData, base + keySuffixMeta, keyPrefixSnapIndex + snapshotID} {
			if err := txn.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		// The latest pointer may now dangle; leave it, Load reports
		// not-found and the next Save repoints it.
		return nil
	})
}

// projectHashFor resolves a snapshot id to its project hash via the
// reverse index.
func (m *SnapshotManager) projectHashFor(snapshotID string) (string, error) {
	var projectHash string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefixSnapIndex + snapshotID))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		projectHash = string(val)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
	}
	if err != nil {
		return "", fmt.Errorf("resolve snapshot id: %w", err)
	}
	return projectHash, nil
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
