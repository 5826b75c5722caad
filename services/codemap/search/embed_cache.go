// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
)

// embedCacheKeyPrefix namespaces embedding vectors in the shared
// Badger database. Keys are "map:embed:{snippetHash}".
const embedCacheKeyPrefix = "map:embed:"

// EmbedCache stores embedding vectors keyed by snippet hash, so an
// unchanged function never pays for a second embedding call.
//
// Thread Safety: safe for concurrent use.
type EmbedCache struct {
	db *badger.DB
}

// NewEmbedCache wraps an opened Badger database.
func NewEmbedCache(db *badger.DB) (*EmbedCache, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	return &EmbedCache{db: db}, nil
}

// Get returns the cached vector for a snippet hash, or ok=false.
func (c *EmbedCache) Get(snippetHash string) ([]float32, bool, error) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(embedCacheKeyPrefix + snippetHash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var derr error
			vec, derr = decodeVector(val)
			return derr
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read embed cache: %w", err)
	}
	return vec, true, nil
}

// Put stores a vector under a snippet hash.
func (c *EmbedCache) Put(snippetHash string, vec []float32) error {
	if snippetHash == "" {
		return fmt.Errorf("snippet hash must not be empty")
	}
	data := encodeVector(vec)
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(embedCacheKeyPrefix+snippetHash), data)
	})
	if err != nil {
		return fmt.Errorf("write embed cache: %w", err)
	}
	return nil
}

// Vectors are stored as little-endian float32 runs; no framing needed
// because the value length fixes the dimension.
func encodeVector(vec []float32) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(vec)*4))
	for _, f := range vec {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding value length %d not a float32 multiple", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
