// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteDriverName = "sqlite3"

const sqliteExportSchema = `
CREATE TABLE IF NOT EXISTS map_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS symbols (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL UNIQUE,
    kind           TEXT NOT NULL,
    has_definition INTEGER NOT NULL,
    ambiguous      INTEGER NOT NULL,
    file           TEXT NOT NULL,
    line           INTEGER NOT NULL,
    snippet_hash   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS locations (
    symbol_id TEXT NOT NULL REFERENCES symbols(id),
    file      TEXT NOT NULL,
    line      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS call_edges (
    caller_id TEXT NOT NULL REFERENCES symbols(id),
    callee_id TEXT NOT NULL REFERENCES symbols(id),
    PRIMARY KEY (caller_id, callee_id)
);
CREATE TABLE IF NOT EXISTS diagnostics (
    seq      INTEGER PRIMARY KEY AUTOINCREMENT,
    code     TEXT NOT NULL,
    severity TEXT NOT NULL,
    file     TEXT NOT NULL,
    line     INTEGER NOT NULL,
    symbol   TEXT NOT NULL,
    detail   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_edges_callee ON call_edges(callee_id);
`

// ExportSQLite writes a payload to a standalone SQLite database so
// other tooling can query the map with plain SQL.
//
// Description:
// Creates (or truncates) the database at path, applies the schema,
// and bulk-inserts symbols, per-symbol location lists, call edges,
// and diagnostics inside one transaction. Symbols land in id order
// and edges in (caller, callee) order, matching the payload.
//
// Inputs:
//   - ctx: Cancels the export between statements.
//   - payload: A serialized build.
//   - path: Destination file; parent directories are created.
//
// Outputs:
//   - error: Non-nil on filesystem, driver, or SQL failure.
func ExportSQLite(ctx context.Context, payload *Payload, path string, logger *slog.Logger) error {
	if payload == nil {
		return fmt.Errorf("payload must not be nil")
	}
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return fmt.Errorf("export path must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cleanPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory %q: %w", dir, err)
		}
	}
	// Always export a fresh database, never merge into a stale one.
	if err := os.Remove(cleanPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale export %q: %w", cleanPath, err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=2000&_foreign_keys=on", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return fmt.Errorf("open sqlite export %q: %w", cleanPath, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite export %q: %w", cleanPath, err)
	}
	if _, err := db.ExecContext(ctx, sqliteExportSchema); err != nil {
		return fmt.Errorf("apply export schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export tx: %w", err)
	}
	if err := exportRows(ctx, tx, payload); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export tx: %w", err)
	}

	logger.Info("SQLite export complete",
		slog.String("path", cleanPath),
		slog.Int("symbols", len(payload.Symbols)),
		slog.Int("edges", len(payload.Edges)),
		slog.Int("diagnostics", len(payload.Diagnostics)))
	return nil
}

func exportRows(ctx context.Context, tx *sql.Tx, payload *Payload) error {
	meta := map[string]string{
		"schema_version": payload.SchemaVersion,
		"project_root":   payload.ProjectRoot,
		"map_hash":       payload.MapHash,
		"built_at_milli": fmt.Sprintf("%d", payload.BuiltAtMilli),
		"run_id":         payload.Stats.RunID,
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO map_meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("insert meta %q: %w", key, err)
		}
	}

	symStmt, err := tx.PrepareContext(ctx, `INSERT INTO symbols
		(id, name, kind, has_definition, ambiguous, file, line, snippet_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare symbol insert: %w", err)
	}
	defer symStmt.Close()
	locStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO locations (symbol_id, file, line) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare location insert: %w", err)
	}
	defer locStmt.Close()

	for _, s := range payload.Symbols {
		if _, err := symStmt.ExecContext(ctx,
			s.ID, s.Name, s.Kind.String(), boolToInt(s.HasDefinition),
			boolToInt(s.Ambiguous), s.File, s.Line, s.Hash); err != nil {
			return fmt.Errorf("insert symbol %q: %w", s.Name, err)
		}
		for _, loc := range s.Locations {
			if _, err := locStmt.ExecContext(ctx, s.ID, loc.File, loc.Line); err != nil {
				return fmt.Errorf("insert location for %q: %w", s.Name, err)
			}
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO call_edges (caller_id, callee_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()
	for _, e := range payload.Edges {
		if _, err := edgeStmt.ExecContext(ctx, e.CallerID, e.CalleeID); err != nil {
			return fmt.Errorf("insert edge %s -> %s: %w", e.CallerID, e.CalleeID, err)
		}
	}

	diagStmt, err := tx.PrepareContext(ctx, `INSERT INTO diagnostics
		(code, severity, file, line, symbol, detail) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare diagnostic insert: %w", err)
	}
	defer diagStmt.Close()
	for _, d := range payload.Diagnostics {
		if _, err := diagStmt.ExecContext(ctx,
			string(d.Code), string(d.Severity), d.File, d.Line, d.Symbol, d.Detail); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
