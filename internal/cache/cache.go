// Package cache implements the embedded relational store: a
// schema-versioned SQLite database with WAL journaling, an FTS5 index
// accelerating the matcher DSL, and cooperative named locks replacing any
// in-process mutex hierarchy (spec §4.3, §9 "Concurrency over the
// database"). mattn/go-sqlite3 is used (built with the sqlite_fts5 tag)
// because it supports registering process_string_for_fts as a native SQL
// function, which modernc.org/sqlite's driver does not expose the same way.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Store wraps the opened database handle.
type Store struct {
	DB *sql.DB
}

// ConfigFingerprint is the subset of config.Config that participates in
// the config_hash check (spec §4.3): a change to any of these fields
// invalidates the cache the same way a schema change does.
type ConfigFingerprint struct {
	MusicSourceDir           string   `json:"music_source_dir"`
	CacheDir                 string   `json:"cache_dir"`
	CoverArtStems            []string `json:"cover_art_stems"`
	ValidArtExts             []string `json:"valid_art_exts"`
	IgnoreReleaseDirectories []string `json:"ignore_release_directories"`
}

func (c ConfigFingerprint) hash() string {
	cp := c
	cp.CoverArtStems = sortedCopy(c.CoverArtStems)
	cp.ValidArtExts = sortedCopy(c.ValidArtExts)
	cp.IgnoreReleaseDirectories = sortedCopy(c.IgnoreReleaseDirectories)
	b, _ := json.Marshal(cp)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(ss []string) []string {
	cp := append([]string(nil), ss...)
	sort.Strings(cp)
	return cp
}

func schemaHash() string {
	sum := sha256.Sum256([]byte(schemaSQL))
	return hex.EncodeToString(sum[:])
}

// Open opens (creating if needed) the cache database at
// <cacheDir>/cache.sqlite3. If an existing database's recorded
// (schema_hash, config_hash, version) doesn't match the current binary,
// the file is deleted and recreated from scratch, per spec §4.3.
func Open(ctx context.Context, cacheDir string, cfg ConfigFingerprint) (*Store, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(cacheDir, "cache.sqlite3")

	wantSchema, wantConfig := schemaHash(), cfg.hash()

	if matches, err := currentHashMatches(ctx, path, wantSchema, wantConfig); err != nil {
		return nil, err
	} else if !matches {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(path + suffix)
		}
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	if err := stampHash(ctx, db, wantSchema, wantConfig); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{DB: db}, nil
}

func dsn(path string) string {
	return path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=15000"
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 15000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("cache: %s: %w", pragma, err)
		}
	}
	return nil
}

func currentHashMatches(ctx context.Context, path, wantSchema, wantConfig string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return true, nil // nonexistent database needs no eviction
	}
	probe, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return false, nil
	}
	defer probe.Close()

	var gotSchema, gotConfig string
	var gotVersion int
	row := probe.QueryRowContext(ctx,
		`SELECT schema_hash, config_hash, version FROM _schema_hash LIMIT 1`)
	if err := row.Scan(&gotSchema, &gotConfig, &gotVersion); err != nil {
		return false, nil
	}
	return gotSchema == wantSchema && gotConfig == wantConfig && gotVersion == schemaVersion, nil
}

func stampHash(ctx context.Context, db *sql.DB, schema, config string) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _schema_hash`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO _schema_hash (schema_hash, config_hash, version) VALUES (?, ?, ?)`,
		schema, config, schemaVersion)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.DB.Close() }
