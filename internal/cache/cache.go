// Package cache is the assembly-compare cache: a SQLite-backed store keyed
// by (sourceHash, optimizationLevel, compilerID) that lets the engine and
// validators skip recompiling a translation unit whose content has not
// changed, following the teacher's internal/storage db/cache split but
// keyed for compile-result reuse rather than query responses.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/klauspost/compress/zstd"

	"levelup/internal/logging"
)

// DB wraps a SQLite connection holding the assembly cache table.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
}

// Open opens or creates the cache database at {workspaceRoot}/.levelup/cache.db.
func Open(workspaceRoot string, logger *logging.Logger) (*DB, error) {
	dir := filepath.Join(workspaceRoot, ".levelup")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create .levelup directory: %w", err)
	}

	dbPath := filepath.Join(dir, "cache.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS assembly_cache (
			source_hash       TEXT NOT NULL,
			optimization_level INTEGER NOT NULL,
			compiler_id       TEXT NOT NULL,
			asm_zstd          BLOB NOT NULL,
			created_at        TEXT NOT NULL,
			PRIMARY KEY (source_hash, optimization_level, compiler_id)
		)
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create assembly_cache table: %w", err)
	}

	return &DB{conn: conn, logger: logger}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// SourceHash derives the cache key's source component from translation unit
// content.
func SourceHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AssemblyCache stores and retrieves compiled assembly text, compressed
// with zstd before it touches disk.
type AssemblyCache struct {
	db      *DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewAssemblyCache creates a cache instance around an open database.
func NewAssemblyCache(db *DB) (*AssemblyCache, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &AssemblyCache{db: db, encoder: enc, decoder: dec}, nil
}

// Close releases the zstd encoder/decoder resources.
func (c *AssemblyCache) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// Get retrieves cached assembly text for a translation unit, if present.
func (c *AssemblyCache) Get(sourceHash string, optimizationLevel int, compilerID string) (string, bool, error) {
	var compressed []byte
	err := c.db.conn.QueryRow(`
		SELECT asm_zstd FROM assembly_cache
		WHERE source_hash = ? AND optimization_level = ? AND compiler_id = ?
	`, sourceHash, optimizationLevel, compilerID).Scan(&compressed)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("assembly cache lookup failed: %w", err)
	}

	decompressed, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to decompress cached assembly: %w", err)
	}
	return string(decompressed), true, nil
}

// Put stores assembly text for a translation unit, compressed with zstd.
func (c *AssemblyCache) Put(sourceHash string, optimizationLevel int, compilerID, asmText string, createdAt string) error {
	compressed := c.encoder.EncodeAll([]byte(asmText), nil)

	_, err := c.db.conn.Exec(`
		INSERT OR REPLACE INTO assembly_cache
			(source_hash, optimization_level, compiler_id, asm_zstd, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sourceHash, optimizationLevel, compilerID, compressed, createdAt)
	if err != nil {
		return fmt.Errorf("failed to store cached assembly: %w", err)
	}
	return nil
}

// Invalidate removes every cached entry for a compiler variant, used when a
// compiler's flags or path change and its cached output can no longer be
// trusted.
func (c *AssemblyCache) Invalidate(compilerID string) error {
	if _, err := c.db.conn.Exec("DELETE FROM assembly_cache WHERE compiler_id = ?", compilerID); err != nil {
		return fmt.Errorf("failed to invalidate assembly cache: %w", err)
	}
	c.db.logger.Debug("invalidated assembly cache", map[string]interface{}{
		"compiler_id": compilerID,
	})
	return nil
}

// Stats reports how many entries the cache currently holds.
func (c *AssemblyCache) Stats() (entries int, sizeBytes int, err error) {
	err = c.db.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(LENGTH(asm_zstd)), 0) FROM assembly_cache
	`).Scan(&entries, &sizeBytes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get assembly cache stats: %w", err)
	}
	return entries, sizeBytes, nil
}
