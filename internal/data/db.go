// Package data provides the SQLite persistence layer for Divan: knowledge
// entries, decision records, observed outcomes, and learned priors.
// It uses modernc.org/sqlite for pure-Go, CGO-free database access.
package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// schema holds every table and index Divan persists. Statements are
// idempotent so Migrate can run on every startup.
var schema = []string{
	// Knowledge entries with reinforcement memory
	`CREATE TABLE IF NOT EXISTS knowledge_entries (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT,
		reinforcement_count INTEGER NOT NULL DEFAULT 0,
		penalty_count INTEGER NOT NULL DEFAULT 0,
		last_reinforced DATETIME,
		concept_tags TEXT,
		goal_tags TEXT,
		applicability TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_knowledge_domain ON knowledge_entries(domain)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_type ON knowledge_entries(type)`,

	// One row per decision, keyed by the engine-issued ID
	`CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		mode TEXT NOT NULL,
		frame TEXT NOT NULL,
		domains TEXT NOT NULL,
		council TEXT NOT NULL,
		judges TEXT,
		gate TEXT NOT NULL,
		candidate_quality REAL NOT NULL DEFAULT 0,
		knowledge_ids TEXT,
		features TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_mode ON decisions(mode)`,

	// At most one outcome per decision; re-recording updates in place
	`CREATE TABLE IF NOT EXISTS outcomes (
		decision_id TEXT PRIMARY KEY,
		success INTEGER NOT NULL,
		regret_score REAL NOT NULL DEFAULT 0,
		recovery_time_days REAL NOT NULL DEFAULT 0,
		secondary_damage INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (decision_id) REFERENCES decisions(id)
	)`,

	// Learned type weights per situation bucket
	`CREATE TABLE IF NOT EXISTS learned_priors (
		bucket TEXT PRIMARY KEY,
		principle_weight REAL NOT NULL DEFAULT 1.0,
		rule_weight REAL NOT NULL DEFAULT 1.0,
		warning_weight REAL NOT NULL DEFAULT 1.0,
		claim_weight REAL NOT NULL DEFAULT 1.0,
		advice_weight REAL NOT NULL DEFAULT 1.0,
		sample_count INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	// Full-text index over knowledge content, external-content mode so the
	// entries table stays the single source of truth
	`CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
		content, concept_tags, goal_tags,
		content='knowledge_entries', content_rowid='rowid'
	)`,

	// Triggers keep the FTS index in lockstep with knowledge_entries
	`CREATE TRIGGER IF NOT EXISTS knowledge_fts_insert AFTER INSERT ON knowledge_entries BEGIN
		INSERT INTO knowledge_fts(rowid, content, concept_tags, goal_tags)
		VALUES (new.rowid, new.content, new.concept_tags, new.goal_tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS knowledge_fts_delete AFTER DELETE ON knowledge_entries BEGIN
		INSERT INTO knowledge_fts(knowledge_fts, rowid, content, concept_tags, goal_tags)
		VALUES ('delete', old.rowid, old.content, old.concept_tags, old.goal_tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS knowledge_fts_update AFTER UPDATE ON knowledge_entries BEGIN
		INSERT INTO knowledge_fts(knowledge_fts, rowid, content, concept_tags, goal_tags)
		VALUES ('delete', old.rowid, old.content, old.concept_tags, old.goal_tags);
		INSERT INTO knowledge_fts(rowid, content, concept_tags, goal_tags)
		VALUES (new.rowid, new.content, new.concept_tags, new.goal_tags);
	END`,
}

// defaultBusyTimeoutMs is the lock wait applied when no timeout is
// configured.
const defaultBusyTimeoutMs = 5000

// Store provides access to the SQLite database.
type Store struct {
	db            *sql.DB
	path          string
	busyTimeoutMs int
}

// NewDB opens (or creates) the database at path with the default busy
// timeout. See NewDBWithTimeout.
func NewDB(path string) (*Store, error) {
	return NewDBWithTimeout(path, defaultBusyTimeoutMs)
}

// NewDBWithTimeout opens (or creates) the database at path and initializes
// the schema. busyTimeoutMs is how long a locked connection waits before
// returning SQLITE_BUSY; zero or below falls back to the default. The path
// should point to a LOCAL file (e.g., ~/.divan/divan.db); network paths are
// rejected to prevent SQLite corruption. Pass ":memory:" for an ephemeral
// in-memory database, which the single pooled connection keeps alive for
// the lifetime of the store.
func NewDBWithTimeout(path string, busyTimeoutMs int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		if err := validateLocalPath(dir); err != nil {
			return nil, fmt.Errorf("validate data directory: %w", err)
		}
	}

	// WAL mode is enabled via PRAGMA after connection
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Connections never expire

	if busyTimeoutMs <= 0 {
		busyTimeoutMs = defaultBusyTimeoutMs
	}
	store := &Store{db: db, path: path, busyTimeoutMs: busyTimeoutMs}

	// Initialize SQLite PRAGMAs
	if err := store.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}

	// Create schema
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Debug().Str("path", path).Msg("database initialized")
	return store, nil
}

// initPragmas configures SQLite for optimal performance and safety.
func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent reads
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA foreign_keys = ON",    // Enforce referential integrity
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeoutMs),
		"PRAGMA cache_size = -64000",       // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",       // Keep temp tables in memory
		"PRAGMA mmap_size = 268435456",     // 256MB memory-mapped I/O
		"PRAGMA page_size = 4096",          // Match OS page size
		"PRAGMA auto_vacuum = INCREMENTAL", // Reclaim space gradually
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Migrate creates all tables and indexes. Every statement uses IF NOT
// EXISTS, so this is idempotent - safe to call on every startup.
func (s *Store) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	return nil
}

// Health checks if the database connection is alive and responsive.
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Simple query to verify connectivity
	var result int
	err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("health check returned unexpected value: %d", result)
	}

	return nil
}

// Close closes the database connection.
// This should be called when shutting down the application.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	// Run checkpoint to flush WAL to main database
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		// Log but don't fail - we still want to close
		log.Warn().Err(err).Msg("wal checkpoint failed on close")
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

// DB returns the underlying *sql.DB for advanced operations.
// Use with caution - prefer the Store methods when possible.
func (s *Store) DB() *sql.DB {
	return s.db
}

// validateLocalPath ensures the path is on a local filesystem.
// Network paths (SMB, NFS, etc.) can cause SQLite corruption.
func validateLocalPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	// Check for common network path patterns
	networkPrefixes := []string{
		"//",     // UNC paths (Windows)
		"\\\\",   // UNC paths (Windows alternative)
		"/mnt/",  // Common Linux NFS/CIFS mount point
		"/net/",  // macOS network mounts
	}

	for _, prefix := range networkPrefixes {
		if strings.HasPrefix(absPath, prefix) {
			return fmt.Errorf("network path detected: %s (SQLite requires local filesystem)", absPath)
		}
	}

	// Additional check: ensure directory is writable
	testFile := filepath.Join(path, ".divan-write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	os.Remove(testFile)

	return nil
}

// BeginTx starts a new transaction with the given context and options.
// Use this for operations that need to be atomic.
func (s *Store) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// WithTx executes a function within a transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, it is committed.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
