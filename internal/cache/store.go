// Package cache persists worktree status snapshots in a per-repository
// SQLite database so the table paints instantly on startup.
package cache

import (
	"crypto/sha1" // #nosec G505 -- cache file naming, not security
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/chmouel/gw/internal/log"
	"github.com/chmouel/gw/internal/models"
)

// PathFor derives the cache database path for a repository root:
// ${cacheHome}/gw/<sha1(root)>.sqlite. cacheHome defaults to
// os.UserCacheDir when empty.
func PathFor(cacheHome, repoRoot string) (string, error) {
	if cacheHome == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		cacheHome = dir
	}
	sum := sha1.Sum([]byte(repoRoot)) // #nosec G401
	return filepath.Join(cacheHome, "gw", hex.EncodeToString(sum[:])+".sqlite"), nil
}

// writeLocks serializes writers per database file across the process.
// SQLite serializes writers itself, but holding one lock per file keeps
// section upserts from interleaving with full upserts for the same row.
var (
	writeLocksMu sync.Mutex
	writeLocks   = map[string]*sync.Mutex{}
)

func lockFor(path string) *sync.Mutex {
	writeLocksMu.Lock()
	defer writeLocksMu.Unlock()
	if mu, ok := writeLocks[path]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	writeLocks[path] = mu
	return mu
}

// Store is the SQLite-backed status cache. One row per cache key.
type Store struct {
	db *sql.DB
	mu *sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS worktrees (
	key TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	branch TEXT,
	last_commit_ts INTEGER NOT NULL DEFAULT 0,
	upstream TEXT,
	ahead INTEGER,
	behind INTEGER,
	pr_number INTEGER,
	pr_title TEXT,
	pr_state TEXT,
	pr_url TEXT,
	pr_base TEXT,
	changes_added INTEGER,
	changes_deleted INTEGER,
	changes_target TEXT,
	dirty INTEGER,
	checks_passed INTEGER,
	checks_total INTEGER,
	checks_state TEXT,
	pr_updated_at INTEGER,
	checks_updated_at INTEGER,
	changes_updated_at INTEGER,
	pullpush_validated_at INTEGER
)`

// now is swapped out by tests that assert on the validation stamps.
var now = func() int64 { return time.Now().Unix() }

// migrationColumns lists columns added after the initial schema. Opening
// an old database adds the missing ones; data in unknown columns is kept.
var migrationColumns = []struct{ name, decl string }{
	{"pr_title", "pr_title TEXT"},
	{"pr_base", "pr_base TEXT"},
	{"changes_target", "changes_target TEXT"},
	{"dirty", "dirty INTEGER"},
	{"checks_passed", "checks_passed INTEGER"},
	{"checks_total", "checks_total INTEGER"},
	{"checks_state", "checks_state TEXT"},
	{"pr_updated_at", "pr_updated_at INTEGER"},
	{"checks_updated_at", "checks_updated_at INTEGER"},
	{"changes_updated_at", "changes_updated_at INTEGER"},
	{"pullpush_validated_at", "pullpush_validated_at INTEGER"},
}

// Open creates or opens the cache database, applying the schema and any
// missing column migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cache pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache schema: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, mu: lockFor(path)}, nil
}

func migrate(db *sql.DB) error {
	rows, err := db.Query("PRAGMA table_info(worktrees)")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	existing := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, col := range migrationColumns {
		if existing[col.name] {
			continue
		}
		log.Printf("cache: adding column %s", col.name)
		if _, err := db.Exec("ALTER TABLE worktrees ADD COLUMN " + col.decl); err != nil {
			return fmt.Errorf("cache migrate %s: %w", col.name, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const statusColumns = `key, path, branch, last_commit_ts, upstream, ahead, behind,
	pr_number, pr_title, pr_state, pr_url, pr_base,
	changes_added, changes_deleted, changes_target, dirty,
	checks_passed, checks_total, checks_state`

// LoadAll returns every cached snapshot keyed by cache key.
func (s *Store) LoadAll() (map[string]models.WorktreeStatus, error) {
	rows, err := s.db.Query("SELECT " + statusColumns + " FROM worktrees")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := map[string]models.WorktreeStatus{}
	for rows.Next() {
		var key string
		var st models.WorktreeStatus
		var dirty *int
		if err := rows.Scan(
			&key, &st.Path, &st.Branch, &st.LastCommitTS, &st.Upstream, &st.Ahead, &st.Behind,
			&st.PRNumber, &st.PRTitle, &st.PRState, &st.PRURL, &st.PRBase,
			&st.ChangesAdded, &st.ChangesDeleted, &st.ChangesTarget, &dirty,
			&st.ChecksPassed, &st.ChecksTotal, &st.ChecksState,
		); err != nil {
			return nil, err
		}
		if dirty != nil {
			st.Dirty = models.Ptr(*dirty != 0)
		}
		result[key] = st
	}
	return result, rows.Err()
}

// Upsert writes a full snapshot under the given cache key. Every
// section counts as validated now.
func (s *Store) Upsert(key string, st models.WorktreeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now()
	_, err := s.db.Exec(`
		INSERT INTO worktrees (`+statusColumns+`,
			pr_updated_at, checks_updated_at, changes_updated_at, pullpush_validated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			path=excluded.path, branch=excluded.branch,
			last_commit_ts=excluded.last_commit_ts,
			upstream=excluded.upstream, ahead=excluded.ahead, behind=excluded.behind,
			pr_number=excluded.pr_number, pr_title=excluded.pr_title,
			pr_state=excluded.pr_state, pr_url=excluded.pr_url, pr_base=excluded.pr_base,
			changes_added=excluded.changes_added, changes_deleted=excluded.changes_deleted,
			changes_target=excluded.changes_target, dirty=excluded.dirty,
			checks_passed=excluded.checks_passed, checks_total=excluded.checks_total,
			checks_state=excluded.checks_state,
			pr_updated_at=excluded.pr_updated_at,
			checks_updated_at=excluded.checks_updated_at,
			changes_updated_at=excluded.changes_updated_at,
			pullpush_validated_at=excluded.pullpush_validated_at`,
		key, st.Path, st.Branch, st.LastCommitTS, st.Upstream, st.Ahead, st.Behind,
		st.PRNumber, st.PRTitle, st.PRState, st.PRURL, st.PRBase,
		st.ChangesAdded, st.ChangesDeleted, st.ChangesTarget, boolToInt(st.Dirty),
		st.ChecksPassed, st.ChecksTotal, st.ChecksState,
		ts, ts, ts, ts)
	return err
}

// UpsertPullPush updates the local-tracking section of a row and stamps
// its validation time.
func (s *Store) UpsertPullPush(key string, lastCommitTS int64, upstream *string, ahead, behind *int, dirty *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		UPDATE worktrees SET last_commit_ts=?, upstream=?, ahead=?, behind=?, dirty=?,
			pullpush_validated_at=?
		WHERE key=?`,
		lastCommitTS, upstream, ahead, behind, boolToInt(dirty), now(), key)
	return err
}

// UpsertChanges updates the diff-versus-target section of a row and
// stamps its validation time.
func (s *Store) UpsertChanges(key string, added, deleted *int, target *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		UPDATE worktrees SET changes_added=?, changes_deleted=?, changes_target=?,
			changes_updated_at=?
		WHERE key=?`,
		added, deleted, target, now(), key)
	return err
}

// UpsertPRAndChecks updates the forge-derived section of a row and
// stamps both the PR and checks validation times.
func (s *Store) UpsertPRAndChecks(key string, st models.WorktreeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now()
	_, err := s.db.Exec(`
		UPDATE worktrees SET
			pr_number=?, pr_title=?, pr_state=?, pr_url=?, pr_base=?,
			checks_passed=?, checks_total=?, checks_state=?,
			pr_updated_at=?, checks_updated_at=?
		WHERE key=?`,
		st.PRNumber, st.PRTitle, st.PRState, st.PRURL, st.PRBase,
		st.ChecksPassed, st.ChecksTotal, st.ChecksState, ts, ts, key)
	return err
}

// UpsertPath rewrites the path of a row, for worktree moves. Reports
// whether a row existed under the key.
func (s *Store) UpsertPath(key, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("UPDATE worktrees SET path=? WHERE key=?", path, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Rename moves a row to a new cache key, replacing any row already
// stored under the new key.
func (s *Store) Rename(oldKey, newKey, newBranch, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM worktrees WHERE key=?", newKey); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(
		"UPDATE worktrees SET key=?, branch=?, path=? WHERE key=?",
		newKey, newBranch, newPath, oldKey); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Delete removes a row.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM worktrees WHERE key=?", key)
	return err
}

// Prune drops every row whose key is not in keep.
func (s *Store) Prune(keep map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT key FROM worktrees")
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return err
		}
		if !keep[key] {
			stale = append(stale, key)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()
	for _, key := range stale {
		if _, err := s.db.Exec("DELETE FROM worktrees WHERE key=?", key); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b *bool) *int {
	if b == nil {
		return nil
	}
	v := 0
	if *b {
		v = 1
	}
	return models.Ptr(v)
}
