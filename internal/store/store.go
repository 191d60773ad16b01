// Package store persists scan results, the unreadable-file cache, the
// hidden-group and denial registries, and misc settings in SQLite.
//
// There is exactly one durable result snapshot. A successful scan replaces
// it wholesale; the result lifecycle patches it in place after deletions.
// Concurrent writers are not supported — the single-active-scan invariant
// serializes access.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/twinscan/twinscan/internal/catalog"
	"github.com/twinscan/twinscan/internal/finder"
	"github.com/twinscan/twinscan/internal/media"
)

// Settings keys.
const (
	SettingHasScanned      = "has_scanned"
	SettingSimilarityLevel = "similarity_level"
	SettingScopePaths      = "scope_paths"
)

// ScanResult is the single durable snapshot of a completed scan.
type ScanResult struct {
	Groups      []finder.Group
	Unscannable []string
	ScopeType   string
	Timestamp   time.Time
}

// UnreadableEntry memoizes a file that failed processing. It is valid only
// while path, mtime and size all still match the live file.
type UnreadableEntry struct {
	Path  string
	MTime int64
	Size  int64
}

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// New creates a Store over an opened, migrated database.
func New(db *sql.DB) *Store { return &Store{db: db} }

// ── scan result snapshot ────────────────────────────────────────────────────

// SaveResult replaces the durable snapshot wholesale in one transaction.
// Only the orchestrator calls this, and only on a successful run: a
// cancelled or failed scan never overwrites the previous good snapshot.
func (s *Store) SaveResult(ctx context.Context, res *ScanResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM result_files`,
		`DELETE FROM result_groups`,
		`DELETE FROM unscannable_files`,
		`DELETE FROM scan_results`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear previous snapshot: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scan_results (id, scope_type, created_at) VALUES (1, ?, ?)`,
		res.ScopeType, res.Timestamp.Unix(),
	); err != nil {
		return fmt.Errorf("insert scan result: %w", err)
	}

	if err := insertGroups(ctx, tx, res.Groups, res.Unscannable); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceGroups rewrites the groups and unscannable list of the existing
// snapshot while preserving its timestamp and scope type. Used after
// deletions: a deletion mutates an existing scan's results, it is not a
// new scan.
func (s *Store) ReplaceGroups(ctx context.Context, groups []finder.Group, unscannable []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_results`).Scan(&exists); err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	if exists == 0 {
		return errors.New("no snapshot to update")
	}

	for _, stmt := range []string{
		`DELETE FROM result_files`,
		`DELETE FROM result_groups`,
		`DELETE FROM unscannable_files`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear groups: %w", err)
		}
	}
	if err := insertGroups(ctx, tx, groups, unscannable); err != nil {
		return err
	}
	return tx.Commit()
}

func insertGroups(ctx context.Context, tx *sql.Tx, groups []finder.Group, unscannable []string) error {
	stmtGroup, err := tx.PrepareContext(ctx, `
		INSERT INTO result_groups (unique_id, composition_id, kind, position)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert group: %w", err)
	}
	defer stmtGroup.Close()

	stmtFile, err := tx.PrepareContext(ctx, `
		INSERT INTO result_files (group_id, path, size, mtime, kind, position)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert file: %w", err)
	}
	defer stmtFile.Close()

	for pos, g := range groups {
		res, err := stmtGroup.ExecContext(ctx, g.UniqueID, g.CompositionID, string(g.Kind), pos)
		if err != nil {
			return fmt.Errorf("insert group %s: %w", g.UniqueID, err)
		}
		groupID, _ := res.LastInsertId()
		for i, r := range g.Records {
			if _, err := stmtFile.ExecContext(ctx,
				groupID, r.ID, r.Size, r.ModTime.Unix(), string(r.Kind), i,
			); err != nil {
				return fmt.Errorf("insert file %s: %w", r.ID, err)
			}
		}
	}

	stmtUnscan, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO unscannable_files (path) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("prepare insert unscannable: %w", err)
	}
	defer stmtUnscan.Close()
	for _, p := range unscannable {
		if _, err := stmtUnscan.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("insert unscannable %s: %w", p, err)
		}
	}
	return nil
}

// LoadLatest returns the durable snapshot, or nil when none has been saved.
func (s *Store) LoadLatest(ctx context.Context) (*ScanResult, error) {
	var (
		scopeType string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT scope_type, created_at FROM scan_results WHERE id = 1`,
	).Scan(&scopeType, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scan result: %w", err)
	}

	res := &ScanResult{
		ScopeType: scopeType,
		Timestamp: time.Unix(createdAt, 0).UTC(),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.unique_id, g.composition_id, g.kind,
		       f.path, f.size, f.mtime, f.kind
		FROM result_groups g
		JOIN result_files f ON f.group_id = g.id
		ORDER BY g.position, f.position`)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	defer rows.Close()

	var (
		cur    *finder.Group
		curRow int64 = -1
	)
	for rows.Next() {
		var (
			rowID               int64
			uniqueID, compID    string
			groupKind, fileKind string
			path                string
			size, mtime         int64
		)
		if err := rows.Scan(&rowID, &uniqueID, &compID, &groupKind,
			&path, &size, &mtime, &fileKind); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if rowID != curRow {
			if cur != nil {
				res.Groups = append(res.Groups, *cur)
			}
			cur = &finder.Group{
				UniqueID:      uniqueID,
				CompositionID: compID,
				Kind:          finder.Kind(groupKind),
			}
			curRow = rowID
		}
		cur.Records = append(cur.Records, catalog.Record{
			ID:      path,
			Size:    size,
			ModTime: time.Unix(mtime, 0).UTC(),
			Kind:    media.Kind(fileKind),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		res.Groups = append(res.Groups, *cur)
	}

	unscanRows, err := s.db.QueryContext(ctx, `SELECT path FROM unscannable_files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("load unscannable: %w", err)
	}
	defer unscanRows.Close()
	for unscanRows.Next() {
		var p string
		if err := unscanRows.Scan(&p); err != nil {
			return nil, err
		}
		res.Unscannable = append(res.Unscannable, p)
	}
	return res, unscanRows.Err()
}

// HasValidCache reports whether a persisted snapshot exists.
func (s *Store) HasValidCache(ctx context.Context) bool {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_results`).Scan(&n); err != nil {
		return false
	}
	return n > 0
}

// ── unreadable-file cache ───────────────────────────────────────────────────

// UnreadableEntries loads the full unreadable cache keyed by path.
func (s *Store) UnreadableEntries(ctx context.Context) (map[string]UnreadableEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, mtime, size FROM unreadable_cache`)
	if err != nil {
		return nil, fmt.Errorf("load unreadable cache: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]UnreadableEntry)
	for rows.Next() {
		var e UnreadableEntry
		if err := rows.Scan(&e.Path, &e.MTime, &e.Size); err != nil {
			return nil, err
		}
		entries[e.Path] = e
	}
	return entries, rows.Err()
}

// PutUnreadable upserts cache entries for files that failed processing.
func (s *Store) PutUnreadable(ctx context.Context, entries []UnreadableEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO unreadable_cache (path, mtime, size) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare unreadable upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Path, e.MTime, e.Size); err != nil {
			return fmt.Errorf("upsert unreadable %s: %w", e.Path, err)
		}
	}
	return tx.Commit()
}

// ── hidden groups & denials ─────────────────────────────────────────────────

// HiddenGroupIDs returns the set of dismissed composition ids.
func (s *Store) HiddenGroupIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT composition_id FROM hidden_groups`)
	if err != nil {
		return nil, fmt.Errorf("load hidden groups: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// HideGroupID records a composition id as dismissed.
func (s *Store) HideGroupID(ctx context.Context, compositionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO hidden_groups (composition_id, hidden_at) VALUES (?, ?)`,
		compositionID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("hide group %s: %w", compositionID, err)
	}
	return nil
}

// DenialSet is an in-memory view of the pairwise denial registry.
type DenialSet struct {
	pairs map[[2]string]struct{}
}

// IsDenied reports whether the pairing (a, b) was marked "not a duplicate".
// Order-insensitive.
func (d *DenialSet) IsDenied(a, b string) bool {
	if d == nil {
		return false
	}
	if b < a {
		a, b = b, a
	}
	_, ok := d.pairs[[2]string{a, b}]
	return ok
}

// Denials loads the denial registry.
func (s *Store) Denials(ctx context.Context) (*DenialSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path_a, path_b FROM denials`)
	if err != nil {
		return nil, fmt.Errorf("load denials: %w", err)
	}
	defer rows.Close()

	d := &DenialSet{pairs: make(map[[2]string]struct{})}
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		d.pairs[[2]string{a, b}] = struct{}{}
	}
	return d, rows.Err()
}

// AddDenials records pairwise denials. Pairs are normalized so (a,b) and
// (b,a) are the same denial.
func (s *Store) AddDenials(ctx context.Context, pairs [][2]string) error {
	if len(pairs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO denials (path_a, path_b, denied_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare denial insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range pairs {
		a, b := p[0], p[1]
		if b < a {
			a, b = b, a
		}
		if _, err := stmt.ExecContext(ctx, a, b, now); err != nil {
			return fmt.Errorf("insert denial: %w", err)
		}
	}
	return tx.Commit()
}

// ── settings ────────────────────────────────────────────────────────────────

// Setting returns the value for key, or "" when unset.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load setting %q: %w", key, err)
	}
	return v, nil
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}
