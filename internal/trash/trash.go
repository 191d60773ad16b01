// Package trash implements retention-based deletion: discarded files are
// moved into a dated trash directory instead of unlinked, and purged only
// after their retention window expires (or on demand).
package trash

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrNotTrashed is returned when the item is not in 'trashed' state (not
// found, already purged, or already restored).
var ErrNotTrashed = errors.New("trash item not found or already purged/restored")

// ErrRestoreConflict is returned when the restore target path is already occupied.
type ErrRestoreConflict struct {
	Path string
}

func (e *ErrRestoreConflict) Error() string {
	return fmt.Sprintf("a file already exists at %q", e.Path)
}

// Manager handles moving files to/from/purging the trash directory.
type Manager struct {
	db            *sql.DB
	trashDir      string
	retentionDays int
}

// New creates a trash Manager.
func New(db *sql.DB, trashDir string, retentionDays int) *Manager {
	if retentionDays < 1 {
		retentionDays = 30
	}
	return &Manager{db: db, trashDir: trashDir, retentionDays: retentionDays}
}

// Discard moves the file at path into the trash and records it.
// This is the Deleter used by the result lifecycle.
func (m *Manager) Discard(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}
	fileSize := info.Size()

	trashPath := m.buildTrashPath(path)
	if err := os.MkdirAll(filepath.Dir(trashPath), 0o755); err != nil {
		return fmt.Errorf("create trash subdir: %w", err)
	}
	if err := moveFile(path, trashPath); err != nil {
		return fmt.Errorf("move to trash: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(m.retentionDays) * 24 * time.Hour)
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO trash (original_path, trash_path, file_size, trashed_at, expires_at, status)
		VALUES (?, ?, ?, ?, ?, 'trashed')`,
		path, trashPath, fileSize, now.Unix(), expiresAt.Unix())
	if err != nil {
		// Best-effort rollback.
		if rerr := moveFile(trashPath, path); rerr != nil {
			slog.Error("rollback move-to-trash failed", "path", path, "error", rerr)
		}
		return fmt.Errorf("insert trash record: %w", err)
	}

	slog.Info("file trashed", "path", path, "expires_at", expiresAt.Format(time.RFC3339))
	return nil
}

// Restore moves a trashed file back to its original path.
func (m *Manager) Restore(ctx context.Context, trashID int64) error {
	var originalPath, trashPath string
	err := m.db.QueryRowContext(ctx,
		`SELECT original_path, trash_path FROM trash WHERE id = ? AND status = 'trashed'`,
		trashID,
	).Scan(&originalPath, &trashPath)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotTrashed
	}
	if err != nil {
		return fmt.Errorf("lookup trash item %d: %w", trashID, err)
	}

	if _, err := os.Stat(originalPath); err == nil {
		return &ErrRestoreConflict{Path: originalPath}
	}
	if err := os.MkdirAll(filepath.Dir(originalPath), 0o755); err != nil {
		return fmt.Errorf("recreate restore dir: %w", err)
	}
	if err := moveFile(trashPath, originalPath); err != nil {
		return fmt.Errorf("restore file: %w", err)
	}

	if _, err := m.db.ExecContext(ctx,
		`UPDATE trash SET status='restored', restored_at=? WHERE id=?`,
		time.Now().Unix(), trashID,
	); err != nil {
		slog.Error("update trash status after restore", "trash_id", trashID, "error", err)
	}

	slog.Info("file restored", "path", originalPath, "trash_id", trashID)
	return nil
}

// PurgeAll immediately purges all active trash items.
func (m *Manager) PurgeAll(ctx context.Context) (count int64, bytesFreed int64, err error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, trash_path, file_size FROM trash WHERE status = 'trashed'`)
	if err != nil {
		return 0, 0, fmt.Errorf("query trash: %w", err)
	}
	return m.purgeRows(ctx, rows)
}

// AutoPurge purges all trash items whose expires_at is in the past.
// Intended to be called by the scheduler.
func (m *Manager) AutoPurge(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, trash_path, file_size FROM trash WHERE status = 'trashed' AND expires_at < ?`,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("query expired trash: %w", err)
	}
	count, bytes, err := m.purgeRows(ctx, rows)
	if err != nil {
		return err
	}
	if count > 0 {
		slog.Info("auto-purge complete", "files_purged", count, "bytes_freed", bytes)
	}
	return nil
}

// ── private helpers ──────────────────────────────────────────────────────────

// buildTrashPath returns a unique path inside trashDir for the given original
// file. Format: trashDir/YYYY-MM-DD/<unix_nano>_<basename>
func (m *Manager) buildTrashPath(originalPath string) string {
	now := time.Now()
	dateDir := now.Format("2006-01-02")
	filename := fmt.Sprintf("%d_%s", now.UnixNano(), filepath.Base(originalPath))
	return filepath.Join(m.trashDir, dateDir, filename)
}

type purgeItem struct {
	id        int64
	trashPath string
	fileSize  int64
}

func (m *Manager) purgeRows(ctx context.Context, rows *sql.Rows) (count int64, bytesFreed int64, err error) {
	defer rows.Close()

	var items []purgeItem
	for rows.Next() {
		var it purgeItem
		if err := rows.Scan(&it.id, &it.trashPath, &it.fileSize); err != nil {
			return count, bytesFreed, fmt.Errorf("scan trash row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return count, bytesFreed, err
	}

	now := time.Now().Unix()
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}

		// Remove from disk; treat "already gone" as success.
		if rerr := os.Remove(it.trashPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			slog.Warn("purge: remove file failed", "path", it.trashPath, "error", rerr)
			continue // leave the row in 'trashed' to retry later
		}

		if _, dbErr := m.db.ExecContext(ctx,
			`UPDATE trash SET status='purged', purged_at=? WHERE id=?`,
			now, it.id,
		); dbErr != nil {
			slog.Error("purge: update trash status", "trash_id", it.id, "error", dbErr)
		}

		count++
		bytesFreed += it.fileSize
	}

	return count, bytesFreed, nil
}

// moveFile tries os.Rename first; falls back to copy+delete on cross-device errors.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if le, ok := err.(*os.LinkError); ok && errors.Is(le.Err, syscall.EXDEV) {
		return copyThenDelete(src, dst)
	} else {
		return err
	}
}

// copyThenDelete copies src to dst then removes src. dst is cleaned up on error.
func copyThenDelete(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}
