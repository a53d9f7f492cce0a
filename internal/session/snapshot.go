package session

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SnapshotStore persists sessions so they survive a restart.
type SnapshotStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
}

var (
	_ SnapshotStore = (*FileSnapshotStore)(nil)
	_ SnapshotStore = (*SQLiteSnapshotStore)(nil)
)

const (
	snapshotExt = ".json"
	// maxPlainIDLen keeps hex-encoded names well under the 255-byte file name limit.
	maxPlainIDLen = 64
)

// FileSnapshotStore keeps one JSON file per session in a directory.
type FileSnapshotStore struct {
	dir string
}

// NewFileSnapshotStore creates the directory if needed.
func NewFileSnapshotStore(dir string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSnapshotStore{dir: dir}, nil
}

// path maps a session id to its file. Short ids are hex encoded; longer ids are hashed.
func (f *FileSnapshotStore) path(id string) string {
	name := hex.EncodeToString([]byte(id))
	if len(id) > maxPlainIDLen {
		sum := sha256.Sum256([]byte(id))
		name = "sha256-" + hex.EncodeToString(sum[:])
	}
	return filepath.Join(f.dir, name+snapshotExt)
}

// Save writes the snapshot to a temp file and renames it into place.
func (f *FileSnapshotStore) Save(_ context.Context, s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, f.path(s.ID)); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// Load reads one snapshot.
func (f *FileSnapshotStore) Load(_ context.Context, id string) (*Session, error) {
	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Delete removes a snapshot; a missing file is not an error.
func (f *FileSnapshotStore) Delete(_ context.Context, id string) error {
	if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List decodes every snapshot in the directory, skipping unreadable files.
func (f *FileSnapshotStore) List(_ context.Context) ([]*Session, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var out []*Session
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			slog.Warn("Skipping unreadable session snapshot", "file", name, "error", err)
			continue
		}
		s, err := decodeSnapshot(data)
		if err != nil {
			slog.Warn("Skipping corrupt session snapshot", "file", name, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeSnapshot(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	s.ensureMaps()
	return &s, nil
}

// SQLiteSnapshotStore keeps snapshots in the session_snapshots table.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// NewSQLiteSnapshotStore uses a database already migrated by the storage package.
func NewSQLiteSnapshotStore(db *sql.DB) *SQLiteSnapshotStore {
	return &SQLiteSnapshotStore{db: db}
}

// Save upserts the snapshot blob.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_snapshots (session_id, state, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, sess.ID, string(sess.State), data, sess.LastActivity.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save session snapshot: %w", err)
	}

	slog.Debug("Saved session snapshot", "session_id", sess.ID, "state", sess.State)
	return nil
}

// Load reads one snapshot.
func (s *SQLiteSnapshotStore) Load(ctx context.Context, id string) (*Session, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM session_snapshots WHERE session_id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Delete removes a snapshot.
func (s *SQLiteSnapshotStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session snapshot: %w", err)
	}
	return nil
}

// List returns every stored snapshot.
func (s *SQLiteSnapshotStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, data FROM session_snapshots ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list session snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Session
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan session snapshot: %w", err)
		}
		sess, err := decodeSnapshot(data)
		if err != nil {
			slog.Warn("Skipping corrupt session snapshot", "session_id", id, "error", err)
			continue
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
