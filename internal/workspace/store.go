// Package workspace tracks the projects a user works with. A small SQLite
// database under the workspace root indexes project locations and recency,
// so the application can offer a recent-projects list without walking the
// filesystem.
package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/AyalaKaguya/yoloflow/internal/project"
	"github.com/AyalaKaguya/yoloflow/internal/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL,
	path           TEXT NOT NULL UNIQUE,
	task_type      TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	last_opened_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_last_opened ON projects(last_opened_at DESC);
`

// Entry is one tracked project in the workspace index.
type Entry struct {
	ID           int64
	Name         string
	Path         string
	TaskType     task.Type
	Description  string
	CreatedAt    time.Time
	LastOpenedAt time.Time
}

// Store is the SQLite-backed project index.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenStore opens the workspace index at path, creating the schema when
// absent.
func OpenStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open workspace index: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping workspace index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply workspace schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Track inserts or refreshes a project entry keyed by path. Tracking an
// already known path updates its metadata and bumps last_opened_at.
func (s *Store) Track(ctx context.Context, e Entry) (Entry, error) {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.LastOpenedAt = now

	res, err := s.db.ExecContext(ctx, `
INSERT INTO projects (name, path, task_type, description, created_at, last_opened_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	name = excluded.name,
	task_type = excluded.task_type,
	description = excluded.description,
	last_opened_at = excluded.last_opened_at
`, e.Name, e.Path, string(e.TaskType), e.Description, toMillis(e.CreatedAt), toMillis(e.LastOpenedAt))
	if err != nil {
		return Entry{}, fmt.Errorf("track project %s: %w", e.Path, err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		e.ID = id
	}
	if e.ID == 0 {
		existing, err := s.GetByPath(ctx, e.Path)
		if err != nil {
			return Entry{}, err
		}
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
	}
	return e, nil
}

// Touch bumps a tracked project's last_opened_at to now.
func (s *Store) Touch(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET last_opened_at = ? WHERE path = ?`,
		toMillis(time.Now()), path)
	if err != nil {
		return fmt.Errorf("touch project %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch project %s: %w", path, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: project at %s", project.ErrNotFound, path)
	}
	return nil
}

// GetByPath returns the tracked entry for a project path.
func (s *Store) GetByPath(ctx context.Context, path string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, path, task_type, description, created_at, last_opened_at
FROM projects WHERE path = ?`, path)
	return scanEntry(row)
}

// Recent lists tracked projects by most recently opened, up to limit; a
// non-positive limit returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
SELECT id, name, path, task_type, description, created_at, last_opened_at
FROM projects ORDER BY last_opened_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent projects: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Remove drops a project from the index. The project directory itself is
// untouched.
func (s *Store) Remove(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("remove project %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove project %s: %w", path, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: project at %s", project.ErrNotFound, path)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e            Entry
		taskType     string
		createdAt    int64
		lastOpenedAt int64
	)
	err := row.Scan(&e.ID, &e.Name, &e.Path, &taskType, &e.Description, &createdAt, &lastOpenedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: project", project.ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("scan project row: %w", err)
	}
	e.TaskType = task.Type(taskType)
	e.CreatedAt = fromMillis(createdAt)
	e.LastOpenedAt = fromMillis(lastOpenedAt)
	return e, nil
}
