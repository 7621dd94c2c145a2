package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/catalog"
	"github.com/AyalaKaguya/yoloflow/internal/project"
	"github.com/AyalaKaguya/yoloflow/internal/task"
)

const (
	// IndexFile is the SQLite index under the workspace root.
	IndexFile = "workspace.db"

	// ProjectsDir holds projects created through the workspace. Externally
	// created projects can still be opened and tracked from any path.
	ProjectsDir = "projects"
)

// Workspace ties the project index to a root directory and mediates
// project creation, opening, and recency tracking.
type Workspace struct {
	root   string
	store  *Store
	logger *zap.Logger
}

// Open prepares the workspace root (creating it and its projects
// directory when missing) and opens the index.
func Open(root string, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(root, ProjectsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root %s: %w", root, err)
	}
	store, err := OpenStore(filepath.Join(root, IndexFile), logger)
	if err != nil {
		return nil, err
	}
	return &Workspace{root: root, store: store, logger: logger}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// Store exposes the underlying index for direct queries.
func (w *Workspace) Store() *Store { return w.store }

// Close releases the index.
func (w *Workspace) Close() error { return w.store.Close() }

// CreateProject creates a new project under the workspace projects
// directory and tracks it in the index.
func (w *Workspace) CreateProject(ctx context.Context, name string, taskType task.Type, description string) (*project.Project, error) {
	path := filepath.Join(w.root, ProjectsDir, name)
	p, err := project.CreateNew(path, name, taskType, description, w.logger)
	if err != nil {
		return nil, err
	}
	if _, err := w.store.Track(ctx, Entry{
		Name:        name,
		Path:        path,
		TaskType:    taskType,
		Description: description,
	}); err != nil {
		return nil, err
	}
	w.logger.Info("project created",
		zap.String("name", name),
		zap.String("path", path),
		zap.String("task", string(taskType)))
	return p, nil
}

// OpenProject opens a project at an arbitrary path and records the visit
// in the index, tracking the project if it was unknown.
func (w *Workspace) OpenProject(ctx context.Context, path string) (*project.Project, error) {
	p, err := project.Open(path, w.logger)
	if err != nil {
		return nil, err
	}
	if _, err := w.store.Track(ctx, Entry{
		Name:        p.Name(),
		Path:        path,
		TaskType:    p.TaskType(),
		Description: p.Config().Description(),
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// DatasetSpec names a dataset to import while bootstrapping a project.
type DatasetSpec struct {
	Source      string
	Name        string
	Type        task.Type
	Description string
}

// Initialize creates a project and seeds it in one shot: datasets are
// imported first, then the chosen pretrained weights are fetched through
// the downloader. Any failure tears the half-built project down again so
// the workspace never tracks a partially seeded project.
func (w *Workspace) Initialize(ctx context.Context, name string, taskType task.Type, description string, datasets []DatasetSpec, models []catalog.ModelInfo, dl Downloader) (*project.Project, error) {
	p, err := w.CreateProject(ctx, name, taskType, description)
	if err != nil {
		return nil, err
	}
	seed := func() error {
		for _, ds := range datasets {
			if _, err := p.Datasets().Import(ds.Source, ds.Name, ds.Type, ds.Description); err != nil {
				return fmt.Errorf("import dataset %s: %w", ds.Name, err)
			}
		}
		for _, m := range models {
			if dl == nil {
				return fmt.Errorf("fetch model %s: no downloader", m.Filename)
			}
			if _, err := dl.FetchModel(ctx, p, m); err != nil {
				return fmt.Errorf("fetch model %s: %w", m.Filename, err)
			}
		}
		return nil
	}
	if err := seed(); err != nil {
		w.logger.Warn("project bootstrap failed, rolling back",
			zap.String("name", name), zap.Error(err))
		if rbErr := w.DeleteProject(ctx, p.Path(), true); rbErr != nil {
			w.logger.Error("bootstrap rollback failed",
				zap.String("path", p.Path()), zap.Error(rbErr))
		}
		return nil, err
	}
	return p, nil
}

// RecentProjects lists tracked projects, most recently opened first,
// dropping index entries whose directory no longer exists.
func (w *Workspace) RecentProjects(ctx context.Context, limit int) ([]Entry, error) {
	entries, err := w.store.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if _, statErr := os.Stat(e.Path); statErr != nil {
			w.logger.Warn("dropping stale project index entry",
				zap.String("path", e.Path))
			if err := w.store.Remove(ctx, e.Path); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Forget removes a project from the index without touching its files.
func (w *Workspace) Forget(ctx context.Context, path string) error {
	return w.store.Remove(ctx, path)
}

// DeleteProject removes a project from the index and, when deleteFiles is
// set, deletes its directory tree.
func (w *Workspace) DeleteProject(ctx context.Context, path string, deleteFiles bool) error {
	if err := w.store.Remove(ctx, path); err != nil {
		return err
	}
	if !deleteFiles {
		return nil
	}
	p, err := project.Open(path, w.logger)
	if err != nil {
		return err
	}
	return p.Delete(true)
}
