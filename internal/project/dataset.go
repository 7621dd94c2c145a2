package project

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// DatasetRegistry reconciles dataset entries in the config against
// subdirectories of the project's dataset/ folder and handles imports from
// folders and zip archives.
type DatasetRegistry struct {
	root   string // project root
	dir    string // dataset directory
	config *ConfigStore
	logger *zap.Logger

	// copyTree is the folder-copy implementation, swappable in tests to
	// simulate I/O failures mid-import.
	copyTree func(src, dst string) error
}

// NewDatasetRegistry creates a registry over the project's dataset folder.
func NewDatasetRegistry(root string, config *ConfigStore, logger *zap.Logger) *DatasetRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetRegistry{
		root:     root,
		dir:      filepath.Join(root, "dataset"),
		config:   config,
		logger:   logger,
		copyTree: copyTree,
	}
}

// List returns all dataset entries.
func (r *DatasetRegistry) List() []DatasetEntry {
	return r.config.Datasets()
}

// Get returns the dataset entry with the given name.
func (r *DatasetRegistry) Get(name string) (DatasetEntry, error) {
	e, ok := r.config.Dataset(name)
	if !ok {
		return DatasetEntry{}, fmt.Errorf("%w: dataset %q", ErrNotFound, name)
	}
	return e, nil
}

// Path returns the absolute directory of a dataset.
func (r *DatasetRegistry) Path(name string) (string, error) {
	e, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.root, filepath.FromSlash(e.Path)), nil
}

// Add registers a dataset entry without touching the filesystem. The name
// must be unique; an invalid dataset type defaults to the project task type.
func (r *DatasetRegistry) Add(name string, datasetType task.Type, description string) (DatasetEntry, error) {
	if name == "" {
		return DatasetEntry{}, fmt.Errorf("%w: dataset name is empty", ErrInvalidSource)
	}
	if _, ok := r.config.Dataset(name); ok {
		return DatasetEntry{}, fmt.Errorf("%w: dataset %q", ErrConflict, name)
	}
	if !datasetType.Valid() {
		datasetType = r.config.TaskType()
	}

	entry := DatasetEntry{
		Name:        name,
		Path:        "dataset/" + name,
		Type:        datasetType,
		Description: description,
	}
	r.config.AddDataset(entry)
	if err := r.config.Save(); err != nil {
		return DatasetEntry{}, err
	}
	return entry, nil
}

// Remove deletes the dataset entry and, when deleteFiles is set, its
// directory tree.
func (r *DatasetRegistry) Remove(name string, deleteFiles bool) error {
	entry, ok := r.config.Dataset(name)
	if !ok {
		return fmt.Errorf("%w: dataset %q", ErrNotFound, name)
	}

	r.config.RemoveDataset(name)
	if deleteFiles {
		target := filepath.Join(r.root, filepath.FromSlash(entry.Path))
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("%w: delete dataset files: %v", ErrIO, err)
		}
	}
	return r.config.Save()
}

// Update changes a dataset's name, type, or description. Empty newName and
// description leave the field untouched; an invalid datasetType leaves the
// type untouched. Renames move the entry but not the files: the relative
// path keeps following the entry name, so the directory is renamed too.
func (r *DatasetRegistry) Update(name, newName string, datasetType task.Type, description *string) error {
	entry, ok := r.config.Dataset(name)
	if !ok {
		return fmt.Errorf("%w: dataset %q", ErrNotFound, name)
	}

	renamed := newName != "" && newName != name
	if renamed {
		if _, ok := r.config.Dataset(newName); ok {
			return fmt.Errorf("%w: dataset %q", ErrConflict, newName)
		}
	}

	updated := entry
	if renamed {
		updated.Name = newName
		updated.Path = "dataset/" + newName
	}
	if datasetType.Valid() {
		updated.Type = datasetType
	}
	if description != nil {
		updated.Description = *description
	}

	if renamed {
		oldDir := filepath.Join(r.root, filepath.FromSlash(entry.Path))
		newDir := filepath.Join(r.root, filepath.FromSlash(updated.Path))
		if _, err := os.Stat(oldDir); err == nil {
			if err := os.Rename(oldDir, newDir); err != nil {
				return fmt.Errorf("%w: rename dataset directory: %v", ErrIO, err)
			}
		}
	}

	r.config.ReplaceDataset(name, updated)
	return r.config.Save()
}

// ImportFromFolder copies a source directory into dataset/<name>. The entry
// is registered first to reserve the name; a copy failure rolls the entry
// back so config and filesystem never disagree about a half-imported
// dataset.
func (r *DatasetRegistry) ImportFromFolder(src, name string, datasetType task.Type, description string) (DatasetEntry, error) {
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return DatasetEntry{}, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, src)
	}

	entry, err := r.Add(name, datasetType, description)
	if err != nil {
		return DatasetEntry{}, err
	}

	target := filepath.Join(r.root, filepath.FromSlash(entry.Path))
	if err := r.copyTree(src, target); err != nil {
		os.RemoveAll(target)
		if rbErr := r.Remove(name, false); rbErr != nil {
			r.logger.Warn("dataset import rollback failed",
				zap.String("dataset", name), zap.Error(rbErr))
		}
		return DatasetEntry{}, fmt.Errorf("%w: copy dataset folder: %v", ErrIO, err)
	}

	r.logger.Info("dataset imported",
		zap.String("dataset", name), zap.String("source", src))
	return entry, nil
}

// ImportFromArchive extracts a zip archive into dataset/<name>. On any
// extraction failure the entry and all partially extracted files are
// removed.
func (r *DatasetRegistry) ImportFromArchive(src, name string, datasetType task.Type, description string) (DatasetEntry, error) {
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return DatasetEntry{}, fmt.Errorf("%w: %s is not an archive file", ErrInvalidSource, src)
	}

	entry, err := r.Add(name, datasetType, description)
	if err != nil {
		return DatasetEntry{}, err
	}

	target := filepath.Join(r.root, filepath.FromSlash(entry.Path))
	if err := extractZip(src, target); err != nil {
		if rbErr := r.Remove(name, true); rbErr != nil {
			r.logger.Warn("dataset import rollback failed",
				zap.String("dataset", name), zap.Error(rbErr))
		}
		return DatasetEntry{}, err
	}

	r.logger.Info("dataset imported",
		zap.String("dataset", name), zap.String("archive", src))
	return entry, nil
}

// Import dispatches on the source type: a directory goes through
// ImportFromFolder, a .zip file through ImportFromArchive. Anything else is
// an ErrInvalidSource, not a fallback.
func (r *DatasetRegistry) Import(src, name string, datasetType task.Type, description string) (DatasetEntry, error) {
	info, err := os.Stat(src)
	if err != nil {
		return DatasetEntry{}, fmt.Errorf("%w: %s", ErrInvalidSource, src)
	}
	switch {
	case info.IsDir():
		return r.ImportFromFolder(src, name, datasetType, description)
	case strings.EqualFold(filepath.Ext(src), ".zip"):
		return r.ImportFromArchive(src, name, datasetType, description)
	default:
		return DatasetEntry{}, fmt.Errorf("%w: unsupported source type %s", ErrInvalidSource, src)
	}
}

// Files walks a dataset directory and returns every file path inside it.
func (r *DatasetRegistry) Files(name string) ([]string, error) {
	dir, err := r.Path(name)
	if err != nil {
		return nil, err
	}
	var files []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: walk dataset: %v", ErrIO, err)
	}
	return files, nil
}

// copyTree recursively copies a directory. Symlinks are skipped.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// extractZip unpacks an archive into dst, rejecting empty archives and
// entries that escape the destination directory.
func extractZip(src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: open archive %s: %v", ErrInvalidSource, src, err)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return fmt.Errorf("%w: archive %s is empty", ErrInvalidSource, src)
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	for _, f := range zr.File {
		target := filepath.Join(dst, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
			return fmt.Errorf("%w: archive entry %q escapes destination", ErrInvalidSource, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
			continue
		}
		if err := extractZipFile(f, target); err != nil {
			return fmt.Errorf("%w: extract %s: %v", ErrIO, f.Name, err)
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
