package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

func newTestModels(t *testing.T) (*ModelRegistry, *ConfigStore, string) {
	t.Helper()
	root := t.TempDir()
	for _, dir := range RequiredDirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	cfg := NewConfigStore(filepath.Join(root, ConfigFile))
	require.NoError(t, cfg.Load())
	return NewModelRegistry(root, cfg, zap.NewNop()), cfg, root
}

func weightFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

func TestAddPretrained(t *testing.T) {
	r, _, root := newTestModels(t)

	e, err := r.AddPretrained(weightFixture(t, "yolo11n.pt"), "")
	require.NoError(t, err)
	assert.Equal(t, "yolo11n.pt", e.Filename)
	assert.Equal(t, "Yolo11n", e.Name)
	assert.Equal(t, task.SourceImported, e.Source)
	assert.FileExists(t, filepath.Join(root, "pretrain", "yolo11n.pt"))

	// A rename without extension gets .pt appended.
	e, err = r.AddPretrained(weightFixture(t, "other.pt"), "custom")
	require.NoError(t, err)
	assert.Equal(t, "custom.pt", e.Filename)
}

func TestAddPretrainedConflicts(t *testing.T) {
	r, _, _ := newTestModels(t)

	_, err := r.AddPretrained(weightFixture(t, "w.pt"), "")
	require.NoError(t, err)
	_, err = r.AddPretrained(weightFixture(t, "w.pt"), "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = r.AddPretrained(filepath.Join(t.TempDir(), "absent.pt"), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddTrained(t *testing.T) {
	r, _, root := newTestModels(t)

	e, err := r.AddTrained(weightFixture(t, "best.pt"), "run1-best", "baseline")
	require.NoError(t, err)
	assert.Equal(t, "run1-best.pt", e.Filename)
	assert.Equal(t, task.SourcePlanCreated, e.Source)
	assert.Contains(t, e.Description, "baseline")
	assert.FileExists(t, filepath.Join(root, "model", "run1-best.pt"))

	trained, err := r.TrainedFilenames()
	require.NoError(t, err)
	assert.Equal(t, []string{"run1-best.pt"}, trained)

	pretrained, err := r.PretrainedFilenames()
	require.NoError(t, err)
	assert.Empty(t, pretrained)
}

func TestListHealsUndeclaredFile(t *testing.T) {
	r, cfg, root := newTestModels(t)

	// A file dropped into pretrain/ behind the registry's back.
	require.NoError(t, os.WriteFile(filepath.Join(root, "pretrain", "extra.pt"), []byte("w"), 0o644))

	entries, err := r.PretrainedModels()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "extra.pt", entries[0].Filename)
	assert.Equal(t, "Extra", entries[0].Name)
	assert.Equal(t, task.SourceImported, entries[0].Source)

	// The synthesized entry is persisted, so a fresh config sees it too.
	cfg2 := NewConfigStore(cfg.Path())
	require.NoError(t, cfg2.Load())
	_, ok := cfg2.Model("extra.pt")
	assert.True(t, ok)
}

func TestListDropsStaleEntry(t *testing.T) {
	r, cfg, root := newTestModels(t)

	_, err := r.AddPretrained(weightFixture(t, "gone.pt"), "")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "pretrain", "gone.pt")))

	entries, err := r.PretrainedModels()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, ok := cfg.Model("gone.pt")
	assert.False(t, ok)
}

func TestListIsIdempotent(t *testing.T) {
	r, cfg, root := newTestModels(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "pretrain", "a.pt"), []byte("w"), 0o644))

	_, err := r.PretrainedModels()
	require.NoError(t, err)
	require.NoError(t, cfg.Save())

	// Second listing with no disk change must not rewrite the config.
	before, err := os.Stat(cfg.Path())
	require.NoError(t, err)
	_, err = r.PretrainedModels()
	require.NoError(t, err)
	after, err := os.Stat(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.False(t, cfg.Dirty())
}

func TestListIgnoresNonWeightFiles(t *testing.T) {
	r, _, root := newTestModels(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "pretrain", "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pretrain", "subdir"), 0o755))

	entries, err := r.PretrainedModels()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFilenameUniqueAcrossBuckets(t *testing.T) {
	r, cfg, root := newTestModels(t)

	_, err := r.AddPretrained(weightFixture(t, "w.pt"), "")
	require.NoError(t, err)

	// The trained bucket cannot reuse the filename.
	_, err = r.AddTrained(weightFixture(t, "w.pt"), "", "plan-x")
	assert.ErrorIs(t, err, ErrConflict)

	// A file dropped into model/ that shadows the pretrained entry stays
	// unregistered; the pretrained record is not stolen.
	require.NoError(t, os.WriteFile(filepath.Join(root, "model", "w.pt"), []byte("b"), 0o644))
	trained, err := r.TrainedModels()
	require.NoError(t, err)
	assert.Empty(t, trained)

	e, ok := cfg.Model("w.pt")
	require.True(t, ok)
	assert.Equal(t, task.SourceImported, e.Source)
}

func TestRemoveModel(t *testing.T) {
	r, _, root := newTestModels(t)

	_, err := r.AddPretrained(weightFixture(t, "w.pt"), "")
	require.NoError(t, err)

	require.NoError(t, r.Remove("w.pt"))
	assert.NoFileExists(t, filepath.Join(root, "pretrain", "w.pt"))
	_, err = r.Get("w.pt")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, r.Remove("w.pt"), ErrNotFound)
}

func TestPathOf(t *testing.T) {
	r, _, root := newTestModels(t)

	_, err := r.AddPretrained(weightFixture(t, "w.pt"), "")
	require.NoError(t, err)

	path, err := r.PathOf("w.pt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pretrain", "w.pt"), path)

	// A recorded entry whose file vanished is reported missing.
	require.NoError(t, os.Remove(path))
	_, err = r.PathOf("w.pt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHumanizeFilename(t *testing.T) {
	cases := map[string]string{
		"yolo11n_seg.pt": "Yolo11n Seg",
		"yolo11n.pt":     "Yolo11n",
		"my_cool_run.pt": "My Cool Run",
	}
	for in, want := range cases {
		if got := humanizeFilename(in); got != want {
			t.Errorf("humanizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
