package workspace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/catalog"
	"github.com/AyalaKaguya/yoloflow/internal/project"
	"github.com/AyalaKaguya/yoloflow/internal/task"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestStoreTrackAndRecent(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "index.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	a, err := store.Track(ctx, Entry{Name: "alpha", Path: "/tmp/alpha", TaskType: task.Detection})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	time.Sleep(5 * time.Millisecond)
	_, err = store.Track(ctx, Entry{Name: "beta", Path: "/tmp/beta", TaskType: task.Classification})
	require.NoError(t, err)

	recent, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "beta", recent[0].Name)

	// Re-tracking the same path updates in place and bumps recency.
	time.Sleep(5 * time.Millisecond)
	again, err := store.Track(ctx, Entry{Name: "alpha renamed", Path: "/tmp/alpha", TaskType: task.Detection})
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	recent, err = store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "alpha renamed", recent[0].Name)
}

func TestStoreTouchAndRemove(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "index.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.ErrorIs(t, store.Touch(ctx, "/nope"), project.ErrNotFound)
	assert.ErrorIs(t, store.Remove(ctx, "/nope"), project.ErrNotFound)

	_, err = store.Track(ctx, Entry{Name: "p", Path: "/tmp/p", TaskType: task.Detection})
	require.NoError(t, err)
	require.NoError(t, store.Touch(ctx, "/tmp/p"))
	require.NoError(t, store.Remove(ctx, "/tmp/p"))

	_, err = store.GetByPath(ctx, "/tmp/p")
	assert.ErrorIs(t, err, project.ErrNotFound)
}

func TestWorkspaceCreateAndReopenProject(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)

	p, err := ws.CreateProject(ctx, "demo", task.Detection, "a demo")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(ws.Root(), ProjectsDir, "demo", "dataset"))

	// Creating the same project again collides on the directory.
	_, err = ws.CreateProject(ctx, "demo", task.Detection, "")
	assert.ErrorIs(t, err, project.ErrConflict)

	reopened, err := ws.OpenProject(ctx, p.Path())
	require.NoError(t, err)
	assert.Equal(t, "demo", reopened.Name())

	recent, err := ws.RecentProjects(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "demo", recent[0].Name)
	assert.Equal(t, task.Detection, recent[0].TaskType)
}

func TestRecentDropsStaleEntries(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)

	p, err := ws.CreateProject(ctx, "gone", task.Detection, "")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(p.Path()))

	recent, err := ws.RecentProjects(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)

	// The stale row is gone from the index too.
	_, err = ws.Store().GetByPath(ctx, p.Path())
	assert.ErrorIs(t, err, project.ErrNotFound)
}

func TestDeleteProject(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)

	p, err := ws.CreateProject(ctx, "doomed", task.Detection, "")
	require.NoError(t, err)

	require.NoError(t, ws.DeleteProject(ctx, p.Path(), true))
	assert.NoDirExists(t, p.Path())
}

func TestInitializeSeedsProject(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "img.jpg"), []byte("x"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("weights"))
	}))
	defer srv.Close()
	dl := &HTTPDownloader{Resolver: staticResolver{url: srv.URL}, Logger: zap.NewNop()}

	p, err := ws.Initialize(ctx, "seeded", task.Detection, "bootstrapped",
		[]DatasetSpec{{Source: src, Name: "coco", Type: task.Detection}},
		[]catalog.ModelInfo{{Name: "YOLO11n", Filename: "yolo11n.pt", Parameters: "2.6M", Tasks: []task.Type{task.Detection}}},
		dl)
	require.NoError(t, err)

	datasets := p.Datasets().List()
	require.Len(t, datasets, 1)
	assert.Equal(t, "coco", datasets[0].Name)
	assert.FileExists(t, filepath.Join(p.PretrainDir(), "yolo11n.pt"))
}

func TestInitializeRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)

	// Dataset source does not exist, so seeding fails after creation.
	_, err := ws.Initialize(ctx, "broken", task.Detection, "",
		[]DatasetSpec{{Source: filepath.Join(t.TempDir(), "nope"), Name: "bad", Type: task.Detection}},
		nil, nil)
	require.Error(t, err)

	assert.NoDirExists(t, filepath.Join(ws.Root(), ProjectsDir, "broken"))
	recent, err := ws.RecentProjects(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

type staticResolver struct{ url string }

func (s staticResolver) DownloadURL(catalog.ModelInfo) (string, error) { return s.url, nil }

func TestHTTPDownloaderFetchModel(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)
	p, err := ws.CreateProject(ctx, "dl", task.Detection, "")
	require.NoError(t, err)

	payload := []byte("fake-weights")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	d := &HTTPDownloader{Resolver: staticResolver{url: srv.URL}, Logger: zap.NewNop()}
	entry, err := d.FetchModel(ctx, p, catalog.ModelInfo{
		Name:       "YOLO11n",
		Filename:   "yolo11n.pt",
		Parameters: "2.6M",
		Tasks:      []task.Type{task.Detection},
	})
	require.NoError(t, err)
	assert.Equal(t, "yolo11n.pt", entry.Filename)
	assert.EqualValues(t, 2_600_000, entry.Parameters)
	assert.Equal(t, task.SourceImported, entry.Source)

	data, err := os.ReadFile(filepath.Join(p.PretrainDir(), "yolo11n.pt"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestHTTPDownloaderBadStatus(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)
	p, err := ws.CreateProject(ctx, "dl2", task.Detection, "")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := &HTTPDownloader{Resolver: staticResolver{url: srv.URL}}
	_, err = d.FetchModel(ctx, p, catalog.ModelInfo{Filename: "missing.pt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestParameterCount(t *testing.T) {
	cases := map[string]int64{
		"2.6M":  2_600_000,
		"56.9M": 56_900_000,
		"1.5k":  1_500,
		"7B":    7_000_000_000,
		"123":   123,
		"":      0,
		"junk":  0,
	}
	for in, want := range cases {
		assert.Equal(t, want, parameterCount(in), in)
	}
}
