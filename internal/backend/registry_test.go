package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/catalog"
	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// fakeBackend is a configurable in-memory implementation.
type fakeBackend struct {
	name        string
	available   bool
	reason      UnavailableReason
	tasks       []task.Type
	models      []catalog.ModelInfo
	preErr      error
	postErr     error
	preCalls    atomic.Int32
	postCalls   atomic.Int32
	downloadURL string
}

func (f *fakeBackend) Name() string        { return f.name }
func (f *fakeBackend) Version() string     { return "1.2.3" }
func (f *fakeBackend) VersionCode() int    { return 10203 }
func (f *fakeBackend) Author() string      { return "tester" }
func (f *fakeBackend) Description() string { return "fake backend" }
func (f *fakeBackend) LinkedPage() string  { return "https://example.com" }
func (f *fakeBackend) Available(string) (bool, UnavailableReason) {
	return f.available, f.reason
}
func (f *fakeBackend) Executable() string  { return "main.py" }
func (f *fakeBackend) ExtraArgs() []string { return nil }
func (f *fakeBackend) Tasks() []task.Type  { return f.tasks }

func (f *fakeBackend) Models() []catalog.ModelInfo { return f.models }
func (f *fakeBackend) DownloadURL(catalog.ModelInfo) string {
	return f.downloadURL
}
func (f *fakeBackend) PreInstall(string) error {
	f.preCalls.Add(1)
	return f.preErr
}
func (f *fakeBackend) PostInstall(string) error {
	f.postCalls.Add(1)
	return f.postErr
}

// fakeEnv records calls and optionally fails or blocks.
type fakeEnv struct {
	createErr error
	syncErr   error
	block     chan struct{} // when set, SyncDeps waits for ctx or close
	creates   atomic.Int32
	syncs     atomic.Int32
}

func (f *fakeEnv) CreateEnv(ctx context.Context, dir string) error {
	f.creates.Add(1)
	return f.createErr
}

func (f *fakeEnv) SyncDeps(ctx context.Context, dir string) error {
	f.syncs.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.syncErr
}

var factorySeq atomic.Int32

// newTestBackend registers a factory under a unique name and lays down a
// matching module directory under root.
func newTestBackend(t *testing.T, root string, mutate func(*fakeBackend)) *fakeBackend {
	t.Helper()
	name := fmt.Sprintf("fake-%d", factorySeq.Add(1))
	fb := &fakeBackend{
		name:      name,
		available: true,
		tasks:     []task.Type{task.Detection},
	}
	if mutate != nil {
		mutate(fb)
	}
	Register(name, func() Backend { return fb })

	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := fmt.Sprintf("name = %q\n", name)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644))
	return fb
}

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	reg, err := NewRegistry(root, "1.0.0", zap.NewNop())
	require.NoError(t, err)
	return reg, root
}

func TestScanFindsManifestDirs(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, nil)

	// Noise: a plain file and a dir without a manifest.
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	cands, err := reg.Scan()
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, fb.name, cands[0].Name)
}

func TestLoadBindsFactoryAndPersistsDescriptor(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, nil)

	require.NoError(t, reg.Load(fb.name))
	// Idempotent.
	require.NoError(t, reg.Load(fb.name))
	assert.Equal(t, []string{fb.name}, reg.Loaded())

	desc, err := reg.Describe(fb.name)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", desc.Version)
	assert.False(t, desc.Installed)

	// The sidecar is persisted next to the module directory.
	onDisk, err := loadDescriptor(descriptorPath(root, fb.name))
	require.NoError(t, err)
	require.NotNil(t, onDisk)
	assert.Equal(t, fb.name, onDisk.Name)
}

func TestLoadWithoutFactory(t *testing.T) {
	reg, root := newTestRegistry(t)

	dir := filepath.Join(root, "orphan")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte("name = \"orphan\"\n"), 0o644))

	err := reg.Load("orphan")
	assert.ErrorIs(t, err, ErrNoFactory)
}

func TestInstallPipeline(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, nil)
	require.NoError(t, reg.Load(fb.name))

	env := &fakeEnv{}
	job, err := reg.Install(context.Background(), fb.name, env)
	require.NoError(t, err)
	require.NoError(t, job.Wait(context.Background()))

	assert.EqualValues(t, 1, env.creates.Load())
	assert.EqualValues(t, 1, env.syncs.Load())
	assert.EqualValues(t, 1, fb.preCalls.Load())
	assert.EqualValues(t, 1, fb.postCalls.Load())

	desc, err := reg.Describe(fb.name)
	require.NoError(t, err)
	assert.True(t, desc.Installed)
	assert.False(t, desc.InstalledAt.IsZero())

	// Install survives a reload of the registry.
	reg2, err := NewRegistry(root, "1.0.0", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, reg2.Load(fb.name))
	desc2, err := reg2.Describe(fb.name)
	require.NoError(t, err)
	assert.True(t, desc2.Installed)
}

func TestInstallFailureKeepsUninstalled(t *testing.T) {
	reg, root := newTestRegistry(t)
	boom := errors.New("pip exploded")
	fb := newTestBackend(t, root, nil)
	require.NoError(t, reg.Load(fb.name))

	env := &fakeEnv{syncErr: boom}
	job, err := reg.Install(context.Background(), fb.name, env)
	require.NoError(t, err)
	err = job.Wait(context.Background())
	require.ErrorIs(t, err, boom)

	// PostInstall never ran and the descriptor stayed clean.
	assert.EqualValues(t, 0, fb.postCalls.Load())
	desc, err := reg.Describe(fb.name)
	require.NoError(t, err)
	assert.False(t, desc.Installed)
}

func TestInstallCancellation(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, nil)
	require.NoError(t, reg.Load(fb.name))

	env := &fakeEnv{block: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	job, err := reg.Install(ctx, fb.name, env)
	require.NoError(t, err)

	cancel()
	err = job.Wait(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestInstallRejectsConcurrentJob(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, nil)
	require.NoError(t, reg.Load(fb.name))

	env := &fakeEnv{block: make(chan struct{})}
	job, err := reg.Install(context.Background(), fb.name, env)
	require.NoError(t, err)

	_, err = reg.Install(context.Background(), fb.name, &fakeEnv{})
	assert.ErrorIs(t, err, ErrInstallRunning)

	close(env.block)
	require.NoError(t, job.Wait(context.Background()))

	// After completion a fresh install may start again.
	_, err = reg.Install(context.Background(), fb.name, &fakeEnv{})
	require.NoError(t, err)
}

func TestInstallUnavailableBackend(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, func(f *fakeBackend) {
		f.available = false
		f.reason = "requires app >= 2.0"
	})
	require.NoError(t, reg.Load(fb.name))

	_, err := reg.Install(context.Background(), fb.name, &fakeEnv{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUninstall(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, nil)
	require.NoError(t, reg.Load(fb.name))

	// Uninstalling before any install is rejected.
	assert.ErrorIs(t, reg.Uninstall(fb.name), ErrNotInstalled)

	job, err := reg.Install(context.Background(), fb.name, &fakeEnv{})
	require.NoError(t, err)
	require.NoError(t, job.Wait(context.Background()))

	venv := filepath.Join(root, fb.name, ".venv")
	require.NoError(t, os.MkdirAll(venv, 0o755))

	require.NoError(t, reg.Uninstall(fb.name))
	_, statErr := os.Stat(venv)
	assert.True(t, os.IsNotExist(statErr))

	desc, err := reg.Describe(fb.name)
	require.NoError(t, err)
	assert.False(t, desc.Installed)
	assert.True(t, desc.InstalledAt.IsZero())
}

func TestCapabilityQueriesCoverOnlyUsableBackends(t *testing.T) {
	reg, root := newTestRegistry(t)
	det := newTestBackend(t, root, func(f *fakeBackend) {
		f.tasks = []task.Type{task.Detection}
		f.models = []catalog.ModelInfo{
			{Name: "Det Special", Filename: "det-special.pt", Tasks: []task.Type{task.Detection}},
		}
	})
	newTestBackend(t, root, func(f *fakeBackend) {
		f.tasks = []task.Type{task.Segmentation}
	})
	require.NoError(t, reg.LoadAll())

	// Nothing installed yet: no capabilities.
	assert.Empty(t, reg.SupportedTasks())
	assert.Empty(t, reg.ContributedModels())

	job, err := reg.Install(context.Background(), det.name, &fakeEnv{})
	require.NoError(t, err)
	require.NoError(t, job.Wait(context.Background()))

	assert.Equal(t, []task.Type{task.Detection}, reg.SupportedTasks())
	assert.Equal(t, []string{det.name}, reg.BackendsFor(task.Detection))
	assert.Empty(t, reg.BackendsFor(task.Segmentation))

	models := reg.ContributedModels()
	require.Len(t, models, 1)
	assert.Equal(t, det.name, models[0].FromBackend)
}

func TestDownloadURL(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, func(f *fakeBackend) {
		f.downloadURL = "https://example.com/w.pt"
	})
	require.NoError(t, reg.Load(fb.name))

	url, err := reg.DownloadURL(catalog.ModelInfo{Filename: "w.pt", FromBackend: fb.name})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/w.pt", url)

	_, err = reg.DownloadURL(catalog.ModelInfo{Filename: "builtin.pt"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachedCatalogFollowsLifecycle(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, func(f *fakeBackend) {
		f.models = []catalog.ModelInfo{
			{Name: "Ext", Filename: "attached.pt", Tasks: []task.Type{task.Detection}},
		}
	})

	cat := catalog.New(zap.NewNop())
	reg.AttachCatalog(cat)

	// Loaded but not installed: the backend contributes nothing yet.
	require.NoError(t, reg.Load(fb.name))
	_, ok := cat.ByFilename("attached.pt")
	assert.False(t, ok)

	// A completed install shows up without any manual Refresh call.
	job, err := reg.Install(context.Background(), fb.name, &fakeEnv{})
	require.NoError(t, err)
	require.NoError(t, job.Wait(context.Background()))
	m, ok := cat.ByFilename("attached.pt")
	require.True(t, ok)
	assert.Equal(t, fb.name, m.FromBackend)

	// Uninstall withdraws the contribution again.
	require.NoError(t, reg.Uninstall(fb.name))
	_, ok = cat.ByFilename("attached.pt")
	assert.False(t, ok)
}

func TestKnownListsSidecarsWithoutLoading(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, func(f *fakeBackend) {
		f.models = []catalog.ModelInfo{
			{Name: "Ext", Filename: "known.pt", Tasks: []task.Type{task.Detection}},
		}
	})
	require.NoError(t, reg.Load(fb.name))
	job, err := reg.Install(context.Background(), fb.name, &fakeEnv{})
	require.NoError(t, err)
	require.NoError(t, job.Wait(context.Background()))

	// A candidate that was never loaded has no sidecar and stays unknown.
	stranger := filepath.Join(root, "stranger")
	require.NoError(t, os.MkdirAll(stranger, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stranger, ManifestName), []byte("name = \"stranger\"\n"), 0o644))

	// A fresh registry reads the sidecar without touching module code.
	reg2, err := NewRegistry(root, "1.0.0", zap.NewNop())
	require.NoError(t, err)
	descs, err := reg2.Known()
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, fb.name, descs[0].Name)
	assert.True(t, descs[0].Installed)
	assert.Equal(t, []string{"known.pt"}, descs[0].Models)
	assert.Empty(t, reg2.Loaded())
}

func TestRefreshCatalogFromRegistry(t *testing.T) {
	reg, root := newTestRegistry(t)
	fb := newTestBackend(t, root, func(f *fakeBackend) {
		f.models = []catalog.ModelInfo{
			{Name: "Ext", Filename: "ext.pt", Tasks: []task.Type{task.Detection}},
		}
	})
	require.NoError(t, reg.Load(fb.name))
	job, err := reg.Install(context.Background(), fb.name, &fakeEnv{})
	require.NoError(t, err)
	require.NoError(t, job.Wait(context.Background()))

	cat := catalog.New(zap.NewNop())
	before := cat.Len()
	cat.Refresh(reg)
	assert.Equal(t, before+1, cat.Len())

	m, ok := cat.ByFilename("ext.pt")
	require.True(t, ok)
	assert.Equal(t, fb.name, m.FromBackend)
}
