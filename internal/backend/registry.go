package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/catalog"
	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// loadedBackend pairs an implementation with its persisted descriptor.
type loadedBackend struct {
	impl Backend
	desc *Descriptor
	dir  string
}

// Registry discovers backend modules under a root directory, binds them
// to compiled-in factories, and runs their install lifecycle. It also
// feeds the shared model catalog: Registry implements catalog.ModelSource
// over its available, installed backends.
type Registry struct {
	root       string
	appVersion string
	logger     *zap.Logger

	mu       sync.RWMutex
	cat      *catalog.Catalog
	loaded   map[string]*loadedBackend
	installs map[string]*InstallJob
}

// NewRegistry creates the backends root if needed and returns an empty
// registry; call Scan and Load (or LoadAll) to populate it.
func NewRegistry(root, appVersion string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create backends root %s: %w", root, err)
	}
	return &Registry{
		root:       root,
		appVersion: appVersion,
		logger:     logger,
		loaded:     make(map[string]*loadedBackend),
		installs:   make(map[string]*InstallJob),
	}, nil
}

// Root returns the backends root directory.
func (r *Registry) Root() string { return r.root }

// AttachCatalog ties a model catalog to the registry: it is refreshed
// immediately and again after every load, completed install, and
// uninstall, so catalog holders never see stale backend contributions.
func (r *Registry) AttachCatalog(cat *catalog.Catalog) {
	r.mu.Lock()
	r.cat = cat
	r.mu.Unlock()
	r.notifyCatalog()
}

// notifyCatalog refreshes the attached catalog, if any. Must be called
// without r.mu held: Refresh calls back into ContributedModels.
func (r *Registry) notifyCatalog() {
	r.mu.RLock()
	cat := r.cat
	r.mu.RUnlock()
	if cat != nil {
		cat.Refresh(r)
	}
}

// Candidate is one discovered module directory not yet loaded.
type Candidate struct {
	Name string
	Dir  string
}

// Scan lists subdirectories of the root that carry a module manifest.
// Manifests that fail to parse are skipped with a warning.
func (r *Registry) Scan() ([]Candidate, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("scan backends root %s: %w", r.root, err)
	}

	var out []Candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, e.Name())
		manifest := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(manifest); err != nil {
			continue
		}
		m, err := loadManifest(manifest)
		if err != nil {
			r.logger.Warn("skipping backend module with bad manifest",
				zap.String("dir", dir), zap.Error(err))
			continue
		}
		out = append(out, Candidate{Name: m.Name, Dir: dir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Known lists the descriptors of every known backend without executing
// module code: loaded backends report their live descriptor, other
// candidates the persisted sidecar from an earlier load. A candidate that
// was never loaded has no sidecar and is not yet known, so it is skipped.
func (r *Registry) Known() ([]Descriptor, error) {
	candidates, err := r.Scan()
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Descriptor
	for _, c := range candidates {
		if lb, ok := r.loaded[c.Name]; ok {
			out = append(out, *lb.desc)
			continue
		}
		desc, err := loadDescriptor(descriptorPath(r.root, c.Name))
		if err != nil {
			r.logger.Warn("skipping unreadable backend descriptor",
				zap.String("backend", c.Name), zap.Error(err))
			continue
		}
		if desc == nil {
			continue
		}
		out = append(out, *desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Load binds one discovered module to its factory, derives and persists
// its descriptor sidecar, and makes it queryable. Loading an already
// loaded backend is a no-op.
func (r *Registry) Load(name string) error {
	fresh, err := r.load(name)
	if err != nil {
		return err
	}
	if fresh {
		r.notifyCatalog()
	}
	return nil
}

// load performs the locked portion of Load and reports whether a backend
// was newly bound.
func (r *Registry) load(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loaded[name]; ok {
		return false, nil
	}

	dir := filepath.Join(r.root, name)
	manifest := filepath.Join(dir, ManifestName)
	m, err := loadManifest(manifest)
	if err != nil {
		return false, err
	}

	factory, ok := factoryFor(m.Name)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrNoFactory, m.Name)
	}
	impl := factory()

	prev, err := loadDescriptor(descriptorPath(r.root, m.Name))
	if err != nil {
		r.logger.Warn("discarding unreadable backend descriptor",
			zap.String("backend", m.Name), zap.Error(err))
		prev = nil
	}
	desc := describe(impl, prev)
	if err := desc.save(descriptorPath(r.root, m.Name)); err != nil {
		return false, err
	}

	r.loaded[m.Name] = &loadedBackend{impl: impl, desc: desc, dir: dir}
	r.logger.Info("backend loaded",
		zap.String("backend", m.Name),
		zap.String("version", desc.Version),
		zap.Bool("installed", desc.Installed))
	return true, nil
}

// LoadAll scans and loads every discovered module, collecting per-module
// failures instead of stopping at the first.
func (r *Registry) LoadAll() error {
	candidates, err := r.Scan()
	if err != nil {
		return err
	}
	var firstErr error
	for _, c := range candidates {
		if err := r.Load(c.Name); err != nil {
			r.logger.Warn("backend load failed",
				zap.String("backend", c.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Get returns a loaded backend implementation.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lb, ok := r.loaded[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return lb.impl, nil
}

// Describe returns the persisted descriptor of a loaded backend.
func (r *Registry) Describe(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lb, ok := r.loaded[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return *lb.desc, nil
}

// Loaded lists the loaded backend names in sorted order.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Available reports whether a loaded backend accepts the running
// application version.
func (r *Registry) Available(name string) (bool, UnavailableReason, error) {
	impl, err := r.Get(name)
	if err != nil {
		return false, "", err
	}
	ok, reason := impl.Available(r.appVersion)
	return ok, reason, nil
}

// Install starts the asynchronous install pipeline for a loaded, available
// backend and returns the running job. A second call while a job is in
// flight returns ErrInstallRunning.
func (r *Registry) Install(ctx context.Context, name string, env EnvManager) (*InstallJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lb, ok := r.loaded[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if avail, reason := lb.impl.Available(r.appVersion); !avail {
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, name, reason)
	}
	if job, running := r.installs[name]; running {
		select {
		case <-job.done:
			// Previous job finished; fall through and start a new one.
		default:
			return nil, fmt.Errorf("%w: %s", ErrInstallRunning, name)
		}
	}

	job := &InstallJob{
		backend: lb.impl,
		dir:     lb.dir,
		env:     env,
		logger:  r.logger,
		events:  make(chan Progress, 16),
		done:    make(chan struct{}),
		onSuccess: func(at time.Time) error {
			return r.markInstalled(name, at)
		},
	}
	r.installs[name] = job
	go job.run(ctx)
	return job, nil
}

// markInstalled flips the descriptor to installed and persists it.
func (r *Registry) markInstalled(name string, at time.Time) error {
	r.mu.Lock()
	lb, ok := r.loaded[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	lb.desc.Installed = true
	lb.desc.InstalledAt = at
	err := lb.desc.save(descriptorPath(r.root, name))
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.notifyCatalog()
	return nil
}

// Uninstall clears a backend's installed state and removes its virtual
// environment directory. The module itself stays on disk and loadable.
func (r *Registry) Uninstall(name string) error {
	if err := r.uninstall(name); err != nil {
		return err
	}
	r.notifyCatalog()
	return nil
}

func (r *Registry) uninstall(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lb, ok := r.loaded[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if !lb.desc.Installed {
		return fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	if err := os.RemoveAll(filepath.Join(lb.dir, ".venv")); err != nil {
		return fmt.Errorf("remove environment of %s: %w", name, err)
	}
	lb.desc.Installed = false
	lb.desc.InstalledAt = time.Time{}
	if err := lb.desc.save(descriptorPath(r.root, name)); err != nil {
		return err
	}
	r.logger.Info("backend uninstalled", zap.String("backend", name))
	return nil
}

// usable assumes r.mu is held and reports whether a backend counts toward
// capability queries: loaded, installed, and available.
func (r *Registry) usable(lb *loadedBackend) bool {
	if !lb.desc.Installed {
		return false
	}
	ok, _ := lb.impl.Available(r.appVersion)
	return ok
}

// SupportedTasks returns the union of task types across usable backends,
// in canonical order.
func (r *Registry) SupportedTasks() []task.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[task.Type]bool)
	for _, lb := range r.loaded {
		if !r.usable(lb) {
			continue
		}
		for _, t := range lb.impl.Tasks() {
			seen[t] = true
		}
	}
	var out []task.Type
	for _, t := range task.Types() {
		if seen[t] {
			out = append(out, t)
		}
	}
	return out
}

// BackendsFor lists the usable backends that can train the given task
// type, sorted by name.
func (r *Registry) BackendsFor(t task.Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for name, lb := range r.loaded {
		if !r.usable(lb) {
			continue
		}
		for _, bt := range lb.impl.Tasks() {
			if bt == t {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// ContributedModels implements catalog.ModelSource: the model variants of
// every usable backend, stamped with their origin.
func (r *Registry) ContributedModels() []catalog.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []catalog.ModelInfo
	for name, lb := range r.loaded {
		if !r.usable(lb) {
			continue
		}
		for _, m := range lb.impl.Models() {
			m.FromBackend = name
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// DownloadURL resolves where a catalog variant's weights can be fetched:
// the contributing backend decides.
func (r *Registry) DownloadURL(m catalog.ModelInfo) (string, error) {
	if m.FromBackend == "" {
		return "", fmt.Errorf("%w: model %s has no backend", ErrNotFound, m.Filename)
	}
	impl, err := r.Get(m.FromBackend)
	if err != nil {
		return "", err
	}
	url := impl.DownloadURL(m)
	if url == "" {
		return "", fmt.Errorf("%w: no download for %s", ErrNotFound, m.Filename)
	}
	return url, nil
}
