// Package backend manages training backends: discovery of backend modules
// on disk, binding them to compiled-in implementations, and the install
// lifecycle that prepares a module's Python environment.
//
// A backend module is a subdirectory of the backends root containing a
// module.toml manifest. The manifest names the implementation; the actual
// behavior comes from a factory registered at build time via Register.
// Alongside each module the registry persists a <name>.toml descriptor
// recording the derived metadata and install state.
package backend

import (
	"fmt"
	"sync"

	"github.com/AyalaKaguya/yoloflow/internal/catalog"
	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// UnavailableReason explains why a backend rejected the running
// application version. Empty when the backend is available.
type UnavailableReason string

// Backend is the compiled-in contract every training backend fulfills.
// Implementations must be safe for concurrent use; the registry calls
// them from multiple goroutines during install and catalog refresh.
type Backend interface {
	// Name is the unique backend identifier; it must match the module
	// manifest that binds to this implementation.
	Name() string
	Version() string
	VersionCode() int
	Author() string
	Description() string
	LinkedPage() string

	// Available reports whether the backend supports the given
	// application version, with a human-readable reason when it does not.
	Available(appVersion string) (bool, UnavailableReason)

	// Executable is the entry script or binary, relative to the module
	// directory, launched for training runs.
	Executable() string
	ExtraArgs() []string

	// Tasks lists the task types this backend can train.
	Tasks() []task.Type

	// Models lists the model variants this backend contributes to the
	// shared catalog.
	Models() []catalog.ModelInfo

	// DownloadURL resolves where a variant's weight file can be fetched
	// from; empty when the backend cannot provide it.
	DownloadURL(model catalog.ModelInfo) string

	// PreInstall and PostInstall run inside the install pipeline, before
	// and after dependency sync, with the module directory as argument.
	PreInstall(dir string) error
	PostInstall(dir string) error
}

// Factory constructs a backend implementation. Factories are registered
// once at program start, keyed by backend name.
type Factory func() Backend

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// Register binds a backend name to its factory. It panics on duplicate
// registration, matching how database/sql drivers surface the mistake at
// startup rather than at load time.
func Register(name string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if factory == nil {
		panic("backend: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("backend: Register called twice for %q", name))
	}
	factories[name] = factory
}

func factoryFor(name string) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// RegisteredFactories lists the names with a compiled-in factory.
func RegisteredFactories() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	return out
}
