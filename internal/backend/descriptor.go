package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

const (
	// ManifestName is the file that marks a directory as a backend module.
	ManifestName = "module.toml"

	descriptorExt = ".toml"
)

// Manifest is the author-provided module.toml inside a backend module
// directory. Name selects the compiled-in factory.
type Manifest struct {
	Name string `toml:"name"`
}

// loadManifest reads and validates a module.toml.
func loadManifest(path string) (Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %s: %v", ErrManifestInvalid, path, err)
	}
	if m.Name == "" {
		return Manifest{}, fmt.Errorf("%w: %s: missing name", ErrManifestInvalid, path)
	}
	return m, nil
}

// Descriptor is the persisted sidecar next to a module directory. It
// caches the metadata derived from the implementation plus install state,
// so the UI can list backends without loading them all.
type Descriptor struct {
	Name        string      `toml:"name"`
	Version     string      `toml:"version"`
	VersionCode int         `toml:"version_code"`
	Author      string      `toml:"author,omitempty"`
	Description string      `toml:"description,omitempty"`
	LinkedPage  string      `toml:"linked_page,omitempty"`
	Executable  string      `toml:"executable"`
	ExtraArgs   []string    `toml:"extra_args,omitempty"`
	Tasks       []task.Type `toml:"tasks"`
	Models      []string    `toml:"models,omitempty"`

	Installed   bool      `toml:"installed"`
	InstalledAt time.Time `toml:"installed_at,omitempty"`
}

// describe derives a fresh descriptor from an implementation, carrying
// over the install state of a previous descriptor when given.
func describe(b Backend, prev *Descriptor) *Descriptor {
	d := &Descriptor{
		Name:        b.Name(),
		Version:     b.Version(),
		VersionCode: b.VersionCode(),
		Author:      b.Author(),
		Description: b.Description(),
		LinkedPage:  b.LinkedPage(),
		Executable:  b.Executable(),
		ExtraArgs:   b.ExtraArgs(),
		Tasks:       b.Tasks(),
	}
	for _, m := range b.Models() {
		d.Models = append(d.Models, m.Filename)
	}
	if prev != nil {
		d.Installed = prev.Installed
		d.InstalledAt = prev.InstalledAt
	}
	return d
}

// descriptorPath returns the sidecar location for a backend name under
// the backends root.
func descriptorPath(root, name string) string {
	return filepath.Join(root, name+descriptorExt)
}

// loadDescriptor reads a persisted sidecar; a missing file is not an
// error and yields nil.
func loadDescriptor(path string) (*Descriptor, error) {
	var d Descriptor
	if _, err := toml.DecodeFile(path, &d); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read descriptor %s: %w", path, err)
	}
	return &d, nil
}

// save writes the descriptor atomically via a temp file rename.
func (d *Descriptor) save(path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".descriptor-*.toml")
	if err != nil {
		return fmt.Errorf("write descriptor %s: %w", path, err)
	}
	tmp := f.Name()
	if err := toml.NewEncoder(f).Encode(d); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode descriptor %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write descriptor %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write descriptor %s: %w", path, err)
	}
	return nil
}
