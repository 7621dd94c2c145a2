package catalog

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// ModelSource supplies externally contributed model variants. The backend
// registry implements it over its loaded, available backends.
type ModelSource interface {
	ContributedModels() []ModelInfo
}

// Catalog is the merged view of built-in and backend-contributed models.
// Filename is the identity key: registering a variant whose filename is
// already present replaces the earlier entry.
type Catalog struct {
	mu      sync.RWMutex
	entries []ModelInfo
	logger  *zap.Logger
}

// New builds a catalog seeded with the built-in model line-up.
func New(logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		entries: BuiltinModels(),
		logger:  logger,
	}
}

// Register adds one variant, replacing any existing entry with the same
// filename.
func (c *Catalog) Register(m ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(m)
}

// register assumes c.mu is held.
func (c *Catalog) register(m ModelInfo) {
	for i, e := range c.entries {
		if e.Filename == m.Filename {
			if e.FromBackend != m.FromBackend {
				c.logger.Debug("catalog entry replaced",
					zap.String("filename", m.Filename),
					zap.String("previous_backend", e.FromBackend),
					zap.String("backend", m.FromBackend))
			}
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	c.entries = append(c.entries, m)
}

// Refresh drops every backend-contributed entry and re-pulls the current
// set from the source. Built-in entries are never dropped, but a backend
// variant that shares a built-in filename still shadows it.
func (c *Catalog) Refresh(source ModelSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.BuiltIn() {
			kept = append(kept, e)
		}
	}
	c.entries = kept

	if source == nil {
		return
	}
	for _, m := range source.ContributedModels() {
		c.register(m)
	}
}

// All returns every entry, sorted by filename.
func (c *Catalog) All() []ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := append([]ModelInfo(nil), c.entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// Len returns the number of registered variants.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ModelsForTask returns the variants supporting the given task type,
// sorted by filename.
func (c *Catalog) ModelsForTask(t task.Type) []ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ModelInfo
	for _, e := range c.entries {
		if e.SupportsTask(t) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// ByFilename looks a variant up by its weight filename.
func (c *Catalog) ByFilename(filename string) (ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.Filename == filename {
			return e, true
		}
	}
	return ModelInfo{}, false
}

// ByName looks a variant up by display name.
func (c *Catalog) ByName(name string) (ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.Name == name {
			return e, true
		}
	}
	return ModelInfo{}, false
}

// SupportedTasks returns the union of task types covered by at least one
// variant, in the canonical task order.
func (c *Catalog) SupportedTasks() []task.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[task.Type]bool)
	for _, e := range c.entries {
		for _, t := range e.Tasks {
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

// Recommended picks a sensible default variant for a task. Size keywords
// in the display name decide first (nano, then small; with preferLarge
// extra large, then large); when no candidate names its size, the scale
// letter in a yolo11-style filename breaks the tie, and failing that the
// first supporting variant wins.
func (c *Catalog) Recommended(t task.Type, preferLarge bool) (ModelInfo, bool) {
	candidates := c.ModelsForTask(t)
	if len(candidates) == 0 {
		return ModelInfo{}, false
	}

	keywords := []string{"nano", "small"}
	if preferLarge {
		keywords = []string{"extra large", "xlarge", "large"}
	}
	for _, kw := range keywords {
		for _, m := range candidates {
			if strings.Contains(strings.ToLower(m.Name), kw) {
				return m, true
			}
		}
	}

	scales := []string{"n", "s", "m", "l", "x"}
	if preferLarge {
		scales = []string{"x", "l", "m", "s", "n"}
	}
	for _, scale := range scales {
		for _, m := range candidates {
			if scaleOf(m.Filename) == scale {
				return m, true
			}
		}
	}
	return candidates[0], true
}

// Search returns variants whose name, filename, or description contains
// the query, case-insensitively.
func (c *Catalog) Search(query string) []ModelInfo {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c.All()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ModelInfo
	for _, e := range c.entries {
		if strings.Contains(strings.ToLower(e.Name), q) ||
			strings.Contains(strings.ToLower(e.Filename), q) ||
			strings.Contains(strings.ToLower(e.Description), q) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// scaleOf extracts the scale letter from a yolo11-style filename, e.g.
// "yolo11n-seg.pt" yields "n". Unknown shapes yield "".
func scaleOf(filename string) string {
	stem := strings.TrimSuffix(filename, ".pt")
	if i := strings.IndexAny(stem, "-"); i >= 0 {
		stem = stem[:i]
	}
	if len(stem) == 0 {
		return ""
	}
	last := stem[len(stem)-1:]
	switch last {
	case "n", "s", "m", "l", "x":
		return last
	}
	return ""
}
