// Package catalog maintains the merged, queryable registry of all known
// model variants: a built-in catalog seeded at construction plus the model
// sets contributed by installed backends.
package catalog

import (
	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// ModelInfo describes one selectable model variant.
type ModelInfo struct {
	// Name is the display name shown in selection UIs.
	Name string `toml:"name" json:"name"`

	// Filename is the weight file this variant resolves to. It is the
	// de-duplication key of the catalog.
	Filename string `toml:"filename" json:"filename"`

	// Parameters is the human-readable parameter count, e.g. "2.6M".
	Parameters string `toml:"parameters" json:"parameters"`

	// Tasks are the task types the variant supports.
	Tasks []task.Type `toml:"tasks" json:"tasks"`

	// Description is free text for search and display.
	Description string `toml:"description" json:"description"`

	// FromBackend names the backend that contributed this variant; empty
	// for built-in entries. Refresh drops and re-pulls exactly the
	// entries with a non-empty value here.
	FromBackend string `toml:"from_backend,omitempty" json:"from_backend,omitempty"`
}

// SupportsTask reports whether the variant covers the given task type.
func (m ModelInfo) SupportsTask(t task.Type) bool {
	for _, mt := range m.Tasks {
		if mt == t {
			return true
		}
	}
	return false
}

// BuiltIn reports whether the entry belongs to the seeded catalog rather
// than a backend.
func (m ModelInfo) BuiltIn() bool { return m.FromBackend == "" }
