package project

import "errors"

// Error taxonomy for project operations. Callers distinguish the kinds with
// errors.Is; the GUI layer maps them to user-facing messages.
var (
	// ErrNotFound indicates a dataset, model, or plan name that does not
	// exist in the project.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate name or filename on add. Adds are
	// always rejected pre-emptively; nothing is ever overwritten implicitly.
	ErrConflict = errors.New("already exists")

	// ErrInvalidSource indicates an import source that is neither a
	// directory nor a recognized archive, or an archive with no contents.
	ErrInvalidSource = errors.New("invalid source")

	// ErrIO wraps a copy, extract, or write failure. Where import defines
	// rollback, the rollback has already run by the time this surfaces.
	ErrIO = errors.New("io failure")

	// ErrStructuralInvalid indicates a config document that fails to parse
	// or a project directory that is not a valid project. Fatal to opening.
	ErrStructuralInvalid = errors.New("invalid project structure")
)
