package backend

import "errors"

// Sentinel errors returned by the backend registry and install pipeline.
var (
	// ErrNotFound indicates an unknown backend name.
	ErrNotFound = errors.New("backend not found")

	// ErrNoFactory indicates a discovered module whose name has no
	// compiled-in factory registered.
	ErrNoFactory = errors.New("no factory registered for backend")

	// ErrUnavailable indicates a backend that reports itself incompatible
	// with the running application version.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrNotInstalled indicates an operation that requires a completed
	// install.
	ErrNotInstalled = errors.New("backend not installed")

	// ErrInstallRunning indicates a second install requested while one is
	// already in flight for the same backend.
	ErrInstallRunning = errors.New("install already running")

	// ErrManifestInvalid indicates a module manifest that could not be
	// parsed or is missing required fields.
	ErrManifestInvalid = errors.New("invalid module manifest")
)
