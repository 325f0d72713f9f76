package release

import "errors"

var (
	// ErrInvalidVersion is returned for anything but a plain x.y.z version.
	ErrInvalidVersion = errors.New("release: version must be in the format x.y.z")
	// ErrNotNewer is returned when the version does not exceed the current latest.
	ErrNotNewer = errors.New("release: version is not newer than the current latest")
	// ErrNoChanges is returned when a release lists no changes.
	ErrNoChanges = errors.New("release: at least one change is required")
	// ErrSourceMissing is returned when the built script to publish does not exist.
	ErrSourceMissing = errors.New("release: source script not found")
)
