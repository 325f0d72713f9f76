package versions

import "errors"

var (
	// ErrUnknownVersion is returned when a requested version is not in the table.
	ErrUnknownVersion = errors.New("versions: unknown version")
	// ErrDuplicateVersion is returned when a version number appears twice.
	ErrDuplicateVersion = errors.New("versions: duplicate version")
	// ErrLatestCount is returned when the table does not hold exactly one latest entry.
	ErrLatestCount = errors.New("versions: table must hold exactly one latest entry")
	// ErrInvalidStatus is returned for a status outside latest/stable/legacy/beta.
	ErrInvalidStatus = errors.New("versions: invalid status")
)
