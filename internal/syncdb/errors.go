package syncdb

import "errors"

var (
	// ErrInvalidRecord indicates a record is missing a natural-key column
	// or the input is not a homogeneous set of mappings.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrStoreUnavailable indicates the embedded sync store could not be
	// opened or created.
	ErrStoreUnavailable = errors.New("sync store unavailable")
)
