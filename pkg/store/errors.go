package store

import "errors"

// ErrNotFound is returned by find_batch_job and find_batch style lookups
// when the requested record does not exist. Callers check it with errors.Is.
var ErrNotFound = errors.New("store: not found")

// ErrRegionNotFound is returned when a Batch references an unknown Region.
var ErrRegionNotFound = errors.New("store: region not found")
