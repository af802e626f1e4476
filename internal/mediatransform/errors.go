package mediatransform

import "errors"

// Sentinel errors surfaced as job-failing validation errors (HTTP 422 at
// the API boundary).
var (
	// ErrDurationMismatch indicates the accelerated file's duration diverges
	// from the expected original/F by more than the tolerance.
	ErrDurationMismatch = errors.New("duration mismatch")

	// ErrDuplication indicates the accelerated file is suspiciously long,
	// suggesting the source contained concatenated duplicate audio.
	ErrDuplication = errors.New("duplicate content detected")

	// ErrCorruption indicates the accelerated file is suspiciously short or
	// empty, suggesting the transform produced a corrupt working file.
	ErrCorruption = errors.New("corrupted output")
)
