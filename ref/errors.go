package ref

import "errors"

var (
	// ErrTargetGone indicates the referent of a Weak handle has been collected.
	ErrTargetGone = errors.New("ref: target gone")

	// ErrNilTarget indicates a wrapper was requested for a nil pointer.
	ErrNilTarget = errors.New("ref: nil target")
)
