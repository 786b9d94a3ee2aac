package framesource

import "errors"

var (
	// ErrSeekMismatch reports that a native seek landed on a position
	// that could not be reconciled with the requested target after the
	// bounded skip-read retries. The session stays usable; the position
	// is invalidated until the next successful seek.
	ErrSeekMismatch = errors.New("framesource: seek could not reach the target position")

	// ErrDecoderFault reports a hard decoder fault. The decoder handle
	// has been released and all further reads on the session deliver
	// empty ranges.
	ErrDecoderFault = errors.New("framesource: decoder fault")
)
