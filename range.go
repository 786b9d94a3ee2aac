package framesource

import "fmt"

// IndexRange is a half-open range [Start, End) of frame indices.
// An empty range has Start == End; a range with End < Start is invalid
// and never produced by this package.
type IndexRange struct {
	Start int64
	End   int64
}

// Between returns the range [start, end).
func Between(start, end int64) IndexRange {
	if end < start {
		end = start
	}
	return IndexRange{Start: start, End: end}
}

// Forward returns the range of length n starting at start.
func Forward(start, n int64) IndexRange {
	if n < 0 {
		n = 0
	}
	return IndexRange{Start: start, End: start + n}
}

// EmptyAt returns the empty range positioned at index.
func EmptyAt(index int64) IndexRange {
	return IndexRange{Start: index, End: index}
}

// Length returns the number of frames in the range.
func (r IndexRange) Length() int64 {
	return r.End - r.Start
}

// Empty reports whether the range contains no frames.
func (r IndexRange) Empty() bool {
	return r.Start >= r.End
}

// Contains reports whether index lies within the range.
func (r IndexRange) Contains(index int64) bool {
	return index >= r.Start && index < r.End
}

// Intersect returns the overlap of r and other. When the ranges are
// disjoint the result is empty, positioned at the clamp point nearest
// to r.Start.
func (r IndexRange) Intersect(other IndexRange) IndexRange {
	start := r.Start
	if start < other.Start {
		start = other.Start
	}
	end := r.End
	if end > other.End {
		end = other.End
	}
	if end < start {
		if start > other.End {
			start = other.End
		}
		end = start
	}
	return IndexRange{Start: start, End: end}
}

func (r IndexRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}
