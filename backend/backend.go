// Package backend defines the capability contract between the seek-and-decode
// engine and native decoder implementations, plus the registry that maps
// source locators to backends.
//
// A backend only has to provide coarse, block-oriented access: opaque
// variable-size blocks of interleaved float32 samples with native timestamps,
// and approximate seeking. The engine layered on top turns that into
// sample-accurate random access.
package backend

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrFormatChanged is returned by ReadNextBlock when the stream's format
// changes mid-stream. The engine treats this as unsupported and fatal for
// the session.
var ErrFormatChanged = errors.New("backend: stream format changed mid-stream")

// Block is one decoded unit as produced by the native decoder: interleaved
// samples and the native timestamp (100ns ticks) of the first frame.
type Block struct {
	Samples   []float32
	Timestamp int64
}

// FormatRequest carries the caller's format wishes into negotiation.
// Zero values mean "adopt the stream's native value".
type FormatRequest struct {
	ChannelCount int
	SampleRate   int
}

// Format is the negotiated decoding format, fixed for the lifetime of a
// decoder instance.
type Format struct {
	ChannelCount int
	SampleRate   int

	// BitrateKbps is the stream's average bitrate in kbit/s, 0 if the
	// container does not expose it.
	BitrateKbps int

	// BlockSize is a hint for the largest typical block, in samples.
	// The engine sizes its initial read-ahead capacity from it.
	BlockSize int

	// PrefetchFrames is the codec's encoder delay: the number of frames
	// that must be decoded after any seek before output is bit-exact.
	PrefetchFrames int64
}

// Decoder is the capability contract for a native decoder handle.
//
// Implementations are single-threaded and need not be safe for concurrent
// use. ReadNextBlock returns io.EOF at end of stream, ErrFormatChanged for
// an unsupported mid-stream format change, and any other error for a hard
// decoder fault. After SeekApprox the actually-reached position is only
// known from the timestamp of the next block.
type Decoder interface {
	NegotiateFormat(req FormatRequest) (Format, error)
	Duration() (int64, error)
	ReadNextBlock() (Block, error)
	SeekApprox(ticks int64) error

	// Release frees the decoder handle. It is idempotent and safe to
	// call on every exit path.
	Release()
}

// OpenFunc opens a decoder for the given source locator.
type OpenFunc func(locator string) (Decoder, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]OpenFunc{}
)

// Register associates a file extension (without the dot, lower case) with
// a backend. Typically called from a backend package's init function.
func Register(ext string, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(ext)] = open
}

// Open selects a backend by the locator's file extension and opens it.
func Open(locator string) (Decoder, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(locator), "."))
	registryMu.RLock()
	open, ok := registry[ext]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend: no decoder registered for %q", ext)
	}
	return open(locator)
}

// Extensions returns the registered file extensions, sorted.
func Extensions() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
