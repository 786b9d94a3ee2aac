// Package framesource turns coarse, block-oriented audio decoders with
// approximate seeking into byte-accurate, randomly seekable streams of
// interleaved float32 frames, as needed for scrubbing, looping and
// analysis.
package framesource

import (
	"fmt"
	"log/slog"

	"github.com/hotcue/framesource/backend"
)

// Params carries optional format overrides for Open. Zero values adopt
// the stream's native format.
type Params struct {
	ChannelCount int
	SampleRate   int
}

// posState distinguishes a known frame position from the two states in
// which the session cannot deliver samples: the position is unknown
// (immediately after a native seek, before the next block arrives) or the
// stream end has been reached. Both map to the end-of-range index outward.
type posState uint8

const (
	posKnown posState = iota
	posUnknown
	posAtEnd
)

type streamPosition struct {
	state posState
	index int64
}

// Session provides sample-accurate random access to one audio stream.
// A Session is not safe for concurrent use; all access must be externally
// serialized.
type Session struct {
	dec    backend.Decoder
	svc    *backend.ServiceRef
	conv   unitConverter
	buf    *readAheadBuffer
	format backend.Format
	frames IndexRange
	cur    streamPosition
}

// Open opens the stream behind locator, negotiates the decoding format
// and probes the total duration. A failure at any stage leaves no held
// resources; the returned session must be closed by the caller.
func Open(locator string, params Params) (*Session, error) {
	svc := backend.AcquireService()

	dec, err := backend.Open(locator)
	if err != nil {
		svc.Release()
		return nil, fmt.Errorf("framesource: open %s: %w", locator, err)
	}

	s, err := newSession(dec, svc, params)
	if err != nil {
		dec.Release()
		svc.Release()
		return nil, fmt.Errorf("framesource: open %s: %w", locator, err)
	}
	return s, nil
}

// OpenDecoder builds a session directly on an already-opened decoder,
// bypassing the locator registry. The session takes ownership of the
// decoder and releases it on close.
func OpenDecoder(dec backend.Decoder, params Params) (*Session, error) {
	svc := backend.AcquireService()
	s, err := newSession(dec, svc, params)
	if err != nil {
		dec.Release()
		svc.Release()
		return nil, err
	}
	return s, nil
}

func newSession(dec backend.Decoder, svc *backend.ServiceRef, params Params) (*Session, error) {
	format, err := dec.NegotiateFormat(backend.FormatRequest{
		ChannelCount: params.ChannelCount,
		SampleRate:   params.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("format negotiation: %w", err)
	}
	if format.ChannelCount < 1 || format.SampleRate < 1 {
		return nil, fmt.Errorf("format negotiation: invalid format %+v", format)
	}

	ticks, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("duration probe: %w", err)
	}

	conv := newUnitConverter(format.SampleRate)
	blockSize := format.BlockSize
	if blockSize < 1 {
		blockSize = defaultBlockSize
	}

	s := &Session{
		dec:    dec,
		svc:    svc,
		conv:   conv,
		buf:    newReadAheadBuffer(blockSize),
		format: format,
		frames: Between(0, conv.toFrameIndex(ticks)),
		cur:    streamPosition{state: posUnknown},
	}

	// Position the decoder at the first valid frame so the header frames
	// are skipped before the first read.
	if err := s.seekFrame(s.frames.Start); err != nil {
		return nil, fmt.Errorf("initial positioning: %w", err)
	}
	return s, nil
}

// defaultBlockSize is the initial read-ahead capacity, in samples, when a
// backend gives no block size hint.
const defaultBlockSize = 4096

// Format returns the negotiated decoding format.
func (s *Session) Format() backend.Format {
	return s.format
}

// ChannelCount returns the negotiated channel count.
func (s *Session) ChannelCount() int {
	return s.format.ChannelCount
}

// SampleRate returns the negotiated sample rate in Hz.
func (s *Session) SampleRate() int {
	return s.format.SampleRate
}

// FrameIndexRange returns the valid frame index range [0, total).
func (s *Session) FrameIndexRange() IndexRange {
	return s.frames
}

// Position returns the current frame index and whether it is known.
// The position is unknown immediately after a failed or unresolved seek.
func (s *Session) Position() (int64, bool) {
	if s.cur.state == posKnown {
		return s.cur.index, true
	}
	return s.frames.End, false
}

// ReadFrames decodes the requested frame range into a freshly allocated
// interleaved sample slice. The delivered range always starts at the
// clamped request start but may be shorter than requested on end of
// stream or decoder failure; a non-nil error reports the failure kind
// alongside whatever was delivered.
func (s *Session) ReadFrames(r IndexRange) (IndexRange, []float32, error) {
	clamped := r.Intersect(s.frames)
	if clamped.Empty() {
		return EmptyAt(clamped.Start), nil, nil
	}
	out := make([]float32, s.frames2samples(clamped.Length()))
	delivered, err := s.readClamped(clamped, out)
	return delivered, out[:s.frames2samples(delivered.Length())], err
}

// ReadFramesInto decodes the requested frame range into out, which must
// hold at least one full frame. The range is clamped to the stream and to
// the capacity of out.
func (s *Session) ReadFramesInto(r IndexRange, out []float32) (IndexRange, error) {
	clamped := r.Intersect(s.frames)
	maxFrames := int64(len(out)) / int64(s.format.ChannelCount)
	if clamped.Length() > maxFrames {
		clamped = Forward(clamped.Start, maxFrames)
	}
	if clamped.Empty() {
		return EmptyAt(clamped.Start), nil
	}
	return s.readClamped(clamped, out)
}

// Close releases the decoder handle and the decoding service reference.
// It is idempotent and safe even when Open failed partway.
func (s *Session) Close() error {
	s.releaseDecoder()
	s.svc.Release()
	return nil
}

func (s *Session) releaseDecoder() {
	if s.dec != nil {
		s.dec.Release()
		s.dec = nil
	}
}

func (s *Session) frames2samples(frames int64) int64 {
	return frames * int64(s.format.ChannelCount)
}

func (s *Session) samples2frames(samples int64) int64 {
	return samples / int64(s.format.ChannelCount)
}

// advance moves a known position forward, collapsing it into the at-end
// state when the stream end is reached.
func (s *Session) advance(frames int64) {
	s.cur.index += frames
	if s.cur.index >= s.frames.End {
		s.cur = streamPosition{state: posAtEnd, index: s.frames.End}
	}
}

// reportIndex is the outward-facing position: the end-of-range index
// stands in for both "at end" and "unknown".
func (s *Session) reportIndex() int64 {
	if s.cur.state == posKnown {
		return s.cur.index
	}
	return s.frames.End
}

func (s *Session) logWarn(msg string, args ...any) {
	slog.Warn("framesource: "+msg, args...)
}
