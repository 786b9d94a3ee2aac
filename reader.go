package framesource

import (
	"errors"
	"io"
	"log/slog"

	"github.com/hotcue/framesource/backend"
)

// readClamped satisfies a pre-clamped frame range: it aligns the decoder
// to the range start, then decodes into out. The returned range always
// starts at r.Start and may be shorter than requested.
func (s *Session) readClamped(r IndexRange, out []float32) (IndexRange, error) {
	if err := s.seekFrame(r.Start); err != nil {
		return EmptyAt(s.reportIndex()), err
	}
	if s.cur.state != posKnown || s.cur.index != r.Start {
		s.logWarn("failed to position decoder at start of range", "range", r.String())
		return EmptyAt(s.reportIndex()), nil
	}
	return s.decodeInto(r, out)
}

// seekFrame aligns the current position to target.
//
// A forward gap small enough to be covered by the buffered samples plus
// twice the prefetch window is closed by decoding and discarding: a native
// seek only positions approximately and always costs at least the prefetch
// window of re-decoding, so for small gaps sequential decoding is both
// cheaper and exact. Anything else discards all buffered state and
// requests a native seek at an anchor one prefetch window before the
// target, then re-synchronizes by skip-reading up to the target.
func (s *Session) seekFrame(target int64) error {
	if s.cur.state == posKnown && s.cur.index < target {
		skip := Between(s.cur.index, target)
		maxSkip := s.samples2frames(int64(s.buf.readableLength())) + 2*s.format.PrefetchFrames
		if skip.Length() <= maxSkip {
			got, err := s.decodeInto(skip, nil)
			if err != nil {
				return err
			}
			if got != skip {
				s.logWarn("failed to skip frames before decoding", "range", skip.String())
				return ErrSeekMismatch
			}
		}
	}
	if s.cur.state == posKnown && s.cur.index == target {
		return nil
	}

	// Destructive seek: buffered samples are stale for the new position.
	s.buf.clear()
	s.cur = streamPosition{state: posUnknown}

	if s.dec == nil {
		return nil
	}

	// Anchor the native seek one prefetch window before the target; the
	// decoder must process that many frames before its output at the
	// target is bit-exact again.
	anchor := target - s.format.PrefetchFrames
	if anchor < s.frames.Start {
		anchor = s.frames.Start
	}
	if err := s.dec.SeekApprox(s.conv.fromFrameIndex(anchor)); err != nil {
		s.logWarn("native seek failed", "target", target, "error", err)
		s.releaseDecoder()
		return errors.Join(ErrDecoderFault, err)
	}

	if target == s.frames.Start {
		// Landing before the first valid frame is impossible, so the
		// seek is exact here and needs no prefetch.
		s.cur = streamPosition{state: posKnown, index: target}
		return nil
	}

	// Even with a zero prefetch window the native seek is approximate:
	// the reached position is only known from the next block's timestamp
	// and may lie before the requested anchor. Pull one block to learn
	// it, then skip-read the rest of the way to the target.
	if err := s.primePosition(); err != nil {
		return err
	}
	if s.cur.state == posKnown && s.cur.index < target {
		skip := Between(s.cur.index, target)
		got, err := s.decodeInto(skip, nil)
		if err != nil {
			return err
		}
		if got != skip {
			s.logWarn("failed to skip frames while seeking", "range", skip.String())
			s.cur = streamPosition{state: posUnknown}
			return ErrSeekMismatch
		}
	}

	if s.cur.state != posKnown || s.cur.index != target {
		s.logWarn("seeking missed the target frame", "target", target)
		s.cur = streamPosition{state: posUnknown}
		return ErrSeekMismatch
	}
	return nil
}

// primePosition pulls a single block after a native seek; its timestamp
// re-establishes the stream position. The samples stay in the read-ahead
// buffer, where the skip-read that follows picks them up.
func (s *Session) primePosition() error {
	block, err := s.dec.ReadNextBlock()
	switch {
	case err == io.EOF:
		return nil
	case errors.Is(err, backend.ErrFormatChanged):
		s.logWarn("stream format changed mid-stream, stopping decoder")
		s.releaseDecoder()
		return err
	case err != nil:
		s.logWarn("decoder read failed", "error", err)
		s.releaseDecoder()
		return errors.Join(ErrDecoderFault, err)
	}
	s.cur = streamPosition{state: posKnown, index: s.conv.toFrameIndex(block.Timestamp)}
	if len(block.Samples) > 0 {
		copy(s.buf.write(len(block.Samples)), block.Samples)
	}
	return nil
}

// decodeInto is the drain/pull loop. It alternates between draining the
// read-ahead buffer and pulling fresh blocks from the decoder until the
// range is satisfied, the stream ends, or the decoder fails. A nil out
// slice discards the decoded samples; that is the skip-read mode used
// during seeking.
func (s *Session) decodeInto(r IndexRange, out []float32) (IndexRange, error) {
	total := r.Length()
	remaining := total
	outOff := int64(0)
	var readErr error

loop:
	for remaining > 0 {
		if slice := s.buf.readFifo(int(s.frames2samples(remaining))); len(slice) > 0 {
			if out != nil {
				copy(out[outOff:], slice)
				outOff += int64(len(slice))
			}
			frames := s.samples2frames(int64(len(slice)))
			s.advance(frames)
			remaining -= frames
		}
		if remaining == 0 {
			break
		}
		if s.dec == nil {
			break
		}

		block, err := s.dec.ReadNextBlock()
		switch {
		case err == io.EOF:
			break loop
		case errors.Is(err, backend.ErrFormatChanged):
			s.logWarn("stream format changed mid-stream, stopping decoder")
			s.releaseDecoder()
			readErr = err
			break loop
		case err != nil:
			s.logWarn("decoder read failed", "error", err)
			s.releaseDecoder()
			readErr = errors.Join(ErrDecoderFault, err)
			break loop
		}

		// The block timestamp must continue the tracked position, except
		// right after a seek when the position is unknown. On a mismatch
		// the decoder-reported position wins.
		idx := s.conv.toFrameIndex(block.Timestamp)
		if s.cur.state == posKnown && s.cur.index != idx {
			s.logWarn("decoder timestamp out of step", "expected", s.cur.index, "reported", idx)
		}
		s.cur = streamPosition{state: posKnown, index: idx}

		// Copy what the request still needs straight into the output,
		// bypassing the buffer; stash the rest for the next call.
		n := s.frames2samples(remaining)
		if n > int64(len(block.Samples)) {
			n = int64(len(block.Samples))
		}
		if n > 0 {
			if out != nil {
				copy(out[outOff:], block.Samples[:n])
				outOff += n
			}
			frames := s.samples2frames(n)
			s.advance(frames)
			remaining -= frames
		}
		if rest := block.Samples[n:]; len(rest) > 0 {
			capBefore := s.buf.capacity()
			copy(s.buf.write(len(rest)), rest)
			if grown := s.buf.capacity(); grown > capBefore {
				slog.Debug("framesource: read-ahead capacity grown", "from", capBefore, "to", grown)
			}
		}
	}

	return Forward(r.Start, total-remaining), readErr
}
