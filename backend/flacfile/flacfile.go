// Package flacfile decodes FLAC files through mewkiz/flac. FLAC frames
// map naturally onto decoder blocks: variable size, exact sample
// positions, and frame-granular (hence approximate) native seeking. Being
// lossless there is no encoder delay, so the prefetch window is zero and
// the engine re-synchronizes from the first block after a seek.
package flacfile

import (
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/hotcue/framesource/backend"
	"github.com/hotcue/framesource/internal/ticks"
)

func init() {
	backend.Register("flac", open)
}

// flacStream is the slice of *flac.Stream the decoder needs.
type flacStream interface {
	ParseNext() (*frame.Frame, error)
	Seek(sampleNum uint64) (uint64, error)
	Close() error
}

type decoder struct {
	f        *os.File
	stream   flacStream
	info     *meta.StreamInfo
	pos      int64 // first sample of the next parsed frame
	outChans int
	released bool
}

func open(locator string) (backend.Decoder, error) {
	f, err := os.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("flacfile: %w", err)
	}
	stream, err := flac.NewSeek(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flacfile: %w", err)
	}
	if stream.Info.NSamples == 0 {
		stream.Close()
		f.Close()
		return nil, fmt.Errorf("flacfile: stream length unavailable")
	}
	return &decoder{
		f:        f,
		stream:   stream,
		info:     stream.Info,
		outChans: int(stream.Info.NChannels),
	}, nil
}

func (d *decoder) NegotiateFormat(req backend.FormatRequest) (backend.Format, error) {
	if req.SampleRate != 0 && req.SampleRate != int(d.info.SampleRate) {
		return backend.Format{}, fmt.Errorf("flacfile: cannot resample %d Hz to %d Hz", d.info.SampleRate, req.SampleRate)
	}
	native := int(d.info.NChannels)
	switch {
	case req.ChannelCount == 0 || req.ChannelCount == native:
		d.outChans = native
	case req.ChannelCount == 1 && native == 2:
		d.outChans = 1
	case req.ChannelCount == 2 && native == 1:
		d.outChans = 2
	default:
		return backend.Format{}, fmt.Errorf("flacfile: cannot map %d channels to %d", native, req.ChannelCount)
	}
	return backend.Format{
		ChannelCount:   d.outChans,
		SampleRate:     int(d.info.SampleRate),
		BlockSize:      int(d.info.BlockSizeMax) * d.outChans,
		PrefetchFrames: 0,
	}, nil
}

func (d *decoder) Duration() (int64, error) {
	return ticks.FromSamples(int(d.info.SampleRate), int64(d.info.NSamples)), nil
}

func (d *decoder) ReadNextBlock() (backend.Block, error) {
	if d.released {
		return backend.Block{}, fmt.Errorf("flacfile: decoder released")
	}
	fr, err := d.stream.ParseNext()
	if err == io.EOF {
		return backend.Block{}, io.EOF
	}
	if err != nil {
		return backend.Block{}, fmt.Errorf("flacfile: parse frame: %w", err)
	}

	if fr.SampleRate != d.info.SampleRate ||
		len(fr.Subframes) != int(d.info.NChannels) ||
		fr.BitsPerSample != d.info.BitsPerSample {
		return backend.Block{}, backend.ErrFormatChanged
	}

	// The running position labels the block. Deriving it from the frame
	// header's Num field instead would mislabel a final short frame in a
	// fixed block size stream.
	first := d.pos
	n := len(fr.Subframes[0].Samples)
	d.pos += int64(n)

	scale := float32(int64(1) << (fr.BitsPerSample - 1))
	samples := make([]float32, 0, n*d.outChans)
	for i := 0; i < n; i++ {
		switch {
		case d.outChans == 1 && len(fr.Subframes) == 2:
			l := float32(fr.Subframes[0].Samples[i]) / scale
			r := float32(fr.Subframes[1].Samples[i]) / scale
			samples = append(samples, (l+r)/2)
		case d.outChans == 2 && len(fr.Subframes) == 1:
			s := float32(fr.Subframes[0].Samples[i]) / scale
			samples = append(samples, s, s)
		default:
			for ch := 0; ch < len(fr.Subframes); ch++ {
				samples = append(samples, float32(fr.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	return backend.Block{
		Samples:   samples,
		Timestamp: ticks.FromSamples(int(d.info.SampleRate), first),
	}, nil
}

func (d *decoder) SeekApprox(t int64) error {
	if d.released {
		return fmt.Errorf("flacfile: decoder released")
	}
	target := ticks.ToSamples(int(d.info.SampleRate), t)
	// The stream repositions to the start of the frame covering the
	// target and reports the sample number actually reached.
	reached, err := d.stream.Seek(uint64(target))
	if err != nil {
		return fmt.Errorf("flacfile: seek: %w", err)
	}
	d.pos = int64(reached)
	return nil
}

func (d *decoder) Release() {
	if d.released {
		return
	}
	d.released = true
	d.stream.Close()
	d.f.Close()
}
