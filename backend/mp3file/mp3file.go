// Package mp3file decodes MP3 files through go-mp3. The decoder exposes
// an exact byte-addressed PCM stream, but seeks are deliberately
// quantized down to MP3 granule boundaries so positioning behaves like
// the other lossy backends: approximately, with the engine's skip-read
// closing the residual gap.
package mp3file

import (
	"fmt"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/hotcue/framesource/backend"
	"github.com/hotcue/framesource/internal/ticks"
)

// granuleFrames is the MP3 frame length in PCM frames.
const granuleFrames = 1152

// blockFrames is how many PCM frames one ReadNextBlock pulls: four
// granules, a compromise between call overhead and read-ahead size.
const blockFrames = 4 * granuleFrames

// bytesPerFrame is go-mp3's fixed output layout: interleaved stereo,
// 16-bit little-endian.
const bytesPerFrame = 4

func init() {
	backend.Register("mp3", open)
}

type decoder struct {
	f        *os.File
	d        *mp3.Decoder
	outChans int
	pos      int64 // PCM frame index of the next decoded frame
	total    int64
	bitrate  int
	released bool
}

func open(locator string) (backend.Decoder, error) {
	f, err := os.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("mp3file: %w", err)
	}
	d, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mp3file: %w", err)
	}

	length := d.Length()
	if length < 0 {
		f.Close()
		return nil, fmt.Errorf("mp3file: stream length unavailable")
	}
	total := length / bytesPerFrame

	bitrate := 0
	if fi, err := f.Stat(); err == nil && total > 0 {
		bitrate = int(fi.Size() * 8 * int64(d.SampleRate()) / total / 1000)
	}

	return &decoder{
		f:        f,
		d:        d,
		outChans: 2,
		total:    total,
		bitrate:  bitrate,
	}, nil
}

func (d *decoder) NegotiateFormat(req backend.FormatRequest) (backend.Format, error) {
	if req.SampleRate != 0 && req.SampleRate != d.d.SampleRate() {
		return backend.Format{}, fmt.Errorf("mp3file: cannot resample %d Hz to %d Hz", d.d.SampleRate(), req.SampleRate)
	}
	switch req.ChannelCount {
	case 0, 2:
		d.outChans = 2
	case 1:
		d.outChans = 1
	default:
		return backend.Format{}, fmt.Errorf("mp3file: unsupported channel count %d", req.ChannelCount)
	}
	return backend.Format{
		ChannelCount:   d.outChans,
		SampleRate:     d.d.SampleRate(),
		BitrateKbps:    d.bitrate,
		BlockSize:      blockFrames * d.outChans,
		PrefetchFrames: 2 * granuleFrames,
	}, nil
}

func (d *decoder) Duration() (int64, error) {
	return ticks.FromSamples(d.d.SampleRate(), d.total), nil
}

func (d *decoder) ReadNextBlock() (backend.Block, error) {
	if d.released {
		return backend.Block{}, fmt.Errorf("mp3file: decoder released")
	}

	buf := make([]byte, blockFrames*bytesPerFrame)
	filled := 0
	for filled < len(buf) {
		n, err := d.d.Read(buf[filled:])
		filled += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return backend.Block{}, fmt.Errorf("mp3file: read: %w", err)
		}
	}
	frames := filled / bytesPerFrame
	if frames == 0 {
		return backend.Block{}, io.EOF
	}

	samples := make([]float32, frames*d.outChans)
	for i := 0; i < frames; i++ {
		left := float32(int16(uint16(buf[i*4])|uint16(buf[i*4+1])<<8)) / 32768
		right := float32(int16(uint16(buf[i*4+2])|uint16(buf[i*4+3])<<8)) / 32768
		if d.outChans == 1 {
			samples[i] = (left + right) / 2
		} else {
			samples[2*i] = left
			samples[2*i+1] = right
		}
	}

	block := backend.Block{
		Samples:   samples,
		Timestamp: ticks.FromSamples(d.d.SampleRate(), d.pos),
	}
	d.pos += int64(frames)
	return block, nil
}

func (d *decoder) SeekApprox(t int64) error {
	if d.released {
		return fmt.Errorf("mp3file: decoder released")
	}
	frame := ticks.ToSamples(d.d.SampleRate(), t)
	frame -= frame % granuleFrames
	if _, err := d.d.Seek(frame*bytesPerFrame, io.SeekStart); err != nil {
		return fmt.Errorf("mp3file: seek: %w", err)
	}
	d.pos = frame
	return nil
}

func (d *decoder) Release() {
	if d.released {
		return
	}
	d.released = true
	d.f.Close()
}
