// Package aacfile decodes ADTS AAC streams through the pure Go FAAD2
// port. Seeking repositions to ADTS frame boundaries via the open-time
// frame table and is therefore approximate, which is exactly the contract
// the engine's prefetch discipline expects; the AAC encoder delay of 2112
// frames is reported as the prefetch window. The filter bank's overlap-add
// additionally delays decoder output by one raw block, so each decode call
// emits the samples of the previously fed frame.
package aacfile

import (
	"fmt"
	"io"
	"os"
	"sort"

	aac "github.com/llehouerou/go-aac"

	"github.com/hotcue/framesource/backend"
	"github.com/hotcue/framesource/internal/ticks"
)

// "It must also be assumed that without an explicit value, the playback
// system will trim 2112 samples from the AAC decoder output when starting
// playback from any point in the bitstream."
// https://developer.apple.com/library/ios/technotes/tn2258/_index.html
const prefetchFrames = 2112

func init() {
	backend.Register("aac", open)
	backend.Register("adts", open)
}

// aacCodec is the slice of the FAAD2 port the decoder needs. Satisfied
// by *aac.Decoder.
type aacCodec interface {
	DecodeFloat(buffer []byte) ([]float32, *aac.FrameInfo, error)
	PostSeekReset(frame int64)
	Close()
}

type decoder struct {
	data       []byte
	frames     []adtsFrame
	next       int
	dec        aacCodec
	resync     bool // next decode output is stale or empty, drop it
	sampleRate int
	channels   int // channels in the stream
	outChans   int // channels after negotiation
	total      int64
	bitrate    int
	released   bool
}

func open(locator string) (backend.Decoder, error) {
	data, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("aacfile: %w", err)
	}

	frames, sampleRate, channels, err := scanADTS(data)
	if err != nil {
		return nil, err
	}

	total := streamLength(frames)
	if total == 0 {
		return nil, fmt.Errorf("aacfile: stream shorter than the decoder delay")
	}

	dec := aac.NewDecoder()
	if _, _, err := dec.SimpleInit(data); err != nil {
		dec.Close()
		return nil, fmt.Errorf("aacfile: decoder init: %w", err)
	}

	bitrate := 0
	last := frames[len(frames)-1]
	if encoded := last.firstFrame + last.numFrames; encoded > 0 {
		bitrate = int(int64(len(data)) * 8 * int64(sampleRate) / encoded / 1000)
	}

	return &decoder{
		data:       data,
		frames:     frames,
		dec:        dec,
		resync:     true,
		sampleRate: sampleRate,
		channels:   channels,
		outChans:   channels,
		total:      total,
		bitrate:    bitrate,
	}, nil
}

// streamLength is the decodable frame count. The overlap-add delay of one
// raw block means the last fed block's samples are never emitted.
func streamLength(frames []adtsFrame) int64 {
	last := frames[len(frames)-1]
	n := last.firstFrame + last.numFrames - samplesPerRawBlock
	if n < 0 {
		n = 0
	}
	return n
}

func (d *decoder) NegotiateFormat(req backend.FormatRequest) (backend.Format, error) {
	if req.SampleRate != 0 && req.SampleRate != d.sampleRate {
		return backend.Format{}, fmt.Errorf("aacfile: cannot resample %d Hz to %d Hz", d.sampleRate, req.SampleRate)
	}
	switch {
	case req.ChannelCount == 0 || req.ChannelCount == d.channels:
		d.outChans = d.channels
	case req.ChannelCount == 1 && d.channels == 2:
		d.outChans = 1
	case req.ChannelCount == 2 && d.channels == 1:
		d.outChans = 2
	default:
		return backend.Format{}, fmt.Errorf("aacfile: cannot map %d channels to %d", d.channels, req.ChannelCount)
	}

	maxBlock := int64(0)
	for _, fr := range d.frames {
		if fr.numFrames > maxBlock {
			maxBlock = fr.numFrames
		}
	}
	return backend.Format{
		ChannelCount:   d.outChans,
		SampleRate:     d.sampleRate,
		BitrateKbps:    d.bitrate,
		BlockSize:      int(maxBlock) * d.outChans,
		PrefetchFrames: prefetchFrames,
	}, nil
}

func (d *decoder) Duration() (int64, error) {
	return ticks.FromSamples(d.sampleRate, d.total), nil
}

func (d *decoder) ReadNextBlock() (backend.Block, error) {
	if d.released {
		return backend.Block{}, fmt.Errorf("aacfile: decoder released")
	}
	for d.next < len(d.frames) {
		fr := d.frames[d.next]
		payload := d.data[fr.offset : fr.offset+int64(fr.size)]
		d.next++

		samples, _, err := d.dec.DecodeFloat(payload)
		if err != nil {
			return backend.Block{}, fmt.Errorf("aacfile: decode frame at offset %d: %w", fr.offset, err)
		}
		// The first decode after init or a reposition carries no usable
		// output: an empty slice on a fresh decoder, stale overlap
		// content after a seek.
		if d.resync {
			d.resync = false
			continue
		}
		if len(samples) == 0 {
			continue
		}
		// Overlap-add: this call emitted the previously fed block.
		return backend.Block{
			Samples:   remap(samples, d.channels, d.outChans),
			Timestamp: ticks.FromSamples(d.sampleRate, fr.firstFrame-samplesPerRawBlock),
		}, nil
	}
	return backend.Block{}, io.EOF
}

func (d *decoder) SeekApprox(t int64) error {
	if d.released {
		return fmt.Errorf("aacfile: decoder released")
	}
	target := ticks.ToSamples(d.sampleRate, t)
	// First frame table entry whose span covers the target. Feeding from
	// there makes the first emitted samples land one raw block earlier,
	// at or before the target.
	i := sort.Search(len(d.frames), func(i int) bool {
		return d.frames[i].firstFrame+d.frames[i].numFrames > target
	})
	if i == len(d.frames) {
		i = len(d.frames) - 1
	}
	d.next = i
	d.dec.PostSeekReset(d.frames[i].firstFrame / samplesPerRawBlock)
	d.resync = true
	return nil
}

func (d *decoder) Release() {
	if d.released {
		return
	}
	d.released = true
	d.dec.Close()
	d.data = nil
}

// remap converts the decoder's interleaved channel layout to the
// negotiated one: stereo is averaged down to mono, mono duplicated up to
// stereo.
func remap(in []float32, from, to int) []float32 {
	if from == to {
		return in
	}
	if from == 2 && to == 1 {
		out := make([]float32, len(in)/2)
		for i := range out {
			out[i] = (in[2*i] + in[2*i+1]) / 2
		}
		return out
	}
	// mono to stereo
	out := make([]float32, len(in)*2)
	for i, s := range in {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}
