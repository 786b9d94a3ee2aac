// Package analyze contains the analysis-side consumers of a decode
// session: spectrum snapshots at arbitrary positions and whole-stream
// waveform overviews. Both rely on the engine's determinism guarantee
// (reading the same frame range twice yields identical samples), so
// their results are stable under scrubbing.
package analyze

import (
	"fmt"
	"math"

	"github.com/argusdusty/gofft"

	framesource "github.com/hotcue/framesource"
)

// Source is the slice of a decode session the analyzers need.
// *framesource.Session satisfies it.
type Source interface {
	ReadFrames(r framesource.IndexRange) (framesource.IndexRange, []float32, error)
	FrameIndexRange() framesource.IndexRange
	ChannelCount() int
}

// Spectrum computes the magnitude spectrum of a Hann-windowed block of
// window frames starting at frame index at. Channels are mixed down to
// mono before the transform. window must be a power of two. The result
// holds window/2 magnitudes for the positive frequencies.
func Spectrum(src Source, at int64, window int) ([]float64, error) {
	if window < 2 || window&(window-1) != 0 {
		return nil, fmt.Errorf("analyze: window size %d is not a power of two", window)
	}

	delivered, samples, err := src.ReadFrames(framesource.Forward(at, int64(window)))
	if err != nil {
		return nil, fmt.Errorf("analyze: read frames at %d: %w", at, err)
	}

	channels := src.ChannelCount()
	mono := make([]float64, window) // zero-padded when the stream ends early
	for i := int64(0); i < delivered.Length(); i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(samples[i*int64(channels)+int64(ch)])
		}
		mono[i] = sum / float64(channels)
	}

	// Hann window
	for i := range mono {
		mono[i] *= 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(window-1)))
	}

	if err := gofft.Prepare(window); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	coeffs := gofft.Float64ToComplex128Array(mono)
	if err := gofft.FFT(coeffs); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	mags := make([]float64, window/2)
	for i := range mags {
		mags[i] = math.Hypot(real(coeffs[i]), imag(coeffs[i]))
	}
	return mags, nil
}

// Extent is the sample amplitude range seen within one overview bucket.
type Extent struct {
	Min float32
	Max float32
}

// Overview reduces the whole stream to buckets min/max extents across
// all channels, the shape a waveform display scrubs over.
func Overview(src Source, buckets int) ([]Extent, error) {
	if buckets < 1 {
		return nil, fmt.Errorf("analyze: bucket count %d", buckets)
	}
	full := src.FrameIndexRange()
	out := make([]Extent, buckets)

	for b := 0; b < buckets; b++ {
		start := full.Start + full.Length()*int64(b)/int64(buckets)
		end := full.Start + full.Length()*int64(b+1)/int64(buckets)
		delivered, samples, err := src.ReadFrames(framesource.Between(start, end))
		if err != nil {
			return nil, fmt.Errorf("analyze: read bucket %d: %w", b, err)
		}
		if delivered.Empty() {
			continue
		}
		ext := Extent{Min: samples[0], Max: samples[0]}
		for _, s := range samples {
			if s < ext.Min {
				ext.Min = s
			}
			if s > ext.Max {
				ext.Max = s
			}
		}
		out[b] = ext
	}
	return out, nil
}
