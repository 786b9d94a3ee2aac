package framesource

import "github.com/hotcue/framesource/internal/ticks"

// unitConverter maps between native decoder ticks (100ns units) and
// frame indices for a fixed sample rate. Both directions round to
// nearest, which keeps round-trips exact: a tick value produced by
// fromFrameIndex always maps back to the same frame index.
type unitConverter struct {
	sampleRate int
}

func newUnitConverter(sampleRate int) unitConverter {
	return unitConverter{sampleRate: sampleRate}
}

func (c unitConverter) toFrameIndex(t int64) int64 {
	return ticks.ToSamples(c.sampleRate, t)
}

func (c unitConverter) fromFrameIndex(frameIndex int64) int64 {
	return ticks.FromSamples(c.sampleRate, frameIndex)
}
