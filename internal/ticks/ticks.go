// Package ticks holds the native time unit shared by all decoder
// backends: 100-nanosecond ticks, 10 million per second.
package ticks

// PerSecond is the native tick rate.
const PerSecond = 10_000_000

// FromSamples converts a per-channel sample position to ticks, rounding
// to nearest so the conversion inverts exactly.
func FromSamples(sampleRate int, n int64) int64 {
	return (n*PerSecond + int64(sampleRate)/2) / int64(sampleRate)
}

// ToSamples converts a tick position to a per-channel sample position,
// rounding to nearest.
func ToSamples(sampleRate int, t int64) int64 {
	return (t*int64(sampleRate) + PerSecond/2) / PerSecond
}
