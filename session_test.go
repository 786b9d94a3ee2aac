package framesource

import (
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/hotcue/framesource/backend"
	"github.com/hotcue/framesource/internal/ticks"
)

// fakeDecoder produces a deterministic sample stream: the sample for
// frame f on channel c is float32(f*channels + c). Native seeks land
// seekSlip frames before the requested position, mimicking a decoder
// that can only resume at an earlier sync point.
type fakeDecoder struct {
	format     backend.Format
	total      int64 // total frames in the stream
	blockSize  int64 // frames per decoded block
	pos        int64 // next frame to decode
	seekSlip   int64
	failAtPos  int64 // first frame index at which decoding faults, -1 = never
	seeks      []int64
	released   bool
	blockCount int
}

func newFakeDecoder(channels, sampleRate int, total, blockSize, prefetch int64) *fakeDecoder {
	return &fakeDecoder{
		format: backend.Format{
			ChannelCount:   channels,
			SampleRate:     sampleRate,
			BlockSize:      int(blockSize) * channels,
			PrefetchFrames: prefetch,
		},
		total:     total,
		blockSize: blockSize,
		failAtPos: -1,
	}
}

func (d *fakeDecoder) sample(frame int64, ch int) float32 {
	return float32(frame*int64(d.format.ChannelCount) + int64(ch))
}

func (d *fakeDecoder) NegotiateFormat(req backend.FormatRequest) (backend.Format, error) {
	return d.format, nil
}

func (d *fakeDecoder) Duration() (int64, error) {
	return ticks.FromSamples(d.format.SampleRate, d.total), nil
}

func (d *fakeDecoder) ReadNextBlock() (backend.Block, error) {
	if d.released {
		return backend.Block{}, errors.New("fake: read after release")
	}
	if d.failAtPos >= 0 && d.pos >= d.failAtPos {
		return backend.Block{}, errors.New("fake: bitstream corrupted")
	}
	if d.pos >= d.total {
		return backend.Block{}, io.EOF
	}

	n := d.blockSize
	if d.pos+n > d.total {
		n = d.total - d.pos
	}
	samples := make([]float32, n*int64(d.format.ChannelCount))
	for f := int64(0); f < n; f++ {
		for c := 0; c < d.format.ChannelCount; c++ {
			samples[f*int64(d.format.ChannelCount)+int64(c)] = d.sample(d.pos+f, c)
		}
	}
	block := backend.Block{
		Samples:   samples,
		Timestamp: ticks.FromSamples(d.format.SampleRate, d.pos),
	}
	d.pos += n
	d.blockCount++
	return block, nil
}

func (d *fakeDecoder) SeekApprox(timestamp int64) error {
	frame := ticks.ToSamples(d.format.SampleRate, timestamp)
	d.seeks = append(d.seeks, frame)
	landed := frame - d.seekSlip
	if landed < 0 {
		landed = 0
	}
	d.pos = landed
	return nil
}

func (d *fakeDecoder) Release() {
	d.released = true
}

func openFake(t *testing.T, d *fakeDecoder) *Session {
	t.Helper()
	s, err := OpenDecoder(d, Params{})
	if err != nil {
		t.Fatalf("OpenDecoder failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func checkSamples(t *testing.T, d *fakeDecoder, r IndexRange, samples []float32) {
	t.Helper()
	channels := d.format.ChannelCount
	if want := r.Length() * int64(channels); int64(len(samples)) != want {
		t.Fatalf("got %d samples for %v, want %d", len(samples), r, want)
	}
	for f := int64(0); f < r.Length(); f++ {
		for c := 0; c < channels; c++ {
			got := samples[f*int64(channels)+int64(c)]
			if want := d.sample(r.Start+f, c); got != want {
				t.Fatalf("sample at frame %d ch %d = %v, want %v", r.Start+f, c, got, want)
			}
		}
	}
}

func TestSession_FrameIndexRange(t *testing.T) {
	// 10 seconds of mono at 44.1 kHz.
	d := newFakeDecoder(1, 44100, 441000, 1024, 0)
	s := openFake(t, d)

	if got := s.FrameIndexRange(); got != Between(0, 441000) {
		t.Errorf("FrameIndexRange = %v, want [0, 441000)", got)
	}
	if got := s.ChannelCount(); got != 1 {
		t.Errorf("ChannelCount = %d, want 1", got)
	}
	if idx, known := s.Position(); !known || idx != 0 {
		t.Errorf("Position after open = (%d, %v), want (0, true)", idx, known)
	}
}

func TestSession_SequentialReads(t *testing.T) {
	d := newFakeDecoder(2, 44100, 441000, 577, 0)
	s := openFake(t, d)

	for _, r := range []IndexRange{Between(0, 1000), Between(1000, 2000), Between(2000, 2001)} {
		got, samples, err := s.ReadFrames(r)
		if err != nil {
			t.Fatalf("ReadFrames(%v) failed: %v", r, err)
		}
		if got != r {
			t.Fatalf("ReadFrames(%v) delivered %v", r, got)
		}
		checkSamples(t, d, got, samples)
	}
}

func TestSession_ForwardSkipAvoidsNativeSeek(t *testing.T) {
	d := newFakeDecoder(2, 44100, 441000, 577, 2112)
	s := openFake(t, d)

	seeksAfterOpen := len(d.seeks)

	if _, _, err := s.ReadFrames(Between(0, 1000)); err != nil {
		t.Fatalf("first read failed: %v", err)
	}

	// The 500 frame gap is within the skip-read budget; the decoder must
	// not be natively repositioned.
	got, samples, err := s.ReadFrames(Between(1500, 2500))
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	if got != Between(1500, 2500) {
		t.Fatalf("delivered %v, want [1500, 2500)", got)
	}
	checkSamples(t, d, got, samples)

	if len(d.seeks) != seeksAfterOpen {
		t.Errorf("native seeks = %d, want %d (skip-read expected)", len(d.seeks), seeksAfterOpen)
	}
}

func TestSession_BackwardSeekAnchorsBeforeTarget(t *testing.T) {
	d := newFakeDecoder(2, 44100, 441000, 1024, 2112)
	s := openFake(t, d)

	// Move well past the later target first.
	if _, _, err := s.ReadFrames(Between(100000, 100100)); err != nil {
		t.Fatalf("positioning read failed: %v", err)
	}

	seeksBefore := len(d.seeks)
	got, samples, err := s.ReadFrames(Between(50000, 50100))
	if err != nil {
		t.Fatalf("backward read failed: %v", err)
	}
	if got != Between(50000, 50100) {
		t.Fatalf("delivered %v, want [50000, 50100)", got)
	}
	checkSamples(t, d, got, samples)

	if len(d.seeks) != seeksBefore+1 {
		t.Fatalf("native seeks = %d, want %d", len(d.seeks), seeksBefore+1)
	}
	// The anchor sits one codec delay before the target.
	if anchor := d.seeks[len(d.seeks)-1]; anchor != 50000-2112 {
		t.Errorf("seek anchor = %d, want %d", anchor, 50000-2112)
	}
}

func TestSession_SeekLandingEarlyStillExact(t *testing.T) {
	d := newFakeDecoder(2, 48000, 480000, 1024, 2112)
	d.seekSlip = 300
	s := openFake(t, d)

	if _, _, err := s.ReadFrames(Between(200000, 200010)); err != nil {
		t.Fatalf("positioning read failed: %v", err)
	}

	got, samples, err := s.ReadFrames(Between(60000, 61000))
	if err != nil {
		t.Fatalf("backward read failed: %v", err)
	}
	if got != Between(60000, 61000) {
		t.Fatalf("delivered %v, want [60000, 61000)", got)
	}
	checkSamples(t, d, got, samples)
}

func TestSession_SeekResyncsWithoutPrefetch(t *testing.T) {
	// A zero prefetch window does not make the native seek exact: the
	// decoder may still land at an earlier sync point, and the landing
	// must be learned from the first block and skip-read away before any
	// samples are delivered.
	d := newFakeDecoder(2, 44100, 441000, 1024, 0)
	d.seekSlip = 300
	s := openFake(t, d)

	got, samples, err := s.ReadFrames(Between(50000, 50010))
	if err != nil {
		t.Fatalf("ReadFrames failed: %v", err)
	}
	if got != Between(50000, 50010) {
		t.Fatalf("delivered %v, want [50000, 50010)", got)
	}
	checkSamples(t, d, got, samples)

	// With no codec delay the native seek targets the frame itself.
	if anchor := d.seeks[len(d.seeks)-1]; anchor != 50000 {
		t.Errorf("seek anchor = %d, want 50000", anchor)
	}
}

func TestSession_OverlappingReadsAgree(t *testing.T) {
	d := newFakeDecoder(2, 44100, 441000, 1024, 2112)
	s := openFake(t, d)

	_, first, err := s.ReadFrames(Between(0, 1000))
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	_, second, err := s.ReadFrames(Between(500, 1500))
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}

	// Frames [500, 1000) were delivered twice and must be identical.
	ch := s.ChannelCount()
	overlapA := first[500*ch:]
	overlapB := second[:500*ch]
	for i := range overlapA {
		if overlapA[i] != overlapB[i] {
			t.Fatalf("overlap sample %d differs: %v != %v", i, overlapA[i], overlapB[i])
		}
	}

	// Both reads match a single contiguous pass over the same frames.
	d2 := newFakeDecoder(2, 44100, 441000, 1024, 2112)
	s2 := openFake(t, d2)
	_, contiguous, err := s2.ReadFrames(Between(0, 1500))
	if err != nil {
		t.Fatalf("contiguous read failed: %v", err)
	}
	for i := range first {
		if first[i] != contiguous[i] {
			t.Fatalf("sample %d differs from the contiguous read: %v != %v", i, first[i], contiguous[i])
		}
	}
	for i := range second {
		if second[i] != contiguous[500*ch+i] {
			t.Fatalf("sample %d of the second read differs from the contiguous read: %v != %v",
				i, second[i], contiguous[500*ch+i])
		}
	}
}

func TestSession_DeterministicAfterSeekAway(t *testing.T) {
	d := newFakeDecoder(2, 44100, 441000, 1024, 2112)
	s := openFake(t, d)

	r := Between(500, 1500)
	_, first, err := s.ReadFrames(r)
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}

	if _, _, err := s.ReadFrames(Between(300000, 300100)); err != nil {
		t.Fatalf("intermediate read failed: %v", err)
	}

	_, second, err := s.ReadFrames(r)
	if err != nil {
		t.Fatalf("repeat read failed: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sample %d differs after seek away and back: %v != %v", i, first[i], second[i])
		}
	}
}

func TestSession_ReadClampsToStream(t *testing.T) {
	d := newFakeDecoder(1, 44100, 441000, 1024, 0)
	s := openFake(t, d)

	got, samples, err := s.ReadFrames(Between(440000, 442000))
	if err != nil {
		t.Fatalf("ReadFrames failed: %v", err)
	}
	if got != Between(440000, 441000) {
		t.Errorf("delivered %v, want [440000, 441000)", got)
	}
	checkSamples(t, d, got, samples)

	if idx, known := s.Position(); known || idx != 441000 {
		t.Errorf("Position at end = (%d, %v), want (441000, false)", idx, known)
	}

	// Entirely past the end: empty range at the clamp point, no error.
	got, samples, err = s.ReadFrames(Between(500000, 500100))
	if err != nil {
		t.Fatalf("past-end read failed: %v", err)
	}
	if !got.Empty() || len(samples) != 0 {
		t.Errorf("past-end read delivered %v (%d samples), want empty", got, len(samples))
	}
}

func TestSession_EmptyRequest(t *testing.T) {
	d := newFakeDecoder(2, 44100, 441000, 1024, 0)
	s := openFake(t, d)

	got, samples, err := s.ReadFrames(EmptyAt(123))
	if err != nil {
		t.Fatalf("empty read failed: %v", err)
	}
	if !got.Empty() || len(samples) != 0 {
		t.Errorf("empty request delivered %v (%d samples)", got, len(samples))
	}
}

func TestSession_DecoderFaultDeliversPartial(t *testing.T) {
	d := newFakeDecoder(2, 44100, 441000, 500, 0)
	s := openFake(t, d)

	if _, _, err := s.ReadFrames(Between(0, 1000)); err != nil {
		t.Fatalf("first read failed: %v", err)
	}

	d.failAtPos = 3000
	got, samples, err := s.ReadFrames(Between(1000, 6000))
	if !errors.Is(err, ErrDecoderFault) {
		t.Fatalf("err = %v, want ErrDecoderFault", err)
	}
	if got != Between(1000, 3000) {
		t.Errorf("delivered %v, want [1000, 3000)", got)
	}
	checkSamples(t, d, got, samples)
	if !d.released {
		t.Error("decoder should have been released after the fault")
	}

	// The session survives, but all further reads are empty and clean.
	got, samples, err = s.ReadFrames(Between(3000, 4000))
	if err != nil {
		t.Fatalf("read after fault failed: %v", err)
	}
	if !got.Empty() || len(samples) != 0 {
		t.Errorf("read after fault delivered %v (%d samples), want empty", got, len(samples))
	}
}

func TestSession_ReadFramesInto(t *testing.T) {
	d := newFakeDecoder(2, 44100, 441000, 1024, 0)
	s := openFake(t, d)

	out := make([]float32, 100*2)
	got, err := s.ReadFramesInto(Between(0, 1000), out)
	if err != nil {
		t.Fatalf("ReadFramesInto failed: %v", err)
	}
	// The range is clamped to the capacity of out.
	if got != Between(0, 100) {
		t.Errorf("delivered %v, want [0, 100)", got)
	}
	checkSamples(t, d, got, out)
}

func TestSession_RandomAccessMatchesSequential(t *testing.T) {
	// Whatever mix of skip-reads and native seeks a request pattern
	// triggers, every delivered range must carry exactly the samples a
	// straight sequential decode would have produced there.
	d := newFakeDecoder(2, 44100, 200000, 700, 2112)
	d.seekSlip = 123
	s := openFake(t, d)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		start := rng.Int63n(200000)
		length := 1 + rng.Int63n(4000)
		r := Forward(start, length).Intersect(s.FrameIndexRange())

		got, samples, err := s.ReadFrames(r)
		if err != nil {
			t.Fatalf("ReadFrames(%v) failed: %v", r, err)
		}
		if got != r {
			t.Fatalf("ReadFrames(%v) delivered %v", r, got)
		}
		checkSamples(t, d, got, samples)
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	before := backend.ActiveSessions()

	d := newFakeDecoder(2, 44100, 441000, 1024, 0)
	s, err := OpenDecoder(d, Params{})
	if err != nil {
		t.Fatalf("OpenDecoder failed: %v", err)
	}

	if got := backend.ActiveSessions(); got != before+1 {
		t.Errorf("ActiveSessions = %d, want %d", got, before+1)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if got := backend.ActiveSessions(); got != before {
		t.Errorf("ActiveSessions after close = %d, want %d", got, before)
	}
	if !d.released {
		t.Error("decoder was not released")
	}
}
