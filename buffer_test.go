package framesource

import "testing"

func fillSequence(dst []float32, start int) {
	for i := range dst {
		dst[i] = float32(start + i)
	}
}

func TestReadAheadBuffer_FifoOrder(t *testing.T) {
	buf := newReadAheadBuffer(16)

	fillSequence(buf.write(8), 0)
	fillSequence(buf.write(4), 8)

	if got := buf.readableLength(); got != 12 {
		t.Fatalf("readableLength = %d, want 12", got)
	}

	first := buf.readFifo(5)
	if len(first) != 5 || first[0] != 0 || first[4] != 4 {
		t.Errorf("first read = %v, want [0 1 2 3 4]", first)
	}

	second := buf.readFifo(100)
	if len(second) != 7 || second[0] != 5 || second[6] != 11 {
		t.Errorf("second read = %v, want [5 .. 11]", second)
	}

	if got := buf.readableLength(); got != 0 {
		t.Errorf("readableLength after drain = %d, want 0", got)
	}
}

func TestReadAheadBuffer_GrowthPreservesUnread(t *testing.T) {
	buf := newReadAheadBuffer(8)

	fillSequence(buf.write(6), 0)
	buf.readFifo(2) // leave [2..5]

	// Forcing growth must keep the unread samples readable in order.
	fillSequence(buf.write(30), 6)

	if got := buf.capacity(); got < 34 {
		t.Errorf("capacity after growth = %d, want >= 34", got)
	}
	if got := buf.capacity(); got != 64 {
		t.Errorf("capacity after growth = %d, want 64 (doubled from 8)", got)
	}

	out := buf.readFifo(34)
	if len(out) != 34 {
		t.Fatalf("read %d samples, want 34", len(out))
	}
	for i, v := range out {
		if v != float32(i+2) {
			t.Fatalf("out[%d] = %v, want %d", i, v, i+2)
		}
	}
}

func TestReadAheadBuffer_CompactsWithoutGrowth(t *testing.T) {
	buf := newReadAheadBuffer(8)

	fillSequence(buf.write(8), 0)
	buf.readFifo(6) // leave [6 7] at the back

	// 4 more samples fit the capacity but not the tail space; the buffer
	// must compact instead of growing.
	fillSequence(buf.write(4), 8)
	if got := buf.capacity(); got != 8 {
		t.Errorf("capacity = %d, want 8 (no growth needed)", got)
	}

	out := buf.readFifo(6)
	want := []float32{6, 7, 8, 9, 10, 11}
	for i, v := range want {
		if out[i] != v {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
}

func TestReadAheadBuffer_ClearKeepsCapacity(t *testing.T) {
	buf := newReadAheadBuffer(4)
	fillSequence(buf.write(40), 0)

	grown := buf.capacity()
	buf.clear()

	if got := buf.readableLength(); got != 0 {
		t.Errorf("readableLength after clear = %d, want 0", got)
	}
	if got := buf.capacity(); got != grown {
		t.Errorf("capacity after clear = %d, want %d", got, grown)
	}
}

func TestReadAheadBuffer_ResetsCursorsWhenDrained(t *testing.T) {
	buf := newReadAheadBuffer(8)

	// Repeated write/drain cycles must not creep the cursors forward.
	for i := 0; i < 100; i++ {
		fillSequence(buf.write(6), i)
		buf.readFifo(6)
	}
	if got := buf.capacity(); got != 8 {
		t.Errorf("capacity after drain cycles = %d, want 8", got)
	}
}
