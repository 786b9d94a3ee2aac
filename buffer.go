package framesource

// readAheadBuffer holds decoded samples that have not yet been delivered
// to the caller. It bridges the decoder's opaque block boundaries and the
// caller's arbitrary read lengths.
//
// Capacity starts at the negotiated block size and only ever grows, by
// doubling, so it stays a power-of-two multiple of that block size.
// Consumption is strictly FIFO.
type readAheadBuffer struct {
	data []float32
	head int
	tail int
}

func newReadAheadBuffer(capacity int) *readAheadBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &readAheadBuffer{data: make([]float32, capacity)}
}

// readableLength returns the number of buffered, unread samples.
func (b *readAheadBuffer) readableLength() int {
	return b.tail - b.head
}

func (b *readAheadBuffer) capacity() int {
	return len(b.data)
}

// clear discards all buffered samples without changing capacity.
func (b *readAheadBuffer) clear() {
	b.head = 0
	b.tail = 0
}

// write reserves space for n samples and returns the slice to fill.
// The buffer grows (doubling) until the unread content plus n fits;
// unread samples are preserved across growth and relocation.
func (b *readAheadBuffer) write(n int) []float32 {
	need := b.readableLength() + n
	if need > len(b.data) {
		b.grow(need)
	}
	if b.tail+n > len(b.data) {
		// Not enough room at the end; move unread samples to the front.
		copy(b.data, b.data[b.head:b.tail])
		b.tail -= b.head
		b.head = 0
	}
	out := b.data[b.tail : b.tail+n]
	b.tail += n
	return out
}

// readFifo returns up to maxSamples of the oldest buffered samples and
// advances the read cursor. The returned slice aliases internal storage
// and is only valid until the next write.
func (b *readAheadBuffer) readFifo(maxSamples int) []float32 {
	n := b.readableLength()
	if n > maxSamples {
		n = maxSamples
	}
	out := b.data[b.head : b.head+n]
	b.head += n
	if b.head == b.tail {
		b.head = 0
		b.tail = 0
	}
	return out
}

func (b *readAheadBuffer) grow(need int) {
	newCap := len(b.data)
	for newCap < need {
		newCap *= 2
	}
	data := make([]float32, newCap)
	copy(data, b.data[b.head:b.tail])
	b.tail -= b.head
	b.head = 0
	b.data = data
}
