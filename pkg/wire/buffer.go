package wire

// highWaterMark is the buffer size above which Buffer.Release will shrink
// the backing array back down, per spec §3 ("shrunk if it exceeds a
// high-water mark outside the audio path"). Audio-thread buffers never
// call Release from the steady-state path, so they simply grow once and
// stay large.
const highWaterMark = 256 * 1024
const shrinkTo = 16 * 1024

// Buffer is a reusable byte scratch buffer. A Buffer is not safe for
// concurrent use; callers needing per-thread scratch (the audio-thread
// serialization path) keep one Buffer per goroutine.
type Buffer struct {
	b []byte
}

// NewBuffer returns a Buffer with no backing storage; the first use grows it.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Grow ensures the buffer has capacity for at least n bytes and returns a
// slice of exactly length n backed by that capacity. Existing contents
// beyond n are not preserved.
func (bf *Buffer) Grow(n int) []byte {
	if cap(bf.b) < n {
		bf.b = make([]byte, n)
	} else {
		bf.b = bf.b[:n]
	}
	return bf.b
}

// Bytes returns the buffer's current contents.
func (bf *Buffer) Bytes() []byte {
	return bf.b
}

// Release shrinks the backing array if it has grown past the high-water
// mark. Call this after a non-audio-path request/response completes; never
// call it between calls on the audio thread.
func (bf *Buffer) Release() {
	if cap(bf.b) > highWaterMark {
		bf.b = make([]byte, shrinkTo)
	}
}
