// Package wire implements the length-prefixed binary framing and tagged
// message codec described in spec §4.1: every frame is a 64-bit
// little-endian byte count followed by that many bytes of payload. The
// payload itself is a CBOR encoding of a tagged message value. CBOR writes
// multi-byte integers big-endian, in the shortest form that holds each
// value, so only the length prefix is little-endian; the encoding does not
// depend on whether either side is a 32- or 64-bit build. Marshal allocates
// a fresh byte slice for every encoded message, so encoding is not
// allocation-free.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sammck-go/abibridge/pkg/bridgeerr"
)

// lengthPrefixSize is the size in bytes of the frame's length prefix.
// Mandatory 64-bit even on 32-bit builds, per §4.1.
const lengthPrefixSize = 8

// WriteFrame writes a length-prefixed frame containing payload to w. It
// performs exactly one Write for the header and one for the body so that,
// on a stream socket, no other frame can be interleaved between them as
// long as the caller holds the socket's send lock.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [lengthPrefixSize]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(payload)))
	if _, err := io.WriteString(w, string(hdr[:])); err != nil {
		return fmt.Errorf("%w: writing frame header: %s", bridgeerr.Transport, err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("%w: writing frame body: %s", bridgeerr.Transport, err)
		}
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r into scratch, growing it
// as needed, and returns the payload slice (aliasing scratch's storage --
// callers that need to retain it across the next ReadFrame must copy it).
func ReadFrame(r io.Reader, scratch *Buffer) ([]byte, error) {
	var hdr [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: reading frame header: %s", bridgeerr.Transport, err)
	}
	size := binary.LittleEndian.Uint64(hdr[:])
	buf := scratch.Grow(int(size))
	if size > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: reading frame body: %s", bridgeerr.Transport, err)
		}
	}
	return buf, nil
}
