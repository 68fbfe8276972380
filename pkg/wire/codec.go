package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/sammck-go/abibridge/pkg/bridgeerr"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.CanonicalEncOptions()
	var err error
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("abibridge/wire: building cbor encode mode: %s", err))
	}
	decOpts := cbor.DecOptions{
		// A deserialization that doesn't consume exactly the framed bytes
		// is a codec error per spec §4.1; a strict max-size guard also
		// keeps a corrupt length prefix from driving an unbounded alloc.
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("abibridge/wire: building cbor decode mode: %s", err))
	}
}

// Marshal encodes value and returns the encoded bytes in a newly allocated
// slice.
func Marshal(value interface{}) ([]byte, error) {
	data, err := encMode.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding message: %s", bridgeerr.Codec, err)
	}
	return data, nil
}

// Unmarshal decodes data into into, failing with a codec error if decoding
// does not consume every byte of data -- the framing guarantees data is
// exactly one message, so leftover bytes mean the schemas disagree.
func Unmarshal(data []byte, into interface{}) error {
	dec := decMode.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("%w: decoding message: %s", bridgeerr.Codec, err)
	}
	if dec.NumBytesRead() != len(data) {
		return fmt.Errorf("%w: decode consumed %d of %d bytes", bridgeerr.Codec, dec.NumBytesRead(), len(data))
	}
	return nil
}

// WriteObject serializes value, copies the encoded bytes into scratch (whose
// backing array is reused across calls), and writes them to w as one framed
// message.
func WriteObject(w io.Writer, value interface{}, scratch *Buffer) error {
	data, err := Marshal(value)
	if err != nil {
		return err
	}
	buf := scratch.Grow(len(data))
	copy(buf, data)
	return WriteFrame(w, buf)
}

// ReadObject reads one framed message from r into scratch and decodes it
// into into.
func ReadObject(r io.Reader, into interface{}, scratch *Buffer) error {
	payload, err := ReadFrame(r, scratch)
	if err != nil {
		return err
	}
	return Unmarshal(payload, into)
}
