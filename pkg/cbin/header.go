package cbin

import (
	"bytes"
	"fmt"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// HeaderSize is the length of the unencrypted preamble.
const HeaderSize = 20

// Magic is the signature at the start of every CBIN file.
var Magic = [4]byte{'C', 'B', 'I', 'N'}

// Placeholder values replayed into the opaque header fields of documents
// built from text. Their meaning is unknown; these were observed in a
// shipped file that the game loads.
const (
	DefaultOpaqueField int32 = 0x8BF
)

// DefaultOpaqueTrailer is the trailer replayed for documents built from text.
var DefaultOpaqueTrailer = [4]byte{0xCE, 0x77, 0xE1, 0x01}

// Header is the 20-byte unencrypted preamble.
type Header struct {
	Magic [4]byte
	// TokenTableOffset is an absolute file offset, preamble included.
	TokenTableOffset int32
	// OpaqueField is replayed verbatim; its meaning is unknown.
	OpaqueField   int32
	TokenCount    int32
	OpaqueTrailer [4]byte
}

// IsContainer reports whether data starts with the CBIN magic. It is a cheap
// probe and does not validate anything beyond the first four bytes.
func IsContainer(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:len(Magic)], Magic[:])
}

// DecodeHeader reads the preamble from the start of data.
func DecodeHeader(data []byte) (Header, error) {
	var h Header
	if err := h.UnmarshalBinary(data); err != nil {
		return Header{}, err
	}
	return h, nil
}

// UnmarshalBinary reads the first HeaderSize bytes of data. Trailing bytes are
// ignored. The magic is not checked; use IsContainer for that.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: need %d header bytes, have %d", ErrTruncated, HeaderSize, len(data))
	}
	stream := kaitai.NewStream(bytes.NewReader(data[:HeaderSize]))

	magic, err := stream.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("reading magic: %w", err)
	}
	offset, err := stream.ReadS4le()
	if err != nil {
		return fmt.Errorf("reading token table offset: %w", err)
	}
	opaque, err := stream.ReadS4le()
	if err != nil {
		return fmt.Errorf("reading opaque field: %w", err)
	}
	count, err := stream.ReadS4le()
	if err != nil {
		return fmt.Errorf("reading token count: %w", err)
	}
	trailer, err := stream.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("reading opaque trailer: %w", err)
	}

	copy(h.Magic[:], magic)
	h.TokenTableOffset = offset
	h.OpaqueField = opaque
	h.TokenCount = count
	copy(h.OpaqueTrailer[:], trailer)
	return nil
}

// MarshalBinary returns the 20-byte preamble.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	writer := kaitai.NewWriter(buf)
	if err := h.write(writer); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h Header) write(writer *kaitai.Writer) error {
	if err := writer.WriteBytes(h.Magic[:]); err != nil {
		return fmt.Errorf("writing magic: %w", err)
	}
	if err := writer.WriteS4le(h.TokenTableOffset); err != nil {
		return fmt.Errorf("writing token table offset: %w", err)
	}
	if err := writer.WriteS4le(h.OpaqueField); err != nil {
		return fmt.Errorf("writing opaque field: %w", err)
	}
	if err := writer.WriteS4le(h.TokenCount); err != nil {
		return fmt.Errorf("writing token count: %w", err)
	}
	if err := writer.WriteBytes(h.OpaqueTrailer[:]); err != nil {
		return fmt.Errorf("writing opaque trailer: %w", err)
	}
	return nil
}
