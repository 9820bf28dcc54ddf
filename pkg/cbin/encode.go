package cbin

import (
	"bytes"
	"context"
	"fmt"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// TokenTableOffset returns the absolute offset at which the token table of
// sections will be written: the preamble, the section count, one record per
// section and, for every section that has keys, its key records, one
// trailing stop block and the value records of those keys.
func TokenTableOffset(sections []Section) int32 {
	offset := HeaderSize + 4
	for _, s := range sections {
		offset += recordSize
		if len(s.Keys) == 0 {
			continue
		}
		for _, k := range s.Keys {
			offset += recordSize + recordSize*len(k.Values)
		}
		offset += recordSize // stop block
	}
	return int32(offset)
}

// EncodeHeader builds the preamble for doc. Offset and count fields are
// recomputed; the opaque fields are replayed from doc.Header, or taken from
// the codec's placeholders when doc has no header of its own.
func (c *Codec) EncodeHeader(doc *Document) Header {
	h := doc.Header
	if h.Magic != Magic {
		h = c.placeholderHeader()
	}
	h.Magic = Magic
	h.TokenTableOffset = TokenTableOffset(doc.Sections)
	h.TokenCount = int32(doc.Tokens.Len())
	return h
}

// EncodeBody returns the preamble and the unencrypted body for doc.
func (c *Codec) EncodeBody(doc *Document) (Header, []byte, error) {
	header := c.EncodeHeader(doc)

	var buf bytes.Buffer
	buf.Grow(int(header.TokenTableOffset) - HeaderSize + doc.Tokens.tokenSize())
	writer := kaitai.NewWriter(&buf)

	if err := writer.WriteS4le(int32(len(doc.Sections))); err != nil {
		return Header{}, nil, fmt.Errorf("writing section count: %w", err)
	}
	for i, s := range doc.Sections {
		if err := writeRecord(writer, s.TitleIndex, int32(len(s.Keys))); err != nil {
			return Header{}, nil, fmt.Errorf("writing section %d: %w", i, err)
		}
	}
	for i, s := range doc.Sections {
		if len(s.Keys) == 0 {
			continue
		}
		for j, k := range s.Keys {
			if err := writeRecord(writer, k.TitleIndex, int32(len(k.Values))); err != nil {
				return Header{}, nil, fmt.Errorf("writing key %d of section %d: %w", j, i, err)
			}
		}
		if err := writeRecord(writer, 0, 0); err != nil {
			return Header{}, nil, fmt.Errorf("writing stop block of section %d: %w", i, err)
		}
	}
	for i, s := range doc.Sections {
		for j, k := range s.Keys {
			for n, v := range k.Values {
				if err := writeRecord(writer, v.Raw, int32(v.Type)); err != nil {
					return Header{}, nil, fmt.Errorf("writing value %d of key %d in section %d: %w", n, j, i, err)
				}
			}
		}
	}
	if err := doc.Tokens.write(writer); err != nil {
		return Header{}, nil, fmt.Errorf("writing token table: %w", err)
	}

	return header, buf.Bytes(), nil
}

func writeRecord(writer *kaitai.Writer, first, second int32) error {
	if err := writer.WriteS4le(first); err != nil {
		return err
	}
	return writer.WriteS4le(second)
}

// Encode returns the complete file for doc: the preamble followed by the
// encrypted body.
func (c *Codec) Encode(ctx context.Context, doc *Document) ([]byte, error) {
	header, body, err := c.EncodeBody(doc)
	if err != nil {
		return nil, err
	}
	return c.seal(ctx, header, body)
}

// seal encrypts body and prepends the preamble.
func (c *Codec) seal(ctx context.Context, header Header, body []byte) ([]byte, error) {
	encrypted, err := Transform(body, c.options.key)
	if err != nil {
		return nil, err
	}
	preamble, err := header.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(preamble)+len(encrypted))
	out = append(out, preamble...)
	out = append(out, encrypted...)
	c.logger.DebugContext(ctx, "Encoded CBIN file", "size", len(out), "token_count", header.TokenCount, "token_table_offset", header.TokenTableOffset)
	return out, nil
}
