package cbin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// recordSize is the width of section, key and value records.
const recordSize = 8

// errMissingStopBlock is recorded when a key list runs off the end of the body.
var errMissingStopBlock = errors.New("key list has no stop block")

// recordReader walks the flat record stream of a decrypted body. Every read
// advances the cursor by the full record width, even when it fails, so a bad
// record does not stall the scan.
type recordReader struct {
	stream *kaitai.Stream
	size   int64
	pos    int64
}

func newRecordReader(body []byte) *recordReader {
	return &recordReader{
		stream: kaitai.NewStream(bytes.NewReader(body)),
		size:   int64(len(body)),
	}
}

// fileOffset converts a body position to an absolute file offset.
func fileOffset(pos int64) int64 { return pos + HeaderSize }

func (r *recordReader) atEnd() bool { return r.pos >= r.size }

func (r *recordReader) readInt32() (int32, error) {
	start := r.pos
	r.pos += 4
	if start+4 > r.size {
		return 0, io.ErrUnexpectedEOF
	}
	if _, err := r.stream.Seek(start, io.SeekStart); err != nil {
		return 0, err
	}
	return r.stream.ReadS4le()
}

func (r *recordReader) readRecord() (int32, int32, error) {
	start := r.pos
	r.pos += recordSize
	if start+recordSize > r.size {
		return 0, 0, fmt.Errorf("%w: record needs %d bytes, %d remain", io.ErrUnexpectedEOF, recordSize, max(r.size-start, 0))
	}
	if _, err := r.stream.Seek(start, io.SeekStart); err != nil {
		return 0, 0, err
	}
	first, err := r.stream.ReadS4le()
	if err != nil {
		return 0, 0, err
	}
	second, err := r.stream.ReadS4le()
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

// Decode decrypts and decodes a CBIN file. Only a missing magic or a short
// preamble are returned as errors; damage inside the body is recorded in the
// document's Diagnostics and clears Success.
func (c *Codec) Decode(ctx context.Context, data []byte) (*Document, error) {
	if !IsContainer(data) {
		return nil, ErrNotAContainer
	}
	header, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	body, err := Transform(data[HeaderSize:], c.options.key)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Header:  header,
		Body:    body,
		Success: true,
	}
	c.logger.DebugContext(ctx, "Decoding CBIN body", "body_size", len(body), "token_count", header.TokenCount, "token_table_offset", header.TokenTableOffset)

	tokens, err := DecodeTokens(body, header)
	if err != nil {
		c.fail(ctx, doc, &RecordError{Stage: StageTokens, Offset: int64(header.TokenTableOffset), Err: err})
	}
	if tokens == nil {
		tokens = NewTokenTable()
	}
	doc.Tokens = tokens

	c.decodeTree(ctx, doc)
	return doc, nil
}

// fail records a recovered record error.
func (c *Codec) fail(ctx context.Context, doc *Document, rerr *RecordError) {
	doc.Success = false
	doc.Diagnostics = append(doc.Diagnostics, rerr)
	c.logger.WarnContext(ctx, "Recovered from CBIN record error", "stage", rerr.Stage, "index", rerr.Index, "offset", fmt.Sprintf("0x%X", rerr.Offset), "error", rerr.Err)
}

// decodeTree runs the section, key and value passes over one shared cursor.
func (c *Codec) decodeTree(ctx context.Context, doc *Document) {
	r := newRecordReader(doc.Body)

	count, err := r.readInt32()
	if err != nil {
		c.fail(ctx, doc, &RecordError{Stage: StageSectionCount, Offset: fileOffset(0), Err: err})
		return
	}
	if count < 0 {
		c.fail(ctx, doc, &RecordError{Stage: StageSectionCount, Offset: fileOffset(0), Err: fmt.Errorf("negative section count %d", count)})
		return
	}

	sections := c.decodeSections(ctx, doc, r, int(count))
	c.logger.DebugContext(ctx, "Decoded CBIN sections", "sections", len(sections), "offset", fmt.Sprintf("0x%X", fileOffset(r.pos)))

	c.decodeKeys(ctx, doc, r, sections)
	c.logger.DebugContext(ctx, "Decoded CBIN keys", "offset", fmt.Sprintf("0x%X", fileOffset(r.pos)))

	c.decodeValues(ctx, doc, r, sections)
	c.logger.DebugContext(ctx, "Decoded CBIN values", "offset", fmt.Sprintf("0x%X", fileOffset(r.pos)))

	if doc.Success && fileOffset(r.pos) != int64(doc.Header.TokenTableOffset) {
		c.logger.DebugContext(ctx, "Record stream does not end at the token table", "end", fileOffset(r.pos), "token_table_offset", doc.Header.TokenTableOffset)
	}
	doc.Sections = sections
}

func (c *Codec) decodeSections(ctx context.Context, doc *Document, r *recordReader, count int) []Section {
	sections := make([]Section, 0, min(count, int(r.size/recordSize)))
	for i := 0; i < count; i++ {
		offset := fileOffset(r.pos)
		title, keys, err := r.readRecord()
		if err != nil {
			// every later section record lies further past the end
			c.fail(ctx, doc, &RecordError{Stage: StageSection, Index: i, Offset: offset, Err: err})
			break
		}
		sections = append(sections, Section{
			Title:      doc.Tokens.Resolve(title),
			TitleIndex: title,
			Count:      keys,
		})
	}
	return sections
}

func (c *Codec) decodeKeys(ctx context.Context, doc *Document, r *recordReader, sections []Section) {
	for i := range sections {
		if sections[i].Count <= 0 {
			continue
		}

		var keys []Key
		truncated := false
		for {
			if r.atEnd() {
				if !truncated {
					c.fail(ctx, doc, &RecordError{Stage: StageKey, Index: len(keys), Offset: fileOffset(r.pos), Err: errMissingStopBlock})
				}
				sections[i].Keys = keys
				return
			}
			offset := fileOffset(r.pos)
			idx, values, err := r.readRecord()
			if err != nil {
				c.fail(ctx, doc, &RecordError{Stage: StageKey, Index: len(keys), Offset: offset, Err: err})
				truncated = true
				continue
			}
			if idx == 0 {
				break
			}
			keys = append(keys, Key{
				Title:      doc.Tokens.Resolve(idx),
				TitleIndex: idx,
				Count:      values,
			})
		}
		sections[i].Keys = keys
	}
}

func (c *Codec) decodeValues(ctx context.Context, doc *Document, r *recordReader, sections []Section) {
	for i := range sections {
		for j := range sections[i].Keys {
			key := &sections[i].Keys[j]
			for n := int32(0); n < key.Count; n++ {
				offset := fileOffset(r.pos)
				raw, tag, err := r.readRecord()
				if err != nil {
					c.fail(ctx, doc, &RecordError{Stage: StageValue, Index: int(n), Offset: offset, Err: err})
					if r.atEnd() {
						return
					}
					continue
				}
				key.Values = append(key.Values, decodeValue(raw, ValueType(tag), doc.Tokens))
			}
		}
	}
}

func decodeValue(raw int32, tag ValueType, tokens TokenTable) Value {
	v := Value{Type: tag, Raw: raw}
	if tag == TypeToken {
		v.Text = tokens.Resolve(raw)
	}
	return v
}
