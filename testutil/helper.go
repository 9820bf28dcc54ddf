// Package testutil builds raw CBIN bodies and compares decoded documents in tests.
package testutil

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/twinfer/cbin-plugin/pkg/cbin"
)

// BodyBuilder assembles a decrypted CBIN body field by field.
type BodyBuilder struct {
	t      testing.TB
	buf    bytes.Buffer
	writer *kaitai.Writer
}

// NewBodyBuilder returns an empty builder.
func NewBodyBuilder(t testing.TB) *BodyBuilder {
	t.Helper()
	b := &BodyBuilder{t: t}
	b.writer = kaitai.NewWriter(&b.buf)
	return b
}

// Int32 appends a little-endian int32.
func (b *BodyBuilder) Int32(v int32) *BodyBuilder {
	b.t.Helper()
	if err := b.writer.WriteS4le(v); err != nil {
		b.t.Fatalf("writing int32: %v", err)
	}
	return b
}

// Record appends an 8-byte record.
func (b *BodyBuilder) Record(first, second int32) *BodyBuilder {
	return b.Int32(first).Int32(second)
}

// StopBlock appends the all-zero record that ends a key list.
func (b *BodyBuilder) StopBlock() *BodyBuilder {
	return b.Record(0, 0)
}

// Float appends a value record holding f.
func (b *BodyBuilder) Float(f float32) *BodyBuilder {
	return b.Record(int32(math.Float32bits(f)), int32(cbin.TypeFloat))
}

// Tokens appends NUL-terminated strings.
func (b *BodyBuilder) Tokens(tokens ...string) *BodyBuilder {
	b.t.Helper()
	for _, s := range tokens {
		if err := b.writer.WriteBytes(append([]byte(s), 0)); err != nil {
			b.t.Fatalf("writing token: %v", err)
		}
	}
	return b
}

// Len returns the number of bytes written so far.
func (b *BodyBuilder) Len() int { return b.buf.Len() }

// Bytes returns a copy of the body.
func (b *BodyBuilder) Bytes() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// File returns a complete encrypted file: the header for a body whose token
// table starts at tokenOffset (a body offset) followed by the encrypted body.
func File(t testing.TB, body []byte, tokenOffset, tokenCount int, key []byte) []byte {
	t.Helper()
	h := cbin.Header{
		Magic:            cbin.Magic,
		TokenTableOffset: int32(tokenOffset + cbin.HeaderSize),
		OpaqueField:      cbin.DefaultOpaqueField,
		TokenCount:       int32(tokenCount),
		OpaqueTrailer:    cbin.DefaultOpaqueTrailer,
	}
	preamble, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("marshaling header: %v", err)
	}
	encrypted, err := cbin.Transform(body, key)
	if err != nil {
		t.Fatalf("encrypting body: %v", err)
	}
	return append(preamble, encrypted...)
}

// DocumentOptions compares the decoded structure of two documents, ignoring
// the raw body and diagnostics and treating nil and empty slices alike.
var DocumentOptions = cmp.Options{
	cmpopts.IgnoreFields(cbin.Document{}, "Body", "Diagnostics"),
	cmpopts.EquateEmpty(),
}

// StructureOptions additionally ignores the header and the recorded counts,
// for comparing documents that took different routes (decode vs import).
var StructureOptions = cmp.Options{
	cmpopts.IgnoreFields(cbin.Document{}, "Body", "Diagnostics", "Header"),
	cmpopts.IgnoreFields(cbin.Section{}, "Count"),
	cmpopts.IgnoreFields(cbin.Key{}, "Count"),
	cmpopts.EquateEmpty(),
}
