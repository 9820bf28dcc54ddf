package cbin

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// outOfBoundsPrefix marks a token reference that does not resolve.
const outOfBoundsPrefix = "__OUT_OF_BOUNDS__"

// TokenTable is the interned string table. References into it are 1-based,
// so element 0 is a reserved slot that never resolves.
type TokenTable []string

// NewTokenTable builds a table whose first token has index 1.
func NewTokenTable(tokens ...string) TokenTable {
	t := make(TokenTable, 1, len(tokens)+1)
	return append(t, tokens...)
}

// Len returns the number of real tokens, excluding the reserved slot.
func (t TokenTable) Len() int {
	if len(t) == 0 {
		return 0
	}
	return len(t) - 1
}

// Lookup returns the token at the 1-based index idx.
func (t TokenTable) Lookup(idx int32) (string, bool) {
	if idx < 1 || int(idx) >= len(t) {
		return "", false
	}
	return t[idx], true
}

// Resolve returns the token at idx, or a placeholder naming the index when
// idx is 0 or outside the table.
func (t TokenTable) Resolve(idx int32) string {
	if s, ok := t.Lookup(idx); ok {
		return s
	}
	return OutOfBounds(idx)
}

// Strings returns the real tokens in index order.
func (t TokenTable) Strings() []string {
	if len(t) == 0 {
		return nil
	}
	return t[1:]
}

// OutOfBounds returns the placeholder substituted for an unresolvable index.
func OutOfBounds(idx int32) string {
	return outOfBoundsPrefix + strconv.FormatInt(int64(idx), 10)
}

// IsOutOfBounds reports whether s is a placeholder produced by Resolve.
func IsOutOfBounds(s string) bool {
	return strings.HasPrefix(s, outOfBoundsPrefix)
}

// DecodeTokens reads h.TokenCount NUL-terminated strings from the decrypted
// body. The header offset counts the preamble, which the body does not
// contain. On a truncated table the tokens read so far are returned along
// with the error; missing entries are empty.
func DecodeTokens(body []byte, h Header) (TokenTable, error) {
	if h.TokenCount < 0 {
		return nil, fmt.Errorf("negative token count %d", h.TokenCount)
	}
	rel := int64(h.TokenTableOffset) - HeaderSize
	if rel < 0 || rel > int64(len(body)) {
		return nil, fmt.Errorf("%w: token table offset 0x%X outside body of %d bytes", ErrTruncated, h.TokenTableOffset, len(body))
	}
	if remaining := int64(len(body)) - rel; int64(h.TokenCount) > remaining {
		return nil, fmt.Errorf("%w: %d tokens declared but only %d bytes remain", ErrTruncated, h.TokenCount, remaining)
	}

	stream := kaitai.NewStream(bytes.NewReader(body))
	if _, err := stream.Seek(rel, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to token table: %w", err)
	}

	table := make(TokenTable, int(h.TokenCount)+1)
	for i := 1; i < len(table); i++ {
		eof, err := stream.EOF()
		if err != nil {
			return table, fmt.Errorf("reading token %d: %w", i, err)
		}
		if eof {
			return table, fmt.Errorf("%w: token table ends after %d of %d tokens", ErrTruncated, i-1, h.TokenCount)
		}
		// The terminator is kept and stripped here: without it the runtime
		// drops the last byte of an unterminated final token.
		raw, err := stream.ReadBytesTerm(0, true, true, false)
		if err != nil {
			return table, fmt.Errorf("reading token %d: %w", i, err)
		}
		table[i] = string(bytes.TrimSuffix(raw, []byte{0}))
	}
	return table, nil
}

// MarshalBinary encodes tokens 1..N, each followed by a NUL byte.
func (t TokenTable) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.write(kaitai.NewWriter(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t TokenTable) write(writer *kaitai.Writer) error {
	for i, s := range t.Strings() {
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("token %d %q: %w", i+1, s, ErrTokenNUL)
		}
		if err := writer.WriteBytes([]byte(s)); err != nil {
			return fmt.Errorf("writing token %d: %w", i+1, err)
		}
		if err := writer.WriteU1(0); err != nil {
			return fmt.Errorf("writing token %d terminator: %w", i+1, err)
		}
	}
	return nil
}

// tokenSize is the encoded length of the table.
func (t TokenTable) tokenSize() int {
	n := 0
	for _, s := range t.Strings() {
		n += len(s) + 1
	}
	return n
}
