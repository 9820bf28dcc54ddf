package cbin_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twinfer/cbin-plugin/pkg/cbin"
	"github.com/twinfer/cbin-plugin/testutil"
)

// seal finishes a body whose records have been written: it appends the
// token table and wraps everything in an encrypted file.
func seal(t *testing.T, b *testutil.BodyBuilder, tokens ...string) []byte {
	t.Helper()
	offset := b.Len()
	b.Tokens(tokens...)
	return testutil.File(t, b.Bytes(), offset, len(tokens), cbin.DefaultKey())
}

func TestDecodeSingleEmptySection(t *testing.T) {
	b := testutil.NewBodyBuilder(t).
		Int32(1).
		Record(1, 0)
	data := seal(t, b, "Root")

	doc, err := cbin.Decode(data)
	require.NoError(t, err)

	assert.True(t, doc.Success)
	assert.Equal(t, int32(0x20), doc.Header.TokenTableOffset)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Root", doc.Sections[0].Title)
	assert.Empty(t, doc.Sections[0].Keys)
	assert.Equal(t, cbin.NewTokenTable("Root"), doc.Tokens)
	assert.Empty(t, doc.Diagnostics)
}

func TestDecodeStopBlockIsConsumed(t *testing.T) {
	b := testutil.NewBodyBuilder(t).
		Int32(1).
		Record(1, 2).
		Record(5, 0).
		Record(7, 0).
		StopBlock()
	data := seal(t, b, "S", "t2", "t3", "t4", "Five", "t6", "Seven")

	doc, err := cbin.Decode(data)
	require.NoError(t, err)
	require.True(t, doc.Success)
	require.Len(t, doc.Sections, 1)

	keys := doc.Sections[0].Keys
	require.Len(t, keys, 2)
	assert.Equal(t, int32(5), keys[0].TitleIndex)
	assert.Equal(t, "Five", keys[0].Title)
	assert.Equal(t, int32(7), keys[1].TitleIndex)
	assert.Equal(t, "Seven", keys[1].Title)
	for _, k := range keys {
		assert.NotZero(t, k.TitleIndex)
	}
}

func TestDecodeValues(t *testing.T) {
	b := testutil.NewBodyBuilder(t).
		Int32(2).
		Record(1, 1). // Graphics, 1 key
		Record(2, 0). // Empty, no keys
		Record(3, 4). // Mode, 4 values
		StopBlock().
		Record(42, int32(cbin.TypeInt)).
		Float(1.5).
		Record(4, int32(cbin.TypeToken)).
		Record(77, 9)
	data := seal(t, b, "Graphics", "Empty", "Mode", "High")

	doc, err := cbin.Decode(data)
	require.NoError(t, err)
	require.True(t, doc.Success)

	want := []cbin.Section{
		{Title: "Graphics", TitleIndex: 1, Count: 1, Keys: []cbin.Key{{
			Title: "Mode", TitleIndex: 3, Count: 4,
			Values: []cbin.Value{
				cbin.IntValue(42),
				cbin.FloatValue(1.5),
				cbin.TokenValue(4, "High"),
				{Type: 9, Raw: 77},
			},
		}}},
		{Title: "Empty", TitleIndex: 2},
	}
	if diff := cmp.Diff(want, doc.Sections, testutil.DocumentOptions); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}

	values := doc.Sections[0].Keys[0].Values
	assert.Equal(t, float32(1.5), values[1].Float())
	assert.Equal(t, [4]byte{0x00, 0x00, 0xC0, 0x3F}, values[1].RawBytes())
	assert.Equal(t, cbin.TypeInt, values[3].Kind())
	assert.Equal(t, "77", cbin.FormatValue(values[3]))
}

func TestDecodeOutOfBoundsTokensKeepSuccess(t *testing.T) {
	const tokenCount = 2
	b := testutil.NewBodyBuilder(t).
		Int32(1).
		Record(1, 1).
		Record(tokenCount+5, 2).
		StopBlock().
		Record(0, int32(cbin.TypeToken)).
		Record(99, int32(cbin.TypeToken))
	data := seal(t, b, "S", "K")

	doc, err := cbin.Decode(data)
	require.NoError(t, err)

	assert.True(t, doc.Success)
	assert.Empty(t, doc.Diagnostics)
	key := doc.Sections[0].Keys[0]
	assert.Equal(t, "__OUT_OF_BOUNDS__7", key.Title)
	assert.Equal(t, "__OUT_OF_BOUNDS__0", key.Values[0].Text)
	assert.Equal(t, "__OUT_OF_BOUNDS__99", key.Values[1].Text)
}

func TestDecodeRecoversFromTruncatedBody(t *testing.T) {
	t.Run("missing stop block", func(t *testing.T) {
		b := testutil.NewBodyBuilder(t).
			Int32(1).
			Record(1, 1).
			Record(2, 1)
		data := seal(t, b)

		doc, err := cbin.Decode(data)
		require.NoError(t, err)
		assert.False(t, doc.Success)
		require.Len(t, doc.Sections, 1)
		require.Len(t, doc.Sections[0].Keys, 1)
		assert.Empty(t, doc.Sections[0].Keys[0].Values)

		require.Len(t, doc.Diagnostics, 2)
		assert.Equal(t, cbin.StageKey, doc.Diagnostics[0].Stage)
		assert.Equal(t, cbin.StageValue, doc.Diagnostics[1].Stage)
		assert.ErrorIs(t, doc.Diagnostics[1], io.ErrUnexpectedEOF)
		assert.Equal(t, int64(cbin.HeaderSize+20), doc.Diagnostics[1].Offset)
	})

	t.Run("partial value records", func(t *testing.T) {
		b := testutil.NewBodyBuilder(t).
			Int32(1).
			Record(1, 1).
			Record(2, 3).
			StopBlock().
			Record(10, int32(cbin.TypeInt)).
			Int32(11)
		data := seal(t, b)

		doc, err := cbin.Decode(data)
		require.NoError(t, err)
		assert.False(t, doc.Success)
		require.Len(t, doc.Diagnostics, 1)
		assert.Equal(t, []cbin.Value{cbin.IntValue(10)}, doc.Sections[0].Keys[0].Values)
		// the raw body is always available
		assert.Len(t, doc.Body, 4+8*4+4)
	})

	t.Run("too few section records", func(t *testing.T) {
		b := testutil.NewBodyBuilder(t).
			Int32(1000).
			Record(1, 0)
		data := seal(t, b, "Only")

		doc, err := cbin.Decode(data)
		require.NoError(t, err)
		assert.False(t, doc.Success)
		require.Len(t, doc.Sections, 1)
		assert.Equal(t, "Only", doc.Sections[0].Title)
		require.Len(t, doc.Diagnostics, 1)
		assert.Equal(t, cbin.StageSection, doc.Diagnostics[0].Stage)
	})

	t.Run("empty body", func(t *testing.T) {
		data := testutil.File(t, nil, 0, 0, cbin.DefaultKey())

		doc, err := cbin.Decode(data)
		require.NoError(t, err)
		assert.False(t, doc.Success)
		assert.Empty(t, doc.Sections)
		require.Len(t, doc.Diagnostics, 1)
		assert.Equal(t, cbin.StageSectionCount, doc.Diagnostics[0].Stage)
	})

	t.Run("bad token table", func(t *testing.T) {
		b := testutil.NewBodyBuilder(t).
			Int32(1).
			Record(1, 0)
		data := testutil.File(t, b.Bytes(), 500, 1, cbin.DefaultKey())

		doc, err := cbin.Decode(data)
		require.NoError(t, err)
		assert.False(t, doc.Success)
		require.Len(t, doc.Diagnostics, 1)
		assert.Equal(t, cbin.StageTokens, doc.Diagnostics[0].Stage)
		assert.ErrorIs(t, doc.Diagnostics[0], cbin.ErrTruncated)
		// the tree is still walked
		require.Len(t, doc.Sections, 1)
		assert.Equal(t, "__OUT_OF_BOUNDS__1", doc.Sections[0].Title)
	})
}

func TestDecodeRejectsNonContainers(t *testing.T) {
	_, err := cbin.Decode([]byte("KBIN0000000000000000"))
	assert.ErrorIs(t, err, cbin.ErrNotAContainer)

	_, err = cbin.Decode([]byte("CBIN\x01\x02"))
	assert.ErrorIs(t, err, cbin.ErrTruncated)
}

func TestDecodeWithWrongKeyDoesNotPanic(t *testing.T) {
	b := testutil.NewBodyBuilder(t).
		Int32(1).
		Record(1, 1).
		Record(2, 1).
		StopBlock().
		Record(3, int32(cbin.TypeInt))
	data := seal(t, b, "S", "K")

	doc, err := cbin.Decode(data, cbin.WithKey([]byte{0x5A, 0xA5, 0x3C}))
	require.NoError(t, err)
	assert.NotNil(t, doc)
}

func TestDecodeLogsDiagnostics(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := testutil.NewBodyBuilder(t).
		Int32(1).
		Record(1, 1).
		Record(2, 1)
	codec := cbin.NewCodec(cbin.WithLogger(logger))
	doc, err := codec.Decode(context.Background(), seal(t, b))
	require.NoError(t, err)
	require.False(t, doc.Success)

	assert.Contains(t, logs.String(), "Recovered from CBIN record error")
	assert.Contains(t, logs.String(), "Decoded CBIN sections")

	var rerr *cbin.RecordError
	require.True(t, errors.As(doc.Diagnostics[0], &rerr))
	assert.Contains(t, rerr.Error(), "key record 1")
}

func TestDecodeUnterminatedFinalToken(t *testing.T) {
	b := testutil.NewBodyBuilder(t).
		Int32(1).
		Record(2, 0)
	offset := b.Len()
	body := append(b.Tokens("Root").Bytes(), "Settings"...)
	data := testutil.File(t, body, offset, 2, cbin.DefaultKey())

	doc, err := cbin.Decode(data)
	require.NoError(t, err)
	assert.True(t, doc.Success)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Settings", doc.Sections[0].Title)
	assert.Equal(t, cbin.NewTokenTable("Root", "Settings"), doc.Tokens)
}

func TestCodecIgnoresCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	codec := cbin.NewCodec()
	doc, err := cbin.ParseText("[S]\nK = 1\n")
	require.NoError(t, err)

	data, err := codec.Encode(ctx, doc)
	require.NoError(t, err)

	decoded, err := codec.Decode(ctx, data)
	require.NoError(t, err)
	assert.True(t, decoded.Success)
	assert.Equal(t, cbin.ToText(doc), cbin.ToText(decoded))
}
