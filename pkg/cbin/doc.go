// Package cbin reads and writes CBIN files, the encrypted, token-interned
// configuration containers used by the game's data files.
//
// # File Layout
//
// A CBIN file starts with a 20-byte unencrypted preamble:
//
//	magic "CBIN" | token table offset (s4le) | opaque (s4le) | token count (s4le) | opaque trailer [4]
//
// The rest of the file is XOR-encrypted with a repeating key. Decrypted, it
// is one flat stream of little-endian 8-byte records followed by the token
// table:
//
//	section count (s4le)
//	section records      {title token, key count}
//	key records          {title token, value count} per section, each run ending in a {0, 0} stop block
//	value records        {payload, type tag} per key
//	token table          NUL-terminated strings
//
// Token references are 1-based. Index 0 never resolves; an index outside the
// table resolves to a placeholder such as "__OUT_OF_BOUNDS__12" instead of
// failing the decode.
//
// # Decoding
//
//	doc, err := cbin.Decode(data)
//	if errors.Is(err, cbin.ErrNotAContainer) {
//	    // not a CBIN file
//	}
//	if !doc.Success {
//	    // doc.Diagnostics lists the records that could not be read;
//	    // doc.Body still holds the decrypted bytes
//	}
//	fmt.Print(cbin.ToText(doc))
//
// # Text Form
//
// ToText renders a document as
//
//	[Settings]
//	Volume = 5, 1.5, Loud
//
// and ParseText reads it back. Values are classified as int32, then float32,
// then token. Imported strings are interned in file order: section titles,
// then key titles, then token values.
//
// # Encoding
//
//	doc, err := cbin.ParseText(text)
//	data, err := cbin.Encode(doc)
//
// The encoder recomputes the token table offset and token count. The two
// opaque header fields are copied from a decoded document; documents built
// from text get the placeholders set with WithOpaqueField and
// WithOpaqueTrailer.
//
// # Configuration Options
//
//   - WithKey([]byte): XOR key (default DefaultKeyHex)
//   - WithLogger(*slog.Logger): custom logging
//   - WithOpaqueField(int32), WithOpaqueTrailer([4]byte): header placeholders
package cbin
