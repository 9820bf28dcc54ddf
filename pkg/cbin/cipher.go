package cbin

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// DefaultKeyHex is the key shipped with the game's CBIN files.
const DefaultKeyHex = "00782E7C7007C277E7803C17BE3803E1BBF3C01E0BDF9C01F05DF9E00F85EFCE"

// DefaultKey returns a fresh copy of the decoded default key.
func DefaultKey() []byte {
	key, err := ParseKey(DefaultKeyHex)
	if err != nil {
		panic(err)
	}
	return key
}

// ParseKey decodes hex key material such as "00782E7C...". Whitespace is
// ignored and either case is accepted.
func ParseKey(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, ErrEmptyKey
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// Transform applies the repeating-key XOR stream. It is its own inverse, so
// it is used for both encryption and decryption. The input is not modified.
func Transform(data, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	return kaitai.ProcessXOR(data, key), nil
}
