package cbin

import (
	"encoding/binary"
	"math"
	"strconv"
)

// ValueType is the type tag stored in the second field of a value record.
type ValueType int32

// Known value tags. Any other tag is treated as an integer.
const (
	TypeInt   ValueType = 1
	TypeFloat ValueType = 2
	TypeToken ValueType = 4
)

func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeToken:
		return "token"
	default:
		return "tag" + strconv.Itoa(int(t))
	}
}

// Value is one typed entry of a key. Raw holds the stored 4-byte payload as
// an int32: the integer itself, the IEEE-754 bits of a float, or the token
// index of a token reference.
type Value struct {
	Type ValueType
	Raw  int32
	// Text is the resolved token for TypeToken values.
	Text string
}

// IntValue returns an integer value.
func IntValue(v int32) Value {
	return Value{Type: TypeInt, Raw: v}
}

// FloatValue returns a float value.
func FloatValue(f float32) Value {
	return Value{Type: TypeFloat, Raw: int32(math.Float32bits(f))}
}

// TokenValue returns a token reference to idx, resolved to text.
func TokenValue(idx int32, text string) Value {
	return Value{Type: TypeToken, Raw: idx, Text: text}
}

// Kind folds unrecognised tags into TypeInt.
func (v Value) Kind() ValueType {
	switch v.Type {
	case TypeFloat, TypeToken:
		return v.Type
	default:
		return TypeInt
	}
}

// Int returns the payload as an integer.
func (v Value) Int() int32 { return v.Raw }

// Float reinterprets the payload bits as a float32.
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.Raw)) }

// TokenIndex returns the payload as a token index.
func (v Value) TokenIndex() int32 { return v.Raw }

// RawBytes returns the payload as it is laid out on disk.
func (v Value) RawBytes() [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v.Raw))
	return b
}

// Key is a named list of values inside a section.
type Key struct {
	Title      string
	TitleIndex int32
	// Count is the value count as read from the key record. The encoder
	// writes len(Values).
	Count  int32
	Values []Value
}

// Section is a top-level group of keys.
type Section struct {
	Title      string
	TitleIndex int32
	// Count is the key count as read from the section record. The encoder
	// writes len(Keys).
	Count int32
	Keys  []Key
}

// Document is a decoded or imported CBIN file.
type Document struct {
	Header   Header
	Tokens   TokenTable
	Sections []Section
	// Success is false when any record could not be read.
	Success bool
	// Body is the decrypted body, preamble excluded.
	Body        []byte
	Diagnostics []*RecordError
}

// Summary counts the parts of a document.
type Summary struct {
	Sections int
	// Entries counts sections and keys together.
	Entries int
	Tokens  int
}

// Summary returns section, entry and token counts.
func (d *Document) Summary() Summary {
	s := Summary{Sections: len(d.Sections), Tokens: d.Tokens.Len()}
	s.Entries = s.Sections
	for _, sec := range d.Sections {
		s.Entries += len(sec.Keys)
	}
	return s
}
