package cbin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Codec decodes and encodes CBIN files with a fixed key and header
// placeholders. A Codec holds no per-document state and may be shared.
type Codec struct {
	logger  *slog.Logger
	options options
}

// NewCodec creates a codec with the given options
func NewCodec(opts ...Option) *Codec {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Codec{
		logger:  options.logger,
		options: options,
	}
}

// Key returns a copy of the codec's cipher key.
func (c *Codec) Key() []byte {
	return append([]byte(nil), c.options.key...)
}

// placeholderHeader is the header given to documents built from text.
func (c *Codec) placeholderHeader() Header {
	return Header{
		Magic:         Magic,
		OpaqueField:   c.options.opaqueField,
		OpaqueTrailer: c.options.opaqueTrailer,
	}
}

// Decode decrypts and decodes a CBIN file.
func Decode(data []byte, opts ...Option) (*Document, error) {
	return NewCodec(opts...).Decode(context.Background(), data)
}

// Encode encodes and encrypts doc into a CBIN file.
func Encode(doc *Document, opts ...Option) ([]byte, error) {
	return NewCodec(opts...).Encode(context.Background(), doc)
}

// ParseText imports the text form into a document.
func ParseText(text string, opts ...Option) (*Document, error) {
	return NewCodec(opts...).Import(context.Background(), strings.NewReader(text))
}

// DecodeFile reads and decodes the CBIN file at path.
func (c *Codec) DecodeFile(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CBIN file: %w", err)
	}
	doc, err := c.Decode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return doc, nil
}

// ExportText writes the text form of doc to w.
func (c *Codec) ExportText(w io.Writer, doc *Document) error {
	_, err := io.WriteString(w, ToText(doc))
	return err
}
