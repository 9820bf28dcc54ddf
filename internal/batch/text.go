package batch

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Token bytes are single-byte Latin-1 in the binary form and UTF-8 in text
// files.

// latin1Writer converts Latin-1 bytes written to it into UTF-8 on w. Close
// flushes it.
func latin1Writer(w io.Writer) *transform.Writer {
	return transform.NewWriter(w, charmap.ISO8859_1.NewDecoder())
}

// latin1Reader reads a UTF-8 file, dropping any byte order mark, as Latin-1.
func latin1Reader(r io.Reader) io.Reader {
	return transform.NewReader(r, transform.Chain(
		unicode.UTF8BOM.NewDecoder(),
		charmap.ISO8859_1.NewEncoder(),
	))
}

// createText writes the Latin-1 text produced by fn to path as UTF-8.
func createText(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	w := latin1Writer(f)
	if err := fn(w); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return nil
}
