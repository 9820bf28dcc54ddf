package batch

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/twinfer/cbin-plugin/pkg/cbin"
)

// Encrypt imports every matching text file, prints its summary and writes
// <file>_reconstructed.bin (plaintext body) and <file>_encrypted.bin.
func (r *Runner) Encrypt(ctx context.Context, patterns []string) Report {
	return r.each(ctx, "encrypt", patterns, r.EncryptFile)
}

// EncryptFile converts one text file.
func (r *Runner) EncryptFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := r.codec.Import(ctx, latin1Reader(f))
	if err != nil {
		return err
	}
	if err := r.printSummary(doc); err != nil {
		return err
	}

	if err := writeFile(path+ReconstructedSuffix, doc.Body); err != nil {
		return err
	}
	encrypted, err := r.codec.Encode(ctx, doc)
	if err != nil {
		return err
	}
	return writeFile(path+EncryptedSuffix, encrypted)
}

// printSummary writes the counts and text form of doc to the runner output.
func (r *Runner) printSummary(doc *cbin.Document) error {
	s := doc.Summary()
	fmt.Fprintln(r.out, "=== CBIN Header ===")
	fmt.Fprintf(r.out, "Number of Groups: %d\n", s.Sections)
	fmt.Fprintf(r.out, "Number of Entries: %d\n", s.Entries)
	fmt.Fprintf(r.out, "Number of Text Tokens: %d\n", s.Tokens)
	fmt.Fprintln(r.out, "--- As Text ---")

	w := latin1Writer(r.out)
	if _, err := io.WriteString(w, cbin.ToText(doc)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(r.out, "===================")
	return err
}
