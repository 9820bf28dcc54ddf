package batch

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/twinfer/cbin-plugin/pkg/cbin"
)

// Decrypt decodes every matching CBIN file. A fully decoded file gets a
// <file>.txt rendering; every decoded file gets <file>_decrypted.bin with
// the plaintext body.
func (r *Runner) Decrypt(ctx context.Context, patterns []string) Report {
	return r.each(ctx, "decrypt", patterns, r.DecryptFile)
}

// DecryptFile decodes one file and writes its artifacts next to it.
func (r *Runner) DecryptFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !cbin.IsContainer(data) {
		fmt.Fprintf(r.out, "Not a CBIN file: %s\n", path)
		return cbin.ErrNotAContainer
	}

	doc, err := r.codec.Decode(ctx, data)
	if err != nil {
		return err
	}

	if doc.Success {
		textPath := path + TextSuffix
		err := createText(textPath, func(w io.Writer) error {
			return r.codec.ExportText(w, doc)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Decryption/Parsing completed. Text file saved as: %s\n", textPath)
	} else {
		r.logger.WarnContext(ctx, "CBIN file decoded with errors, skipping text output",
			"path", path, "diagnostics", len(doc.Diagnostics))
	}

	return writeFile(path+DecryptedSuffix, doc.Body)
}
