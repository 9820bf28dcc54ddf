package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/twinfer/cbin-plugin/pkg/cbin"
	"gopkg.in/yaml.v3"
)

// Inspect formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Inspect decodes every matching file and prints it in the given format
// without writing any files.
func (r *Runner) Inspect(ctx context.Context, patterns []string, format string) Report {
	return r.each(ctx, "inspect", patterns, func(ctx context.Context, path string) error {
		return r.InspectFile(ctx, path, format)
	})
}

// InspectFile prints one decoded file.
func (r *Runner) InspectFile(ctx context.Context, path, format string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := r.codec.Decode(ctx, data)
	if err != nil {
		return err
	}

	switch format {
	case FormatText, "":
		fmt.Fprintf(r.out, "# %s\n", path)
		return r.printSummary(doc)
	case FormatJSON:
		m := documentMap(path, doc)
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case FormatYAML:
		m := documentMap(path, doc)
		return encodeYAML(r.out, m)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func documentMap(path string, doc *cbin.Document) map[string]any {
	m := doc.ToMap()
	m["file"] = path
	s := doc.Summary()
	m["summary"] = map[string]any{
		"sections": s.Sections,
		"entries":  s.Entries,
		"tokens":   s.Tokens,
	}
	return m
}

func encodeYAML(w io.Writer, v any) error {
	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
