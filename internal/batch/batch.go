// Package batch runs cbin operations over lists of files the way the
// command-line tool does: every argument is a glob, matches are processed
// one at a time, and a failing file is reported without stopping the rest.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/twinfer/cbin-plugin/pkg/cbin"
)

// Output file suffixes.
const (
	TextSuffix          = ".txt"
	DecryptedSuffix     = "_decrypted.bin"
	ReconstructedSuffix = "_reconstructed.bin"
	EncryptedSuffix     = "_encrypted.bin"
)

// FileError records the failure of one file in a batch.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Report summarises a batch run.
type Report struct {
	// Files is the number of files that were attempted.
	Files  int
	Errors []*FileError
}

// Runner drives a codec over files. Human-readable results go to out,
// diagnostics to the logger.
type Runner struct {
	codec  *cbin.Codec
	out    io.Writer
	logger *slog.Logger
}

// NewRunner creates a runner. A nil logger means slog.Default().
func NewRunner(codec *cbin.Codec, out io.Writer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{codec: codec, out: out, logger: logger}
}

// Expand resolves glob patterns to regular files, in pattern order.
// Directories are skipped and a pattern without matches contributes nothing.
func Expand(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return files, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			files = append(files, m)
		}
	}
	return files, nil
}

// each applies fn to every file matched by patterns.
func (r *Runner) each(ctx context.Context, op string, patterns []string, fn func(context.Context, string) error) Report {
	var report Report
	for _, pattern := range patterns {
		files, err := Expand([]string{pattern})
		if err != nil {
			r.logger.ErrorContext(ctx, "Invalid file pattern", "pattern", pattern, "error", err)
			report.Errors = append(report.Errors, &FileError{Path: pattern, Op: op, Err: err})
			continue
		}
		if len(files) == 0 {
			r.logger.WarnContext(ctx, "No files match pattern", "pattern", pattern)
		}

		for _, path := range files {
			if err := ctx.Err(); err != nil {
				report.Errors = append(report.Errors, &FileError{Path: path, Op: op, Err: err})
				return report
			}
			report.Files++
			if err := fn(ctx, path); err != nil {
				ferr := &FileError{Path: path, Op: op, Err: err}
				r.logger.ErrorContext(ctx, "File failed", "op", op, "path", path, "error", err)
				report.Errors = append(report.Errors, ferr)
			}
		}
	}
	return report
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
