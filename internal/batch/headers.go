package batch

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/twinfer/cbin-plugin/pkg/cbin"
)

// Headers prints the raw 20-byte preamble of every matching CBIN file, then
// lists the files that are not CBIN containers.
func (r *Runner) Headers(ctx context.Context, patterns []string) Report {
	var notContainers []string
	report := r.each(ctx, "headers", patterns, func(ctx context.Context, path string) error {
		ok, err := r.printHeader(path)
		if !ok {
			notContainers = append(notContainers, path)
		}
		return err
	})

	if len(notContainers) > 0 {
		fmt.Fprintln(r.out, "The following files were not cbins:")
		for _, path := range notContainers {
			fmt.Fprintf(r.out, "    %s\n", path)
		}
	}
	return report
}

func (r *Runner) printHeader(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if !cbin.IsContainer(data) {
		return false, nil
	}
	fmt.Fprintf(r.out, "%s :  %s\n", DashedHex(data[:cbin.HeaderSize]), path)
	return true, nil
}

// DashedHex renders b as uppercase hex pairs joined by dashes, e.g.
// "43-42-49-4E".
func DashedHex(b []byte) string {
	pairs := make([]string, len(b))
	for i := range b {
		pairs[i] = strings.ToUpper(hex.EncodeToString(b[i : i+1]))
	}
	return strings.Join(pairs, "-")
}
