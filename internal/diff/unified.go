package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Options controls unified output.
type Options struct {
	// MaxBytes caps the combined input size; 0 means no limit.
	MaxBytes int
	// Context lines per hunk; 0 means 3.
	Context int
}

// Unified renders a unified diff of two decompiled sources. It returns
// an empty string when both sides are equal and reports whether the
// inputs were too large to diff.
func Unified(leftName, rightName, left, right string, opts Options) (string, bool, error) {
	if opts.MaxBytes > 0 && len(left)+len(right) > opts.MaxBytes {
		return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", leftName, rightName), true, nil
	}
	context := opts.Context
	if context <= 0 {
		context = 3
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(left),
		B:        splitLines(right),
		FromFile: leftName,
		ToFile:   rightName,
		Context:  context,
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to diff %s: %w", rightName, err)
	}
	return out, false, nil
}

func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}
