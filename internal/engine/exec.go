package engine

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/morozRed/classlens/internal/javasrc"
)

// ExecDecompiler runs an external decompiler (Vineflower, CFR, ...) as
// `<Command...> [-opt=value...] <class files...> <output dir>` and tokenizes
// the Java it writes.
type ExecDecompiler struct {
	Command []string
	TempDir string
	// Timeout bounds one class; zero means no limit.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (d *ExecDecompiler) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

func (d *ExecDecompiler) Decompile(ctx context.Context, className string, in Input) (string, error) {
	if len(d.Command) == 0 {
		return "", fmt.Errorf("%w: no decompiler command configured", ErrDecode)
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp(d.TempDir, "classlens-")
	if err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inputDir := filepath.Join(dir, "in")
	outputDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	inputs, err := writeInputs(inputDir, className, in)
	if err != nil {
		return "", err
	}

	args := append([]string{}, d.Command[1:]...)
	args = append(args, optionFlags(in.Options)...)
	args = append(args, inputs...)
	args = append(args, outputDir)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Command[0], args...)
	cmd.Stderr = &stderr
	d.logger().Debug("running decompiler", "class", className, "inputs", len(inputs))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%w: %s", ErrDecode, msg)
	}

	sourcePath, err := findSource(outputDir, className)
	if err != nil {
		return "", err
	}
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to read decompiler output: %w", err)
	}

	if in.Visitor != nil {
		known := make(map[string]bool, len(in.Names))
		for _, name := range in.Names {
			known[name] = true
		}
		if err := javasrc.NewParser().Walk(ctx, source, known, in.Visitor); err != nil {
			d.logger().Warn("failed to tokenize decompiler output", "class", className, "error", err)
		}
	}
	return string(source), nil
}

// writeInputs materializes the class and its nested classes under dir,
// keeping the package layout.
func writeInputs(dir, className string, in Input) ([]string, error) {
	names := []string{className}
	prefix := className + "$"
	for _, name := range in.Names {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		data, ok := in.Resolve(name)
		if !ok {
			if name == className {
				return nil, fmt.Errorf("%w: class %s not resolvable", ErrDecode, className)
			}
			continue
		}
		path := filepath.Join(dir, filepath.FromSlash(name)+".class")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create input dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write class %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// findSource locates <Simple>.java in the output tree. Decompilers
// differ in whether they keep the package directories.
func findSource(dir, className string) (string, error) {
	want := className[strings.LastIndex(className, "/")+1:] + ".java"
	var found string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && entry.Name() == want {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan decompiler output: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: decompiler produced no source for %s", ErrDecode, className)
	}
	return found, nil
}
