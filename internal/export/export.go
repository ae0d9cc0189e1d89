// Package export decompiles every outer class of an archive across the
// worker pool and writes the sources into a zip bundle, each with a
// CBOR token sidecar.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/codec"
	"github.com/morozRed/classlens/internal/token"
	"github.com/morozRed/classlens/internal/workers"
)

const (
	ManifestName  = "classlens.cbor"
	SourceSuffix  = ".java"
	TokensSuffix  = ".tokens.cbor"
	MethodZstd    = zstd.ZipMethodWinZip
	MethodDeflate = zip.Deflate
)

// Decompile produces the artifact of one outer class entry. Failures
// are returned as placeholder artifacts, never as errors.
type Decompile func(ctx context.Context, entry string) token.Artifact

type Options struct {
	Workers  int
	Progress *workers.Progress
	Logger   *slog.Logger

	// Guard rejects a second export of the same version while one runs.
	// Runs sharing a guard exclude each other; nil allows any run.
	Guard *workers.Guard

	// Method is the zip compression method; zero selects zstd.
	Method uint16
}

// Manifest is the first entry of every bundle.
type Manifest struct {
	Archive string   `cbor:"1,keyasint" json:"archive"`
	Classes int      `cbor:"2,keyasint" json:"classes"`
	Failed  []string `cbor:"3,keyasint,omitempty" json:"failed,omitempty"`
}

// Write decompiles arc and streams the bundle to w. Entries are written
// in class order so equal inputs give equal bundles. A concurrent export
// of the same version under the same guard fails with workers.ErrBusy.
func Write(ctx context.Context, w io.Writer, arc *archive.Archive, decompile Decompile, opts Options) (Manifest, error) {
	if opts.Guard != nil {
		release, err := opts.Guard.Acquire(arc.Version())
		if err != nil {
			return Manifest{}, err
		}
		defer release()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	method := opts.Method
	if method == 0 {
		method = MethodZstd
	}

	var (
		mu        sync.Mutex
		artifacts = make(map[string]token.Artifact)
	)
	classes := arc.OuterClassNames()
	_, err := workers.Run(ctx, workers.Options{
		Workers:  opts.Workers,
		Progress: opts.Progress,
		Logger:   logger,
	}, classes, func(int) (workers.Unit, error) {
		return unitFunc(func(ctx context.Context, entry string) error {
			artifact := decompile(ctx, entry)
			if err := ctx.Err(); err != nil {
				return err
			}
			mu.Lock()
			artifacts[entry] = artifact
			mu.Unlock()
			return nil
		}), nil
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to decompile %s: %w", arc.Version(), err)
	}

	manifest := Manifest{Archive: arc.Version(), Classes: len(classes)}
	for _, entry := range classes {
		if artifacts[entry].Failed() {
			manifest.Failed = append(manifest.Failed, entry)
		}
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(MethodZstd, zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedDefault)))

	data, err := codec.Marshal(manifest)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := writeEntry(zw, ManifestName, method, data); err != nil {
		return Manifest{}, err
	}

	names := append([]string(nil), classes...)
	sort.Strings(names)
	for _, entry := range names {
		artifact := artifacts[entry]
		base := archive.ClassName(entry)
		if err := writeEntry(zw, base+SourceSuffix, method, []byte(artifact.Source)); err != nil {
			return Manifest{}, err
		}
		sidecar, err := codec.Marshal(artifact.Tokens)
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to encode tokens of %s: %w", entry, err)
		}
		if err := writeEntry(zw, base+TokensSuffix, method, sidecar); err != nil {
			return Manifest{}, err
		}
	}
	if err := zw.Close(); err != nil {
		return Manifest{}, fmt.Errorf("failed to finish bundle: %w", err)
	}
	logger.Info("bundle written", "archive", arc.Version(), "classes", len(classes), "failed", len(manifest.Failed))
	return manifest, nil
}

func writeEntry(zw *zip.Writer, name string, method uint16, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

type unitFunc func(ctx context.Context, entry string) error

func (f unitFunc) Process(ctx context.Context, entry string) error { return f(ctx, entry) }
