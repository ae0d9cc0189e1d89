package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/morozRed/classlens/internal/engine"
	"github.com/morozRed/classlens/internal/export"
	"github.com/morozRed/classlens/internal/fileutil"
	"github.com/morozRed/classlens/internal/pipeline"
	"github.com/morozRed/classlens/internal/store"
	"github.com/morozRed/classlens/internal/token"
	"github.com/morozRed/classlens/internal/workers"
)

func parseExportMethod(value string) (uint16, error) {
	switch value {
	case "", "zstd":
		return export.MethodZstd, nil
	case "deflate":
		return export.MethodDeflate, nil
	default:
		return 0, fmt.Errorf("unsupported --method %q (supported: zstd, deflate)", value)
	}
}

// RunExport decompiles every outer class of the active archive into a
// zip bundle of sources and token streams. The output is only rewritten
// when its bytes change.
func RunExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	methodFlag, err := OptionalStringFlag(cmd, "method")
	if err != nil {
		return err
	}
	method, err := parseExportMethod(methodFlag)
	if err != nil {
		return err
	}

	arc, _, err := a.openArchive("")
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	release, err := a.claim(ctx, arc.Version(), store.JobExport)
	if err != nil {
		return err
	}
	defer release()

	p := a.newPipeline()
	defer p.Close()

	progress := workers.NewProgress()
	reporter := newProgressReporter(a.errOut, "exporting", a.asJSON)
	stop := reporter.Track(progress)

	var buf bytes.Buffer
	manifest, err := export.Write(ctx, &buf, arc, func(ctx context.Context, entry string) token.Artifact {
		return p.Resolve(ctx, pipeline.Request{Archive: arc, Entry: entry, Options: engine.OptionsNormal})
	}, export.Options{
		Workers:  a.cfg.Workers,
		Progress: progress,
		Logger:   a.logger.With("component", "export"),
		Guard:    &a.exportGuard,
		Method:   method,
	})
	stop()
	if err != nil {
		return err
	}
	reporter.Done(manifest.Classes)

	output := args[0]
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	rewritten, err := fileutil.WriteIfChangedTracked(output, buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	if err := a.saveState(); err != nil {
		return err
	}

	return PrintExportSummary(a.out, ExportSummary{
		Output:    output,
		Archive:   manifest.Archive,
		Classes:   manifest.Classes,
		Failed:    manifest.Failed,
		Rewritten: rewritten,
	}, a.asJSON)
}
