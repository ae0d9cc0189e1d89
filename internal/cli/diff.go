package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/diff"
	"github.com/morozRed/classlens/internal/engine"
	"github.com/morozRed/classlens/internal/fileutil"
	"github.com/morozRed/classlens/internal/pipeline"
)

type SourceDiff struct {
	Class    string `json:"class"`
	Oversize bool   `json:"oversize,omitempty"`
	Diff     string `json:"diff"`
}

// RunDiff compares two archives by outer class. It never changes the
// active archive.
func RunDiff(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	modeFlag, err := OptionalStringFlag(cmd, "mode")
	if err != nil {
		return err
	}
	if modeFlag == "" {
		modeFlag = a.cfg.Diff.Checksum
	}
	mode, err := diff.ParseMode(modeFlag)
	if err != nil {
		return err
	}
	sourceClass, err := OptionalStringFlag(cmd, "source")
	if err != nil {
		return err
	}
	maxBytes, err := OptionalIntFlag(cmd, "max-bytes", 0)
	if err != nil {
		return err
	}

	left, err := a.loadArchive(args[0])
	if err != nil {
		return err
	}
	right, err := a.loadArchive(args[1])
	if err != nil {
		return err
	}

	if sourceClass != "" {
		result, err := a.diffSource(commandContext(cmd), left, right, args, sourceClass, maxBytes)
		if err != nil {
			return err
		}
		if a.asJSON {
			return fileutil.PrintJSON(a.out, result)
		}
		if result.Diff == "" {
			fmt.Fprintf(a.out, "%s: sources are identical\n", result.Class)
			return nil
		}
		_, err = fmt.Fprint(a.out, result.Diff)
		return err
	}

	changes := diff.Sorted(diff.Archives(left, right, mode))
	summary := DiffSummary{
		Left:    args[0],
		Right:   args[1],
		Mode:    mode.String(),
		Changes: changes,
	}
	for _, change := range changes {
		switch change.State {
		case diff.Added:
			summary.Added++
		case diff.Deleted:
			summary.Deleted++
		case diff.Modified:
			summary.Modified++
		}
	}
	return PrintDiffSummary(a.out, summary, a.asJSON)
}

// diffSource decompiles one outer class from both archives through a
// shared pipeline and renders a unified diff. A class missing on one
// side diffs against empty text.
func (a *app) diffSource(ctx context.Context, left, right *archive.Archive, names []string, class string, maxBytes int) (SourceDiff, error) {
	name := archive.OuterClass(ClassName(class))
	entry := archive.EntryPath(name)

	p := a.newPipeline()
	defer p.Close()
	source := func(arc *archive.Archive) string {
		if _, ok := arc.Entry(entry); !ok {
			return ""
		}
		return p.Resolve(ctx, pipeline.Request{Archive: arc, Entry: entry, Options: engine.OptionsNormal}).Source
	}

	text, oversize, err := diff.Unified(
		names[0]+"!/"+entry,
		names[1]+"!/"+entry,
		source(left),
		source(right),
		diff.Options{MaxBytes: maxBytes, Context: a.cfg.Diff.Context},
	)
	if err != nil {
		return SourceDiff{}, err
	}
	return SourceDiff{Class: name, Oversize: oversize, Diff: text}, nil
}
