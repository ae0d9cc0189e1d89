package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/morozRed/classlens/internal/diff"
	"github.com/morozRed/classlens/internal/fileutil"
)

type ArchiveSummary struct {
	Path      string    `json:"path"`
	Version   string    `json:"version"`
	Entries   int       `json:"entries"`
	Classes   int       `json:"classes"`
	Outer     int       `json:"outer_classes"`
	Changed   bool      `json:"changed"`
	Indexed   bool      `json:"indexed"`
	IndexedAt time.Time `json:"indexed_at,omitzero"`
	OpenTabs  []string  `json:"open_tabs,omitempty"`
}

type IndexSummary struct {
	Path       string `json:"path"`
	Version    string `json:"version"`
	Classes    int    `json:"classes"`
	Skipped    bool   `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
}

type DiffSummary struct {
	Left     string        `json:"left"`
	Right    string        `json:"right"`
	Mode     string        `json:"mode"`
	Added    int           `json:"added"`
	Deleted  int           `json:"deleted"`
	Modified int           `json:"modified"`
	Changes  []diff.Change `json:"changes"`
}

type ExportSummary struct {
	Output    string   `json:"output"`
	Archive   string   `json:"archive"`
	Classes   int      `json:"classes"`
	Failed    []string `json:"failed,omitempty"`
	Rewritten bool     `json:"rewritten"`
}

func PrintArchiveSummary(w io.Writer, summary ArchiveSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, summary)
	}
	fmt.Fprintf(w, "archive: %s\n", summary.Path)
	fmt.Fprintf(w, "version: %s\n", summary.Version)
	fmt.Fprintf(w, "entries: total=%d classes=%d outer=%d\n", summary.Entries, summary.Classes, summary.Outer)
	indexed := "no"
	if summary.Indexed {
		indexed = "yes"
		if !summary.IndexedAt.IsZero() {
			indexed = summary.IndexedAt.Format(time.RFC3339)
		}
	}
	fmt.Fprintf(w, "usage index: %s\n", indexed)
	if len(summary.OpenTabs) > 0 {
		fmt.Fprintf(w, "open tabs (%d): %s\n", len(summary.OpenTabs), SummarizePaths(summary.OpenTabs, 8))
	}
	return nil
}

func PrintIndexSummary(w io.Writer, summary IndexSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, summary)
	}
	if summary.Skipped {
		fmt.Fprintf(w, "index: %s already indexed (%s)\n", summary.Path, summary.Version)
		return nil
	}
	fmt.Fprintf(w, "index: %s classes=%d version=%s duration=%dms\n", summary.Path, summary.Classes, summary.Version, summary.DurationMS)
	return nil
}

func PrintDiffSummary(w io.Writer, summary DiffSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, summary)
	}
	fmt.Fprintf(w, "diff (%s): added=%d deleted=%d modified=%d\n", summary.Mode, summary.Added, summary.Deleted, summary.Modified)
	for _, change := range summary.Changes {
		fmt.Fprintf(w, "%s %s\n", marker(change.State), change.Class)
	}
	return nil
}

func marker(s diff.State) string {
	switch s {
	case diff.Added:
		return "+"
	case diff.Deleted:
		return "-"
	default:
		return "~"
	}
}

func PrintExportSummary(w io.Writer, summary ExportSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, summary)
	}
	status := "unchanged"
	if summary.Rewritten {
		status = "written"
	}
	fmt.Fprintf(w, "export: %s %s (classes=%d failed=%d)\n", summary.Output, status, summary.Classes, len(summary.Failed))
	if len(summary.Failed) > 0 {
		fmt.Fprintf(w, "failed classes (%d): %s\n", len(summary.Failed), SummarizePaths(summary.Failed, 8))
	}
	return nil
}

func printLines(w io.Writer, lines []string, asJSON bool) error {
	if asJSON {
		if lines == nil {
			lines = []string{}
		}
		return fileutil.PrintJSON(w, lines)
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}

func SummarizePaths(paths []string, max int) string {
	if len(paths) <= max {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s ... (+%d more)", strings.Join(paths[:max], ", "), len(paths)-max)
}
