package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/fileutil"
	"github.com/morozRed/classlens/internal/session"
)

// RunTabs lists, opens, closes or moves tabs of the active archive:
//
//	tabs
//	tabs open <class>
//	tabs close <class>
//	tabs move <class> <index>
func RunTabs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	arc, _, err := a.openArchive("")
	if err != nil {
		return err
	}

	if len(args) > 0 {
		if err := a.applyTabAction(arc, args); err != nil {
			return err
		}
	}
	if err := a.saveState(); err != nil {
		return err
	}
	return a.printTabs(a.tabs.Snapshot())
}

func (a *app) applyTabAction(arc *archive.Archive, args []string) error {
	action := args[0]
	if len(args) < 2 {
		return fmt.Errorf("tabs %s requires a class name", action)
	}
	entry := EntryName(arc, args[1])

	switch action {
	case "open":
		if _, ok := arc.Entry(entry); !ok {
			return fmt.Errorf("%w: %s", archive.ErrEntryNotFound, entry)
		}
		a.tabs.Open(entry)
	case "close":
		if !a.tabs.IsOpen(entry) {
			return fmt.Errorf("tab %s is not open", entry)
		}
		a.tabs.Close(entry)
	case "move":
		if len(args) < 3 {
			return fmt.Errorf("tabs move requires an index")
		}
		index, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid tab index %q: %w", args[2], err)
		}
		a.tabs.Move(entry, index)
	default:
		return fmt.Errorf("unknown tabs action %q (supported: open, close, move)", action)
	}
	return nil
}

func (a *app) printTabs(snapshot session.Snapshot) error {
	if a.asJSON {
		return fileutil.PrintJSON(a.out, snapshot)
	}
	for i, tab := range snapshot.Tabs {
		marker := " "
		if tab.Key == snapshot.Active {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %d %s\n", marker, i, archive.ClassName(tab.Key))
	}
	return nil
}
