package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/morozRed/classlens/internal/archive"
)

// OptionalStringFlag reads a string flag, returning "" when the command
// does not define it.
func OptionalStringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return "", nil
	}
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return strings.TrimSpace(value), nil
}

func OptionalBoolFlag(cmd *cobra.Command, name string) (bool, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return false, nil
	}
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return value, nil
}

func OptionalIntFlag(cmd *cobra.Command, name string, fallback int) (int, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return fallback, nil
	}
	value, err := cmd.Flags().GetInt(name)
	if err != nil {
		return 0, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return value, nil
}

// ClassName accepts "net.example.A", "net/example/A" or
// "net/example/A.class" and returns the internal name "net/example/A".
// Member subjects ("owner:name:descriptor") are returned unchanged.
func ClassName(name string) string {
	name = strings.TrimSpace(name)
	if strings.Contains(name, ":") {
		return name
	}
	name = strings.TrimSuffix(name, archive.ClassSuffix)
	if !strings.Contains(name, "/") {
		name = strings.ReplaceAll(name, ".", "/")
	}
	return name
}

// EntryName resolves a user-supplied class or entry name against arc.
// Names present verbatim in the archive win over the class-name form.
func EntryName(arc *archive.Archive, name string) string {
	name = strings.TrimSpace(name)
	if arc != nil {
		if _, ok := arc.Entry(name); ok {
			return name
		}
	}
	return archive.EntryPath(ClassName(name))
}
