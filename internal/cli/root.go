package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/morozRed/classlens/internal/engine"
	"github.com/morozRed/classlens/internal/search"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "classlens",
		Short: "Browse, index and compare the classes of Java archives",
		Long: `Classlens opens a jar, decompiles its classes on demand through an
external decompiler and keeps a persistent index of who uses which
class, field and method.

State (open archive, tabs, usage database, search indexes) lives in
the state directory from the config file (default ~/.cache/classlens).`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: $CLASSLENS_CONFIG)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().StringP("archive", "a", "", "Archive to use instead of the active one")

	// Archive Commands
	openCmd := &cobra.Command{
		Use:   "open <jar>",
		Short: "Open an archive and make it active",
		Args:  cobra.ExactArgs(1),
		RunE:  RunOpen,
	}
	openCmd.Flags().Bool("json", false, "Print machine-readable archive summary")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Describe the active archive",
		RunE:  RunInfo,
	}
	infoCmd.Flags().Bool("json", false, "Print machine-readable archive summary")

	classesCmd := &cobra.Command{
		Use:   "classes",
		Short: "List classes of the active archive",
		RunE:  RunClasses,
	}
	classesCmd.Flags().Bool("outer", false, "Only list outer classes")
	classesCmd.Flags().String("prefix", "", "Only list classes under this package prefix")
	classesCmd.Flags().Bool("json", false, "Print machine-readable class list")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search classes by simple name",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RunSearch,
	}
	searchCmd.Flags().Int("limit", search.DefaultLimit, "Maximum number of results")
	searchCmd.Flags().Bool("json", false, "Print machine-readable results")

	// Decompile Commands
	showCmd := &cobra.Command{
		Use:   "show <class>",
		Short: "Decompile a class and open it as a tab",
		Args:  cobra.ExactArgs(1),
		RunE:  RunShow,
	}
	showCmd.Flags().String("options", engine.OptionsNormal, "Decompiler option set: normal|lambdas|bytecode")
	showCmd.Flags().Bool("json", false, "Print the artifact with its tokens")

	tokensCmd := &cobra.Command{
		Use:   "tokens <class>",
		Short: "List the tokens of a decompiled class",
		Args:  cobra.ExactArgs(1),
		RunE:  RunTokens,
	}
	tokensCmd.Flags().Int("at", -1, "Only the token covering this byte offset")
	tokensCmd.Flags().String("declaration", "", "Only the declaration kind:owner[:name[:descriptor]]")
	tokensCmd.Flags().Bool("jsonl", false, "Print one JSON token per line")
	tokensCmd.Flags().Bool("json", false, "Print machine-readable tokens")

	bytecodeCmd := &cobra.Command{
		Use:   "bytecode <class>",
		Short: "Dump the class file structure of a class and its nested classes",
		Args:  cobra.ExactArgs(1),
		RunE:  RunBytecode,
	}
	bytecodeCmd.Flags().Bool("json", false, "Print the artifact as JSON")

	browseCmd := &cobra.Command{
		Use:   "browse",
		Short: "Read class selections from stdin and print the settled results",
		RunE:  RunBrowse,
	}
	browseCmd.Flags().String("options", engine.OptionsNormal, "Decompiler option set: normal|lambdas|bytecode")
	browseCmd.Flags().Bool("json", false, "Print machine-readable results")

	tabsCmd := &cobra.Command{
		Use:   "tabs [open|close|move] [class] [index]",
		Short: "List or change the open tabs",
		Args:  cobra.MaximumNArgs(3),
		RunE:  RunTabs,
	}
	tabsCmd.Flags().Bool("json", false, "Print the session as JSON")

	exportCmd := &cobra.Command{
		Use:   "export <out.zip>",
		Short: "Decompile every outer class into a zip bundle",
		Args:  cobra.ExactArgs(1),
		RunE:  RunExport,
	}
	exportCmd.Flags().String("method", "zstd", "Zip compression: zstd|deflate")
	exportCmd.Flags().Bool("json", false, "Print machine-readable export summary")

	// Index Commands
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build the usage index of the active archive",
		RunE:  RunIndex,
	}
	indexCmd.Flags().Bool("refresh", false, "Rebuild even when a complete index exists")
	indexCmd.Flags().Bool("list", false, "List indexed archive versions")
	indexCmd.Flags().Bool("drop", false, "Delete the usage index of the active archive")
	indexCmd.Flags().Bool("json", false, "Print machine-readable summary")

	usagesCmd := &cobra.Command{
		Use:   "usages [subject...]",
		Short: "Show where a class or member (owner:name:descriptor) is used",
		Long: `Show where a class or member (owner:name:descriptor) is used.

Locators are class-level: "c:net/example/A" means some field, method or
initializer of net/example/A refers to the subject. The built-in indexer
reads constant pools only, so it does not name the referencing member.`,
		RunE: RunUsages,
	}
	usagesCmd.Flags().Bool("all", false, "Print every recorded usage edge")
	usagesCmd.Flags().Bool("json", false, "Print machine-readable usages")

	inheritanceCmd := &cobra.Command{
		Use:   "inheritance [class]",
		Short: "Show the supertypes and subtypes of a class",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunInheritance,
	}
	inheritanceCmd.Flags().Bool("subtypes", false, "Include transitive subtypes")
	inheritanceCmd.Flags().Int("top", 0, "Rank the N most extended classes instead")
	inheritanceCmd.Flags().Bool("json", false, "Print machine-readable hierarchy")

	diffCmd := &cobra.Command{
		Use:   "diff <left.jar> <right.jar>",
		Short: "List outer classes added, deleted or modified between two archives",
		Args:  cobra.ExactArgs(2),
		RunE:  RunDiff,
	}
	diffCmd.Flags().String("mode", "", "Checksum mode: xor|digest (default from config)")
	diffCmd.Flags().String("source", "", "Print a unified diff of this class's decompiled source")
	diffCmd.Flags().Int("max-bytes", 0, "Skip source diffs larger than this (0: no limit)")
	diffCmd.Flags().Bool("json", false, "Print machine-readable diff")

	// Additional Commands
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE:  RunConfig,
	}
	configCmd.Flags().String("write", "", "Write the default configuration to this path if missing")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "classlens %s\n", version)
		},
	}

	rootCmd.AddCommand(
		openCmd,
		infoCmd,
		classesCmd,
		searchCmd,
		showCmd,
		tokensCmd,
		bytecodeCmd,
		browseCmd,
		tabsCmd,
		exportCmd,
		indexCmd,
		usagesCmd,
		inheritanceCmd,
		diffCmd,
		configCmd,
		versionCmd,
	)

	return rootCmd
}
