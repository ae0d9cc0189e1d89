package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/morozRed/classlens/internal/config"
	"github.com/morozRed/classlens/internal/fileutil"
)

// RunConfig prints the effective configuration, or writes the defaults
// to --write when that file does not exist yet.
func RunConfig(cmd *cobra.Command, args []string) error {
	writePath, err := OptionalStringFlag(cmd, "write")
	if err != nil {
		return err
	}
	if writePath != "" {
		data, err := yaml.Marshal(config.Default())
		if err != nil {
			return fmt.Errorf("failed to encode default config: %w", err)
		}
		if err := fileutil.WriteIfMissing(writePath, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config: %s\n", writePath)
		return nil
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	data, err := yaml.Marshal(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = a.out.Write(data)
	return err
}
