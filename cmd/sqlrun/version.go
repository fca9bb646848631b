package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibesql/sqlrun/internal/version"
)

type cmdVersion struct {
	flagShort bool
	flagJSON  bool
}

func (c *cmdVersion) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "version"
	cmd.Short = "Print version information"
	cmd.Args = cobra.NoArgs
	cmd.RunE = c.Run
	cmd.Flags().BoolVar(&c.flagShort, "short", false, "Print the version number only")
	cmd.Flags().BoolVar(&c.flagJSON, "json", false, "Print version information as JSON")

	return cmd
}

func (c *cmdVersion) Run(cmd *cobra.Command, args []string) error {
	info := version.Get()
	w := cmd.OutOrStdout()

	switch {
	case c.flagJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case c.flagShort:
		_, err := fmt.Fprintln(w, info.Short())
		return err
	default:
		_, err := fmt.Fprintln(w, info.Full())
		return err
	}
}
