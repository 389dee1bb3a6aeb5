package cli

import (
	"github.com/spf13/cobra"

	"github.com/sciro24/labforge/pkg/errors"
	"github.com/sciro24/labforge/pkg/stanza"
)

// injectCommand creates the inject command, a thin CLI over the
// structural config editor.
func (c *CLI) injectCommand() *cobra.Command {
	var (
		file  string
		proto string
		match string
	)

	cmd := &cobra.Command{
		Use:   "inject [lines...]",
		Short: "Insert lines into a router block of a config file",
		Long: `Insert lines into a router block of a config file.

Each line is placed inside the first "router <protocol>" block of the
file, 4-space indented, after the block's existing lines. When no such
block exists the lines are appended at end-of-file. Use --match to
disambiguate between multiple blocks of the same protocol (for
example, two "router bgp" blocks with different AS numbers).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := stanza.InjectFile(file, proto, match, args)
			if err != nil {
				return err
			}
			if !found {
				loggerFromContext(cmd.Context()).Warn("no matching router block, lines appended at end of file",
					"file", file,
					"protocol", proto,
					"code", errors.ErrCodeMissingStanza)
			}
			printSuccess("Injected %d lines into %s", len(args), file)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "config file to edit")
	cmd.Flags().StringVarP(&proto, "protocol", "p", "", "router block protocol (bgp, ospf, rip)")
	cmd.Flags().StringVarP(&match, "match", "m", "", "extra token the block header must contain")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("protocol")

	return cmd
}
