package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sciro24/labforge/pkg/pipeline"
)

// peersCommand creates the peers command for re-running BGP synthesis
// against an already emitted lab.
func (c *CLI) peersCommand() *cobra.Command {
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:   "peers [topology-file]",
		Short: "Synthesize BGP neighbor statements into an emitted lab",
		Long: `Synthesize BGP neighbor statements into an emitted lab.

BGP routers sharing a collision domain become neighbors over their
interface addresses; BGP routers sharing an AS number are additionally
meshed over their loopbacks as iBGP sessions. Statements already
present in a config file are left untouched, so the command is safe to
re-run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TopologyPath = args[0]

			runner, err := c.newRunner(true)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			applied, err := runner.Peer(opts)
			if err != nil {
				return err
			}
			if applied == 0 {
				printInfo("All neighbor statements already present")
				return nil
			}
			printSuccess("Injected %d neighbor statements", applied)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", pipeline.DefaultOutputDir, "lab directory")

	return cmd
}
