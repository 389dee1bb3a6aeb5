package cli

import (
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"

	"github.com/sciro24/labforge/pkg/pipeline"
)

// loopbackCommand creates the loopback command for retrofitting a
// loopback address onto an emitted lab.
func (c *CLI) loopbackCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "loopback [topology-file] [device] [address]",
		Short: "Add a loopback address to a device of an emitted lab",
		Long: `Add a loopback address to a device of an emitted lab.

The address (a /32, or /128 for IPv6) is configured in the device's
startup script before any service starts, and announced through the
device's OSPF and RIP stanzas. BGP announcements never include
loopbacks. iBGP synthesis re-runs afterwards, since a new loopback can
complete a previously impossible same-AS mesh.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addrArg := args[2]
			prefix, err := netip.ParsePrefix(addrArg)
			if err != nil {
				addr, aerr := netip.ParseAddr(addrArg)
				if aerr != nil {
					return fmt.Errorf("invalid loopback address %q: %w", addrArg, err)
				}
				prefix = netip.PrefixFrom(addr, addr.BitLen())
			}

			runner, err := c.newRunner(true)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			if err := runner.AddLoopback(pipeline.LoopbackOptions{
				TopologyPath: args[0],
				OutputDir:    output,
				Device:       args[1],
				Address:      prefix,
			}); err != nil {
				return err
			}
			printSuccess("Added loopback %s to %s", prefix, args[1])
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", pipeline.DefaultOutputDir, "lab directory")

	return cmd
}
