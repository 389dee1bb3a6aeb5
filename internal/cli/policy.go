package cli

import (
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"

	"github.com/sciro24/labforge/pkg/peering"
	"github.com/sciro24/labforge/pkg/pipeline"
)

// policyCommand creates the policy command for classifying BGP peers
// of an emitted lab.
func (c *CLI) policyCommand() *cobra.Command {
	var (
		output string
		filter bool
	)

	cmd := &cobra.Command{
		Use:   "policy [topology-file] [device] [peer-address] [relationship]",
		Short: "Classify a BGP peer as customer, peer or provider",
		Long: `Classify a BGP peer as customer, peer or provider.

The device's frr.conf gains an inbound route-map setting the
local-preference the relationship implies: customers 120, peers 100,
providers 80. With --filter, permit-any prefix-lists are installed in
both directions as a starting point for manual tightening. Re-running
with the same arguments is a no-op.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := netip.ParseAddr(args[2])
			if err != nil {
				return fmt.Errorf("invalid peer address %q: %w", args[2], err)
			}
			rel := peering.Relationship(args[3])

			runner, err := c.newRunner(true)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			if err := runner.SetRelationship(pipeline.RelationshipOptions{
				TopologyPath: args[0],
				OutputDir:    output,
				Device:       args[1],
				Peer:         peer,
				Relationship: rel,
				Filter:       filter,
			}); err != nil {
				return err
			}
			printSuccess("Classified %s as %s of %s", peer, rel, args[1])
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", pipeline.DefaultOutputDir, "lab directory")
	cmd.Flags().BoolVar(&filter, "filter", false, "also install permit-any prefix-lists")

	return cmd
}
