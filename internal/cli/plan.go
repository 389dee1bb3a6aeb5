package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sciro24/labforge/pkg/netaddr"
	"github.com/sciro24/labforge/pkg/pipeline"
)

// planCommand creates the plan command for inspecting OSPF areas.
func (c *CLI) planCommand() *cobra.Command {
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:   "plan [topology-file]",
		Short: "Show the OSPF area plan without writing anything",
		Long: `Show the OSPF area plan without writing anything.

For every OSPF device the plan lists the area each network group is
assigned to, which assignment is the backbone-equivalent main one, and
the locality groups that fell back to a placeholder stub area because
the topology does not configure them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TopologyPath = args[0]

			runner, err := c.newRunner(true)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			topo, plans, err := runner.PlanOnly(opts)
			if err != nil {
				return err
			}

			fmt.Println(StyleTitle.Render("OSPF area plan for " + topo.Name))
			if len(plans) == 0 {
				printInfo("No OSPF devices in this topology")
				return nil
			}
			for _, plan := range plans {
				printNewline()
				printKeyValue("device", plan.Device)
				for _, a := range plan.Assignments {
					marker := ""
					if a.Main {
						marker = StyleHighlight.Render(" (main)")
					}
					if a.Stub {
						marker += StyleDim.Render(" stub")
					}
					for _, n := range netaddr.Strings(a.Networks) {
						printDetail("network %-20s area %s%s", n, a.Area, marker)
					}
				}
				for _, dec := range plan.Decisions {
					printWarning("group %d has no configured area, using %s", dec.Group, dec.Placeholder)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.DefaultArea, "area", "", "seed the topology-wide OSPF main area")
	cmd.Flags().BoolVar(&opts.DefaultStub, "stub", false, "mark the seeded area as stub")

	return cmd
}
