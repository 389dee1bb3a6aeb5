package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sciro24/labforge/pkg/pipeline"
)

// buildCommand creates the build command, the main entry point.
func (c *CLI) buildCommand() *cobra.Command {
	var noCache bool
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:   "build [topology-file]",
		Short: "Generate the full lab tree from a topology file",
		Long: `Generate the full lab tree from a topology file.

The build command loads a TOML or YAML topology, plans OSPF areas,
renders per-device FRR configuration and startup scripts, writes
lab.conf, and synthesizes BGP peerings between adjacent routers.

Devices whose inputs have not changed since the last build are skipped
via the fingerprint cache; use --refresh to force a full rebuild.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			opts.TopologyPath = args[0]
			opts.Logger = logger

			runner, err := c.newRunner(noCache)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			defer runner.Cache.Close()

			prog := newProgress(logger)
			result, err := runner.Execute(cmd.Context(), opts)
			if err != nil {
				printError("Build failed")
				return err
			}
			prog.done(fmt.Sprintf("Built %d devices", result.Stats.DeviceCount))

			printSuccess("Lab %s written to %s", StyleHighlight.Render(result.Lab), result.OutputDir)
			printFile(result.OutputDir + "/lab.conf")
			for _, d := range result.Devices {
				if d.Err != nil {
					printError("%s: %v", d.Name, d.Err)
					continue
				}
				printDeviceStatus(d.Name, len(d.Artifacts), d.Cached)
			}
			if result.PeersApplied > 0 {
				printDetail("%d BGP neighbor statements injected", result.PeersApplied)
			}
			if len(result.Decisions) > 0 {
				printNewline()
				printWarning("%d OSPF area groups defaulted to placeholder stub areas", len(result.Decisions))
				for _, dec := range result.Decisions {
					printDetail("%s: first octet %d -> area %s (stub)", dec.Device, dec.Group, dec.Placeholder)
				}
				printNextStep("Pin these areas in the topology file under", "ospf.extra")
			}
			if failed := result.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d devices failed", len(failed), result.Stats.DeviceCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", pipeline.DefaultOutputDir, "lab output directory")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "re-render devices even when fingerprints are cached")
	cmd.Flags().BoolVar(&opts.NoPeering, "no-peering", false, "skip BGP neighbor synthesis")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the fingerprint cache")
	cmd.Flags().StringVar(&opts.DefaultArea, "area", "", "seed the topology-wide OSPF main area")
	cmd.Flags().BoolVar(&opts.DefaultStub, "stub", false, "mark the seeded area as stub")

	return cmd
}
