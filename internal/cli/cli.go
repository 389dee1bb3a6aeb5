// Package cli implements the labforge command-line interface.
//
// This package provides commands for building network-simulation labs
// from topology files, inspecting OSPF area plans, synthesizing BGP
// peerings into existing labs, editing emitted configuration and
// managing the build cache. The CLI is built using cobra and supports
// verbose logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - build: Generate the full lab tree from a topology file
//   - plan: Show the OSPF area plan without writing anything
//   - peers: Synthesize BGP neighbor statements into an emitted lab
//   - inject: Insert lines into a router block of a config file
//   - loopback: Retrofit a loopback address onto an emitted lab
//   - policy: Classify a BGP peer as customer, peer or provider
//   - cache: Manage the build fingerprint cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sciro24/labforge/pkg/buildinfo"
	"github.com/sciro24/labforge/pkg/cache"
	"github.com/sciro24/labforge/pkg/pipeline"
)

// appName is the application name used for directories and display.
const appName = "labforge"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Labforge generates router lab configurations from topology files",
		Long:         `Labforge is a CLI tool that turns a declarative topology file into a complete simulated-network lab: FRR configuration trees, startup scripts, collision-domain wiring and BGP peerings.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Commands read the logger back with loggerFromContext.
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		return nil
	}

	root.AddCommand(c.buildCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.peersCommand())
	root.AddCommand(c.injectCommand())
	root.AddCommand(c.loopbackCommand())
	root.AddCommand(c.policyCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(noCache bool) (*pipeline.Runner, error) {
	backend, err := newCache(noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(backend, c.Logger), nil
}

func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// cacheDir returns the cache directory using XDG standard (~/.cache/labforge/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
