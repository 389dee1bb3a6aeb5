// Package pipeline provides the lab synthesis pipeline.
//
// This package implements the complete load → plan → render → emit →
// peer pipeline shared by every CLI entry point. Centralizing it keeps
// behavior consistent and lets individual stages run on their own.
//
// # Architecture
//
// The pipeline consists of five stages:
//
//  1. Load: parse and validate the topology file
//  2. Plan: compute OSPF area assignments per device
//  3. Render: build each device's artifact set (FRR tree, startup)
//  4. Emit: persist the artifacts plus lab.conf under the lab directory
//  5. Peer: synthesize BGP neighbor statements into the emitted configs
//
// A device that fails to render is logged and skipped; the rest of the
// topology still builds.
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/sciro24/labforge/pkg/aggregate"
	"github.com/sciro24/labforge/pkg/errors"
)

// DefaultOutputDir is where labs land when no directory is given.
const DefaultOutputDir = "lab"

// DeviceTTL bounds how long a device fingerprint stays valid in the
// cache before a rebuild re-renders it regardless.
const DeviceTTL = 30 * 24 * time.Hour

// Options configures a pipeline run.
type Options struct {
	// TopologyPath is the TOML or YAML topology file.
	TopologyPath string `json:"topology_path"`

	// OutputDir is the lab directory artifacts are written to.
	OutputDir string `json:"output_dir,omitempty"`

	// Refresh forces re-rendering even when fingerprints are cached.
	Refresh bool `json:"refresh,omitempty"`

	// NoPeering skips the BGP neighbor synthesis stage.
	NoPeering bool `json:"no_peering,omitempty"`

	// DefaultArea seeds the topology-wide OSPF main area. Empty means
	// the first configured OSPF device establishes it.
	DefaultArea string `json:"default_area,omitempty"`

	// DefaultStub marks the seeded default area as stub.
	DefaultStub bool `json:"default_stub,omitempty"`

	// Logger overrides the runner's logger for this run.
	Logger *log.Logger `json:"-"`
}

// ValidateAndSetDefaults checks required fields and applies defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.TopologyPath == "" {
		return errors.New(errors.ErrCodeInvalidTopology, "topology path is required")
	}
	if o.OutputDir == "" {
		o.OutputDir = DefaultOutputDir
	}
	return nil
}

// DeviceStatus reports the outcome of one device's render.
type DeviceStatus struct {
	Name      string
	Cached    bool     // artifacts unchanged, render skipped
	Artifacts []string // lab-relative paths written
	Err       error    // render or emit failure; device was skipped
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID uniquely identifies this run in logs.
	RunID string

	// Lab is the topology name.
	Lab string

	// OutputDir is the directory the lab was written to.
	OutputDir string

	// Devices reports per-device status in topology order.
	Devices []DeviceStatus

	// Decisions lists OSPF area placeholders awaiting an operator
	// answer, across all devices.
	Decisions []aggregate.Decision

	// PeersApplied counts the neighbor statements injected.
	PeersApplied int

	// Stats contains timing information.
	Stats Stats
}

// Failed returns the statuses of devices that did not build.
func (r *Result) Failed() []DeviceStatus {
	var out []DeviceStatus
	for _, d := range r.Devices {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// Stats contains pipeline execution statistics.
type Stats struct {
	DeviceCount int
	LoadTime    time.Duration
	RenderTime  time.Duration
	PeerTime    time.Duration
}
