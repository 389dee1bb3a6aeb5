package pipeline

import (
	"context"
	"fmt"
	"net/netip"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sciro24/labforge/pkg/aggregate"
	"github.com/sciro24/labforge/pkg/cache"
	"github.com/sciro24/labforge/pkg/emit"
	"github.com/sciro24/labforge/pkg/errors"
	"github.com/sciro24/labforge/pkg/netaddr"
	"github.com/sciro24/labforge/pkg/peering"
	"github.com/sciro24/labforge/pkg/stanza"
	"github.com/sciro24/labforge/pkg/topology"
)

// Runner executes the lab pipeline with caching. It is stateless apart
// from the cache and logger, so one Runner can serve many runs.
type Runner struct {
	Cache  cache.Cache
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables caching; a nil
// logger falls back to the default logger.
func NewRunner(c cache.Cache, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Logger: logger}
}

func (r *Runner) logger(opts Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return r.Logger
}

// Execute runs the complete load → plan → render → emit → peer pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := r.logger(opts)

	result := &Result{
		RunID:     uuid.NewString(),
		OutputDir: opts.OutputDir,
	}

	loadStart := time.Now()
	topo, err := topology.Load(opts.TopologyPath)
	if err != nil {
		return nil, err
	}
	result.Lab = topo.Name
	result.Stats.LoadTime = time.Since(loadStart)
	result.Stats.DeviceCount = len(topo.Devices)

	logger.Info("loaded topology",
		"lab", topo.Name,
		"devices", len(topo.Devices),
		"duration", result.Stats.LoadTime)

	renderStart := time.Now()
	planCtx := aggregate.NewPlanContext(opts.DefaultArea, opts.DefaultStub)
	for _, d := range topo.Devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		status := r.buildDevice(ctx, opts, planCtx, d, result)
		result.Devices = append(result.Devices, status)
		if status.Err != nil {
			logger.Error("device failed, skipping", "device", d.Name, "err", status.Err)
			continue
		}
		if status.Cached {
			logger.Debug("device unchanged, skipped", "device", d.Name)
		} else {
			logger.Info("built device", "device", d.Name, "artifacts", len(status.Artifacts))
		}
	}
	if err := emit.Write(opts.OutputDir, emit.Set{
		"lab.conf": {Content: emit.LabConf(topo), Mode: 0o644},
	}); err != nil {
		return nil, err
	}
	result.Stats.RenderTime = time.Since(renderStart)

	if !opts.NoPeering {
		peerStart := time.Now()
		applied, err := r.peer(topo, opts.OutputDir)
		if err != nil {
			return nil, err
		}
		result.PeersApplied = applied
		result.Stats.PeerTime = time.Since(peerStart)
		logger.Info("synthesized peerings",
			"applied", applied,
			"duration", result.Stats.PeerTime)
	}

	return result, nil
}

// buildDevice plans, renders and emits one device, consulting the
// fingerprint cache first. Failures are contained in the status.
func (r *Runner) buildDevice(ctx context.Context, opts Options, planCtx *aggregate.PlanContext, d *topology.Device, result *Result) DeviceStatus {
	status := DeviceStatus{Name: d.Name}

	var plan aggregate.Plan
	if d.Has(topology.ProtocolOSPF) {
		plan = aggregate.PlanAreas(planCtx, d)
		result.Decisions = append(result.Decisions, plan.Decisions...)
		for _, dec := range plan.Decisions {
			r.logger(opts).Warn("ospf locality group unresolved, using placeholder stub area",
				"device", dec.Device,
				"group", dec.Group,
				"area", dec.Placeholder,
				"code", errors.ErrCodeAmbiguousLocality)
		}
	}

	fp, err := cache.Fingerprint(struct {
		Device      *topology.Device       `json:"device"`
		Assignments []aggregate.Assignment `json:"assignments"`
	}{d, plan.Assignments})
	if err != nil {
		status.Err = errors.Wrap(errors.ErrCodeInternal, err, "fingerprinting %s", d.Name)
		return status
	}
	key := cache.DeviceKey(result.Lab, d.Name, fp)
	if !opts.Refresh {
		if _, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			status.Cached = true
			return status
		}
	}

	set := emit.Device(d, plan.Assignments)
	if err := emit.Write(opts.OutputDir, set); err != nil {
		status.Err = err
		return status
	}
	status.Artifacts = set.Paths()
	if err := r.Cache.Set(ctx, key, []byte(fp), DeviceTTL); err != nil {
		// A failed cache write only costs a future rebuild.
		r.logger(opts).Debug("cache write failed", "device", d.Name, "err", err)
	}
	return status
}

// PlanOnly loads the topology and computes every device's OSPF plan
// without writing anything.
func (r *Runner) PlanOnly(opts Options) (*topology.Topology, []aggregate.Plan, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, err
	}
	topo, err := topology.Load(opts.TopologyPath)
	if err != nil {
		return nil, nil, err
	}
	planCtx := aggregate.NewPlanContext(opts.DefaultArea, opts.DefaultStub)
	var plans []aggregate.Plan
	for _, d := range topo.Devices {
		if !d.Has(topology.ProtocolOSPF) {
			continue
		}
		plans = append(plans, aggregate.PlanAreas(planCtx, d))
	}
	return topo, plans, nil
}

// Peer runs neighbor synthesis against an already emitted lab.
func (r *Runner) Peer(opts Options) (int, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return 0, err
	}
	topo, err := topology.Load(opts.TopologyPath)
	if err != nil {
		return 0, err
	}
	return r.peer(topo, opts.OutputDir)
}

func (r *Runner) peer(topo *topology.Topology, dir string) (int, error) {
	idx, err := topology.NewIndex(topo)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "indexing topology")
	}
	neighbors, err := peering.Synthesize(idx)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "synthesizing neighbors")
	}
	return peering.Apply(neighbors, func(device string) string {
		return filepath.Join(dir, emit.FRRConfPath(device))
	})
}

// LoopbackOptions configures AddLoopback.
type LoopbackOptions struct {
	TopologyPath string
	OutputDir    string
	Device       string
	Address      netip.Prefix // /32 (or /128)
}

// AddLoopback retrofits a loopback onto an already emitted lab: the
// device model gains the address, the startup script configures it
// before any service starts, and the device's OSPF and RIP stanzas
// announce it. BGP announcements never include loopbacks, so the bgp
// stanza is left alone. iBGP synthesis re-runs afterwards since a new
// loopback can complete a previously impossible mesh.
func (r *Runner) AddLoopback(opts LoopbackOptions) error {
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	topo, err := topology.Load(opts.TopologyPath)
	if err != nil {
		return err
	}
	d, ok := topo.Device(opts.Device)
	if !ok {
		return errors.New(errors.ErrCodeUnknownDevice, "device %q is not in the topology", opts.Device)
	}
	if err := d.AddLoopback(opts.Address); err != nil {
		return err
	}

	startup := filepath.Join(opts.OutputDir, d.Name+".startup")
	line := fmt.Sprintf("ip address add %s dev lo", opts.Address)
	present, err := stanza.FileContains(startup, line)
	if err != nil {
		return err
	}
	if !present {
		if err := emit.RewriteFile(startup, func(content string) string {
			return emit.StartupInsertBeforeServices(content, []string{line})
		}); err != nil {
			return err
		}
	}

	conf := filepath.Join(opts.OutputDir, emit.FRRConfPath(d.Name))
	network := netaddr.Network(opts.Address)
	if d.Has(topology.ProtocolOSPF) {
		area := aggregate.BackboneArea
		if d.OSPF.Area != "" {
			area = d.OSPF.Area
		}
		netLine := fmt.Sprintf("network %s area %s", network, area)
		if err := injectOnce(conf, "ospf", netLine); err != nil {
			return err
		}
	}
	if d.Has(topology.ProtocolRIP) {
		netLine := fmt.Sprintf("network %s", network)
		if err := injectOnce(conf, "rip", netLine); err != nil {
			return err
		}
	}

	r.Logger.Info("added loopback", "device", d.Name, "address", opts.Address)
	_, err = r.peer(topo, opts.OutputDir)
	return err
}

// RelationshipOptions configures SetRelationship.
type RelationshipOptions struct {
	TopologyPath string
	OutputDir    string
	Device       string
	Peer         netip.Addr
	Relationship peering.Relationship
	Filter       bool // also install permit-any prefix-lists
}

// SetRelationship classifies a BGP peer of an already emitted lab,
// writing the local-preference route-map (and optional prefix-list
// filters) into the device's frr.conf.
func (r *Runner) SetRelationship(opts RelationshipOptions) error {
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	topo, err := topology.Load(opts.TopologyPath)
	if err != nil {
		return err
	}
	d, ok := topo.Device(opts.Device)
	if !ok {
		return errors.New(errors.ErrCodeUnknownDevice, "device %q is not in the topology", opts.Device)
	}
	if !d.Has(topology.ProtocolBGP) {
		return errors.New(errors.ErrCodeInvalidProtocol, "device %q does not run bgp", d.Name)
	}
	conf := filepath.Join(opts.OutputDir, emit.FRRConfPath(d.Name))
	if err := peering.ApplyRelationship(conf, opts.Peer, opts.Relationship, opts.Filter); err != nil {
		return err
	}
	r.Logger.Info("classified peer",
		"device", d.Name,
		"peer", opts.Peer,
		"relationship", opts.Relationship)
	return nil
}

// injectOnce inserts a line into the named router block unless the file
// already carries it.
func injectOnce(path, proto, line string) error {
	present, err := stanza.FileContains(path, line)
	if err != nil || present {
		return err
	}
	_, err = stanza.InjectFile(path, proto, "", []string{line})
	return err
}
