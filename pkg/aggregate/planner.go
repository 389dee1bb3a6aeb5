package aggregate

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/sciro24/labforge/pkg/netaddr"
	"github.com/sciro24/labforge/pkg/topology"
)

// BackboneArea is the default OSPF main area.
const BackboneArea = "0.0.0.0"

// PlanContext carries the topology-wide OSPF planning state across
// sequential per-device calls. The first OSPF-enabled device planned
// establishes the default main area offered to every later device that
// does not configure one. The zero value is ready to use.
type PlanContext struct {
	DefaultArea string
	DefaultStub bool
	established bool
}

// NewPlanContext seeds a context with an operator-chosen default main
// area. An empty area leaves the context open, so the first configured
// OSPF device establishes the default instead.
func NewPlanContext(area string, stub bool) *PlanContext {
	return &PlanContext{
		DefaultArea: area,
		DefaultStub: stub,
		established: area != "",
	}
}

// observe records the first explicitly chosen main area as the topology
// default.
func (c *PlanContext) observe(area string, stub bool) {
	if c.established {
		return
	}
	c.DefaultArea = area
	c.DefaultStub = stub
	c.established = true
}

// Assignment maps one group of networks to an OSPF area.
type Assignment struct {
	Area     string
	Stub     bool
	Main     bool
	Group    int // locality-group first octet; -1 when the device has a single group
	Networks []netip.Prefix
}

// Decision describes a locality group the planner could not resolve
// without operator input. The group has already been assigned
// Placeholder (a deterministic stub area); callers may accept it or
// answer through Plan.Finalize.
type Decision struct {
	Device      string
	Group       int
	Addresses   []netip.Prefix
	Placeholder string
}

// Plan is the planner's output for one device: the area assignments in
// emission order plus the unresolved groups. Exactly one assignment is
// the main one when any assignment exists.
type Plan struct {
	Device      string
	Assignments []Assignment
	Decisions   []Decision
}

// placeholderArea derives the deterministic stub placeholder for an
// unconfigured locality group. Distinct groups get distinct ids, so two
// unconfigured groups on one device can no longer collide.
func placeholderArea(octet int) string {
	return fmt.Sprintf("%d.%d.%d.%d", octet, octet, octet, octet)
}

// localityGroups buckets IPv4 addresses by first octet. IPv6 addresses
// have no octet-aligned locality heuristic and always travel with the
// main group.
func localityGroups(addrs []netip.Prefix) (map[int][]netip.Prefix, []netip.Prefix) {
	groups := make(map[int][]netip.Prefix)
	var v6 []netip.Prefix
	for _, a := range addrs {
		if !a.IsValid() {
			continue
		}
		if o, ok := netaddr.FirstOctet(a); ok {
			groups[o] = append(groups[o], a)
		} else {
			v6 = append(v6, a)
		}
	}
	return groups, v6
}

// PlanAreas partitions a device's physical and loopback addressing into
// OSPF area assignments. The grouping heuristic assumes addressing is
// octet-aligned per physical cloud.
//
// A single locality group takes the device's configured area, or the
// topology default. With multiple groups the largest becomes main (equal
// sizes break toward the lower first octet), all loopbacks join the main
// area regardless of their own locality, and the remaining groups take a
// pre-supplied extra area or a deterministic placeholder stub area that
// is also surfaced as a Decision.
//
// The function is pure with respect to the device: it only reads the
// topology and mutates ctx (establishing the topology default).
func PlanAreas(ctx *PlanContext, d *topology.Device) Plan {
	plan := Plan{Device: d.Name}
	combined := d.CombinedAddresses()
	if len(combined) == 0 {
		return plan
	}

	mainArea, mainStub := mainAreaFor(ctx, d)
	groups, v6 := localityGroups(combined)

	if len(groups) <= 1 {
		nets := groupNetworks(combined, nil)
		nets = append(nets, netaddr.Collapse(v6)...)
		plan.Assignments = []Assignment{{
			Area:     mainArea,
			Stub:     mainStub,
			Main:     true,
			Group:    -1,
			Networks: dedupe(nets),
		}}
		return plan
	}

	mainKey := mainGroupKey(groups)
	mainNets := groupNetworks(groups[mainKey], d.Loopbacks)
	// Loopbacks always land in the main area, whatever their own octet.
	for _, lb := range d.Loopbacks {
		mainNets = append(mainNets, netaddr.Network(lb))
	}
	mainNets = append(mainNets, netaddr.Collapse(v6)...)
	plan.Assignments = append(plan.Assignments, Assignment{
		Area:     mainArea,
		Stub:     mainStub,
		Main:     true,
		Group:    mainKey,
		Networks: dedupe(mainNets),
	})

	keys := make([]int, 0, len(groups))
	for k := range groups {
		if k != mainKey {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)

	for _, k := range keys {
		nets := dedupe(groupNetworks(groups[k], d.Loopbacks))
		if extra, ok := d.OSPF.ExtraAreas[k]; ok {
			plan.Assignments = append(plan.Assignments, Assignment{
				Area:     extra.Area,
				Stub:     extra.Stub,
				Group:    k,
				Networks: nets,
			})
			continue
		}
		ph := placeholderArea(k)
		plan.Assignments = append(plan.Assignments, Assignment{
			Area:     ph,
			Stub:     true,
			Group:    k,
			Networks: nets,
		})
		addrs := append([]netip.Prefix(nil), groups[k]...)
		netaddr.Sort(addrs)
		plan.Decisions = append(plan.Decisions, Decision{
			Device:      d.Name,
			Group:       k,
			Addresses:   addrs,
			Placeholder: ph,
		})
	}
	return plan
}

// Finalize applies operator answers for pending decisions, keyed by
// locality-group first octet, and returns the completed plan. Groups
// without an answer keep their placeholder assignment.
func (p Plan) Finalize(answers map[int]topology.ExtraArea) Plan {
	if len(answers) == 0 {
		return p
	}
	out := Plan{Device: p.Device}
	for _, a := range p.Assignments {
		if ans, ok := answers[a.Group]; ok && !a.Main {
			a.Area = ans.Area
			a.Stub = ans.Stub
		}
		out.Assignments = append(out.Assignments, a)
	}
	for _, dec := range p.Decisions {
		if _, ok := answers[dec.Group]; !ok {
			out.Decisions = append(out.Decisions, dec)
		}
	}
	return out
}

// mainAreaFor resolves the device's main area and stub flag against the
// planning context, establishing the context default on first use.
func mainAreaFor(ctx *PlanContext, d *topology.Device) (string, bool) {
	area := d.OSPF.Area
	stub := d.OSPF.Stub
	if area == "" {
		if ctx.established {
			area = ctx.DefaultArea
			stub = stub || ctx.DefaultStub
		} else {
			area = BackboneArea
		}
	}
	ctx.observe(area, stub)
	return area, stub
}

// mainGroupKey picks the largest locality group; on ties the lower first
// octet wins, keeping planning independent of map iteration order.
func mainGroupKey(groups map[int][]netip.Prefix) int {
	best := -1
	for k, members := range groups {
		if best == -1 || len(members) > len(groups[best]) ||
			(len(members) == len(groups[best]) && k < best) {
			best = k
		}
	}
	return best
}

func dedupe(nets []netip.Prefix) []netip.Prefix {
	seen := make(map[netip.Prefix]struct{}, len(nets))
	out := nets[:0]
	for _, n := range nets {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
