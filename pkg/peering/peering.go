// Package peering synthesizes BGP neighbor statements from topology
// adjacency. BGP routers that share a collision domain become
// neighbors over their interface addresses; BGP routers that share an
// AS number are additionally meshed over their loopbacks, with each
// session pinned to the local loopback via update-source. Devices not
// running bgp take no part in either derivation. Synthesis is pure;
// Apply performs the idempotent injection into emitted configuration
// files.
package peering

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/sciro24/labforge/pkg/errors"
	"github.com/sciro24/labforge/pkg/stanza"
	"github.com/sciro24/labforge/pkg/topology"
)

// Neighbor is one BGP neighbor statement destined for a device's
// configuration. UpdateSource is set only for iBGP sessions.
type Neighbor struct {
	Device       string     // device receiving the statement
	ASN          string     // that device's own AS
	Peer         string     // peer device name
	Address      netip.Addr // peer address the session targets
	RemoteAS     string
	UpdateSource netip.Addr
}

// Lines renders the statement as frr.conf lines for the router bgp block.
func (n Neighbor) Lines() []string {
	out := []string{
		fmt.Sprintf("neighbor %s remote-as %s", n.Address, n.RemoteAS),
		fmt.Sprintf("neighbor %s description Router %s", n.Address, n.Peer),
	}
	if n.UpdateSource.IsValid() {
		out = append(out, fmt.Sprintf("neighbor %s update-source %s", n.Address, n.UpdateSource))
	}
	return out
}

// marker is the substring Apply checks for before injecting, keeping
// repeated runs idempotent.
func (n Neighbor) marker() string {
	return fmt.Sprintf("neighbor %s remote-as", n.Address)
}

// Synthesize computes every neighbor statement the topology implies.
// Statements are ordered by receiving device, then by peer name, so
// output is stable across runs.
func Synthesize(idx *topology.Index) ([]Neighbor, error) {
	var out []Neighbor

	ebgp, err := externalNeighbors(idx)
	if err != nil {
		return nil, err
	}
	out = append(out, ebgp...)

	ibgp, err := internalNeighbors(idx)
	if err != nil {
		return nil, err
	}
	out = append(out, ibgp...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Device != out[j].Device {
			return out[i].Device < out[j].Device
		}
		return out[i].Peer < out[j].Peer
	})
	return out, nil
}

// externalNeighbors pairs the BGP routers sharing a collision domain,
// in both directions, regardless of AS. Same-AS pairs peer over their
// interface addresses even before any loopback exists; the loopback
// mesh is derived separately and the caller-side duplicate check keeps
// the two from doubling up.
func externalNeighbors(idx *topology.Index) ([]Neighbor, error) {
	var out []Neighbor
	domains, err := idx.Domains()
	if err != nil {
		return nil, err
	}
	for _, dom := range domains {
		bindings, err := idx.BindingsByDomain(dom)
		if err != nil {
			return nil, err
		}
		for _, a := range bindings {
			if !a.BGP || a.ASN == "" {
				continue
			}
			for _, b := range bindings {
				if b.Device == a.Device || !b.BGP || b.ASN == "" {
					continue
				}
				addr, err := netip.ParsePrefix(b.Address)
				if err != nil {
					continue
				}
				out = append(out, Neighbor{
					Device:   a.Device,
					ASN:      a.ASN,
					Peer:     b.Device,
					Address:  addr.Addr(),
					RemoteAS: b.ASN,
				})
			}
		}
	}
	return out, nil
}

// internalNeighbors fully meshes the BGP routers of each AS over their
// loopbacks. Routers without a loopback are left out of the mesh.
func internalNeighbors(idx *topology.Index) ([]Neighbor, error) {
	var out []Neighbor
	asns, err := idx.ASNs()
	if err != nil {
		return nil, err
	}
	for _, asn := range asns {
		devices, err := idx.DevicesByASN(asn)
		if err != nil {
			return nil, err
		}
		for _, a := range devices {
			if !a.Has(topology.ProtocolBGP) {
				continue
			}
			src, ok := a.FirstLoopback()
			if !ok {
				continue
			}
			for _, b := range devices {
				if b.Name == a.Name || !b.Has(topology.ProtocolBGP) {
					continue
				}
				dst, ok := b.FirstLoopback()
				if !ok {
					continue
				}
				out = append(out, Neighbor{
					Device:       a.Name,
					ASN:          asn,
					Peer:         b.Name,
					Address:      dst.Addr(),
					RemoteAS:     asn,
					UpdateSource: src.Addr(),
				})
			}
		}
	}
	return out, nil
}

// Apply injects each statement into the receiving device's frr.conf,
// located through confPath. Devices whose file already names the peer
// are skipped, as are devices with no emitted config. Returns the
// number of statements written.
func Apply(neighbors []Neighbor, confPath func(device string) string) (int, error) {
	applied := 0
	for _, n := range neighbors {
		path := confPath(n.Device)
		present, err := stanza.FileContains(path, n.marker())
		if err != nil {
			return applied, err
		}
		if present {
			continue
		}
		if _, err := stanza.InjectFile(path, "bgp", n.ASN, n.Lines()); err != nil {
			if errors.GetCode(err) == errors.ErrCodeFileNotFound {
				continue
			}
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Relationship classifies a BGP neighbor for local-preference policy.
type Relationship string

const (
	RelPeer     Relationship = "peer"
	RelProvider Relationship = "provider"
	RelCustomer Relationship = "customer"
)

// LocalPref returns the local-preference a relationship maps to:
// customers are preferred over peers, peers over providers.
func LocalPref(rel Relationship) (int, error) {
	switch rel {
	case RelCustomer:
		return 120, nil
	case RelPeer:
		return 100, nil
	case RelProvider:
		return 80, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidProtocol, "unknown relationship %q", rel)
}

// Policy is a rendered neighbor policy: definition blocks appended at
// end-of-file and neighbor references injected into the router bgp
// block. The first neighbor line doubles as the idempotence marker.
type Policy struct {
	Blocks        []string
	NeighborLines []string
}

// policyTag renders the per-peer name suffix shared by route-maps and
// prefix-lists, dots and colons dashed.
func policyTag(peer netip.Addr, rel Relationship) string {
	return fmt.Sprintf("%s-%s", strings.ToUpper(string(rel)), strings.NewReplacer(".", "-", ":", "-").Replace(peer.String()))
}

// RelationshipPolicy renders the inbound local-preference policy for
// the given peer address.
func RelationshipPolicy(peer netip.Addr, rel Relationship) (Policy, error) {
	pref, err := LocalPref(rel)
	if err != nil {
		return Policy{}, err
	}
	name := fmt.Sprintf("RM-%s-IN", policyTag(peer, rel))
	rm := fmt.Sprintf("route-map %s permit 10\n%sset local-preference %d\n", name, stanza.Indent, pref)
	return Policy{
		Blocks:        []string{rm},
		NeighborLines: []string{fmt.Sprintf("neighbor %s route-map %s in", peer, name)},
	}, nil
}

// FilterPolicy renders permit-any inbound and outbound prefix-lists for
// the peer. The lists start wide open so operators can tighten them by
// hand after the lab is built.
func FilterPolicy(peer netip.Addr, rel Relationship) (Policy, error) {
	if _, err := LocalPref(rel); err != nil {
		return Policy{}, err
	}
	in := fmt.Sprintf("PL-%s-IN", policyTag(peer, rel))
	out := fmt.Sprintf("PL-%s-OUT", policyTag(peer, rel))
	return Policy{
		Blocks: []string{
			fmt.Sprintf("ip prefix-list %s permit any\n", in),
			fmt.Sprintf("ip prefix-list %s permit any\n", out),
		},
		NeighborLines: []string{
			fmt.Sprintf("neighbor %s prefix-list %s in", peer, in),
			fmt.Sprintf("neighbor %s prefix-list %s out", peer, out),
		},
	}, nil
}

// applyPolicy writes a rendered policy into the frr.conf at path:
// definition blocks at end-of-file, neighbor references into the
// router bgp block. Skipped entirely when the first neighbor line is
// already present.
func applyPolicy(path string, pol Policy) error {
	present, err := stanza.FileContains(path, pol.NeighborLines[0])
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	for _, block := range pol.Blocks {
		if err := stanza.AppendFile(path, block); err != nil {
			return err
		}
	}
	_, err = stanza.InjectFile(path, "bgp", "", pol.NeighborLines)
	return err
}

// ApplyRelationship writes the relationship local-preference policy
// into the device's frr.conf at path, and when filter is set the
// permit-any prefix-lists alongside it. Re-running with the same
// arguments is a no-op.
func ApplyRelationship(path string, peer netip.Addr, rel Relationship, filter bool) error {
	pol, err := RelationshipPolicy(peer, rel)
	if err != nil {
		return err
	}
	if err := applyPolicy(path, pol); err != nil {
		return err
	}
	if !filter {
		return nil
	}
	fp, err := FilterPolicy(peer, rel)
	if err != nil {
		return err
	}
	return applyPolicy(path, fp)
}
