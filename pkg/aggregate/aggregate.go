// Package aggregate derives per-protocol announced-network sets from a
// device's interface addressing, under the announcement policies of each
// protocol:
//
//   - BGP announces every physical interface's masked network exactly as
//     addressed: never supernetted, never including loopbacks. Shortening
//     reachability automatically would be wrong at an administrative
//     boundary, so the prefixes are left alone.
//   - RIP announces a single byte-aligned supernet (/8 or /16, never /24)
//     covering all physical and loopback networks, falling back to the
//     collapsed list when no byte-aligned cover exists.
//   - OSPF applies the byte-aligned rule per address-locality group and
//     tags each result with an area; see planner.go.
package aggregate

import (
	"net/netip"

	"github.com/sciro24/labforge/pkg/netaddr"
	"github.com/sciro24/labforge/pkg/topology"
)

// BGPNetworks returns the device's BGP announcement set: the masked
// network of every physical interface, deduplicated in first-seen order.
// Loopbacks are never announced in BGP. The set is empty (not an error)
// for a device without interfaces.
func BGPNetworks(d *topology.Device) []netip.Prefix {
	var out []netip.Prefix
	seen := make(map[netip.Prefix]struct{})
	for _, addr := range d.PhysicalAddresses() {
		if !addr.IsValid() {
			continue
		}
		n := netaddr.Network(addr)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// RIPNetworks returns the device's RIP announcement set: the single
// byte-aligned supernet covering physical and loopback addresses when one
// exists, otherwise the collapsed network list.
func RIPNetworks(d *topology.Device) []netip.Prefix {
	combined := d.CombinedAddresses()
	if len(combined) == 0 {
		return nil
	}
	if super, ok := netaddr.ByteAlignedSupernet(combined); ok {
		return []netip.Prefix{super}
	}
	return netaddr.Collapse(combined)
}

// groupNetworks applies the byte-aligned chooser to one locality group's
// addresses (plus the device's loopbacks, which travel with every group
// for coverage), falling back to the group's collapsed networks.
func groupNetworks(group, loopbacks []netip.Prefix) []netip.Prefix {
	withLoopbacks := append(append([]netip.Prefix(nil), group...), loopbacks...)
	if super, ok := netaddr.ByteAlignedSupernet(withLoopbacks); ok {
		return []netip.Prefix{super}
	}
	return netaddr.Collapse(group)
}
