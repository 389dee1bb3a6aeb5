// Package netaddr provides the canonical network/address value operations
// used by the configuration synthesis engine.
//
// The package builds on net/netip. Interface addresses are represented as
// netip.Prefix values that retain their host bits (10.0.0.1/24); the
// network derived from one has the host bits masked to zero (10.0.0.0/24).
//
// The two aggregation primitives have very different policies:
//
//   - Collapse produces a deterministic, order-independent minimal cover
//     of a set of networks (sibling merge + containment removal).
//   - ByteAlignedSupernet picks a single /8 or /16 covering a set of
//     addresses, or reports that no byte-aligned cover exists. /24 is
//     deliberately never produced.
package netaddr

import (
	"net/netip"
	"sort"
	"strings"

	"github.com/sciro24/labforge/pkg/errors"
)

// ParseInterface parses an interface address in CIDR notation. The prefix
// length is mandatory: "10.0.0.1" is rejected, "10.0.0.1/24" is accepted.
// Host bits are retained.
func ParseInterface(s string) (netip.Prefix, error) {
	if !strings.Contains(s, "/") {
		return netip.Prefix{}, errors.New(errors.ErrCodeInvalidAddress, "address %q lacks an explicit /prefix", s)
	}
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return netip.Prefix{}, errors.Wrap(errors.ErrCodeInvalidAddress, err, "address %q is not a valid CIDR", s)
	}
	return p, nil
}

// Network returns the network an interface address belongs to, with the
// host bits masked to zero.
func Network(p netip.Prefix) netip.Prefix {
	return p.Masked()
}

// ParseNetwork parses a CIDR string and masks the host bits.
func ParseNetwork(s string) (netip.Prefix, error) {
	p, err := ParseInterface(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return p.Masked(), nil
}

// StripPrefix removes a trailing "/len" from an address string if present.
func StripPrefix(s string) string {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}

// Compare orders two prefixes by address, then by prefix length
// (shorter, i.e. wider, first). IPv4 sorts before IPv6.
func Compare(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return a.Bits() - b.Bits()
}

// Sort sorts prefixes in place into the canonical order used by Compare.
func Sort(nets []netip.Prefix) {
	sort.Slice(nets, func(i, j int) bool { return Compare(nets[i], nets[j]) < 0 })
}

// Strings renders a prefix slice as CIDR strings, preserving order.
func Strings(nets []netip.Prefix) []string {
	out := make([]string, len(nets))
	for i, n := range nets {
		out[i] = n.String()
	}
	return out
}

// Collapse merges same-length sibling networks into their parents and
// removes fully contained networks, producing a sorted minimal cover.
// Input order does not matter and the covered address space is preserved
// exactly. Invalid (zero) prefixes are dropped; host bits are masked.
func Collapse(nets []netip.Prefix) []netip.Prefix {
	masked := make([]netip.Prefix, 0, len(nets))
	seen := make(map[netip.Prefix]struct{}, len(nets))
	for _, p := range nets {
		if !p.IsValid() {
			continue
		}
		p = p.Masked()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		masked = append(masked, p)
	}

	for {
		masked = removeContained(masked)
		merged, changed := mergeSiblings(masked)
		if !changed {
			return merged
		}
		masked = merged
	}
}

// removeContained sorts the set and drops every network fully contained
// in an earlier one. Networks are power-of-two aligned blocks, so a
// network whose first address falls inside a wider block lies entirely
// within it.
func removeContained(nets []netip.Prefix) []netip.Prefix {
	Sort(nets)
	out := nets[:0]
	for _, n := range nets {
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.Bits() <= n.Bits() && last.Contains(n.Addr()) {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

// mergeSiblings replaces adjacent sibling pairs (same length, same
// parent) with their parent network. The input must be sorted.
func mergeSiblings(nets []netip.Prefix) ([]netip.Prefix, bool) {
	out := make([]netip.Prefix, 0, len(nets))
	changed := false
	for i := 0; i < len(nets); i++ {
		if i+1 < len(nets) {
			a, b := nets[i], nets[i+1]
			if a.Bits() == b.Bits() && a.Bits() > 0 && a.Addr().Is4() == b.Addr().Is4() {
				parentA := netip.PrefixFrom(a.Addr(), a.Bits()-1).Masked()
				parentB := netip.PrefixFrom(b.Addr(), b.Bits()-1).Masked()
				if parentA == parentB {
					out = append(out, parentA)
					changed = true
					i++
					continue
				}
			}
		}
		out = append(out, nets[i])
	}
	return out, changed
}

// ByteAlignedSupernet chooses the single /8 or /16 IPv4 network covering
// every address in addrs. It prefers /16 when all addresses share the
// first two octets, falls back to /8 when they share only the first, and
// reports ok=false when no byte-aligned cover exists (or when no IPv4
// address is present). /24 is never produced: shortening announcements
// to /24 is not permitted by the announcement policy.
func ByteAlignedSupernet(addrs []netip.Prefix) (netip.Prefix, bool) {
	var octets [][4]byte
	for _, p := range addrs {
		if !p.IsValid() || !p.Addr().Is4() {
			continue
		}
		octets = append(octets, p.Addr().As4())
	}
	if len(octets) == 0 {
		return netip.Prefix{}, false
	}

	sameFirstTwo := true
	sameFirst := true
	for _, o := range octets[1:] {
		if o[0] != octets[0][0] {
			sameFirst = false
		}
		if o[0] != octets[0][0] || o[1] != octets[0][1] {
			sameFirstTwo = false
		}
	}

	switch {
	case sameFirstTwo:
		addr := netip.AddrFrom4([4]byte{octets[0][0], octets[0][1], 0, 0})
		return netip.PrefixFrom(addr, 16), true
	case sameFirst:
		addr := netip.AddrFrom4([4]byte{octets[0][0], 0, 0, 0})
		return netip.PrefixFrom(addr, 8), true
	}
	return netip.Prefix{}, false
}

// AggregateToSupernet collapses the networks of the given interface
// addresses and then buckets the IPv4 results by their containing
// aggPrefix-length supernet. Buckets holding more than one network are
// replaced by the supernet; singleton buckets keep their original
// network. Networks already at or above the aggregation length, and all
// IPv6 networks, pass through unchanged.
//
// This is the explicit-granularity aggregator; the byte-aligned /8 and
// /16 chooser used for RIP and OSPF announcements is ByteAlignedSupernet.
func AggregateToSupernet(ifaces []netip.Prefix, aggPrefix int) []netip.Prefix {
	collapsed := Collapse(ifaces)
	if len(collapsed) == 0 {
		return nil
	}

	type bucket struct {
		key     netip.Prefix
		members []netip.Prefix
	}
	var order []netip.Prefix
	buckets := make(map[netip.Prefix]*bucket)
	var passthrough []netip.Prefix

	for _, n := range collapsed {
		if !n.Addr().Is4() || n.Bits() <= aggPrefix {
			passthrough = append(passthrough, n)
			continue
		}
		key := netip.PrefixFrom(n.Addr(), aggPrefix).Masked()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{key: key}
			buckets[key] = b
			order = append(order, key)
		}
		b.members = append(b.members, n)
	}

	result := passthrough
	for _, key := range order {
		b := buckets[key]
		if len(b.members) > 1 {
			result = append(result, b.key)
		} else {
			result = append(result, b.members[0])
		}
	}
	return Collapse(result)
}

// FirstOctet returns the leading octet of an IPv4 interface address.
// ok is false for IPv6 or invalid prefixes.
func FirstOctet(p netip.Prefix) (int, bool) {
	if !p.IsValid() || !p.Addr().Is4() {
		return 0, false
	}
	return int(p.Addr().As4()[0]), true
}
