// Package stanza renders FRR routing-daemon configuration stanzas and
// performs structurally-aware edits on previously emitted configuration
// text.
//
// A stanza is an ordered text block headed by a recognizable line (for
// example "router bgp 100") extending through contiguous indented, blank
// or comment lines, and terminating at the first line that is none of
// those. Rendering follows fixed text conventions: lower-case protocol
// tokens, 4-space indentation, masked network CIDRs, and a single blank
// line between concatenated stanzas.
package stanza

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/sciro24/labforge/pkg/aggregate"
)

// Indent is the indentation used for every line inside a stanza.
const Indent = "    "

// BGP renders a "router bgp" stanza announcing the given networks.
// The ebgp-requires-policy and network import-check safeguards are
// disabled so the network lines take effect without matching IGP or
// static routes; this system never auto-redistributes. Networks are
// masked and deduplicated in first-seen order. An empty network set
// yields no stanza.
func BGP(asn string, networks []netip.Prefix) string {
	if len(networks) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "router bgp %s\n", asn)
	b.WriteString(Indent + "no bgp ebgp-requires-policy\n")
	b.WriteString(Indent + "no bgp network import-check\n")
	seen := make(map[string]struct{}, len(networks))
	for _, n := range networks {
		if !n.IsValid() {
			continue
		}
		s := n.Masked().String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		fmt.Fprintf(&b, "%snetwork %s\n", Indent, s)
	}
	return b.String()
}

// OSPF renders a single consolidated "router ospf" stanza from area
// assignments: network lines in assignment order (the backbone-equivalent
// main area first), then one "area <id> stub" line per stub-flagged area,
// sorted by area id. An empty assignment set yields no stanza.
func OSPF(assignments []aggregate.Assignment) string {
	if len(assignments) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("router ospf\n")
	stubs := make(map[string]struct{})
	wrote := false
	for _, a := range assignments {
		for _, n := range a.Networks {
			if !n.IsValid() {
				continue
			}
			fmt.Fprintf(&b, "%snetwork %s area %s\n", Indent, n.Masked(), a.Area)
			wrote = true
		}
		if a.Stub {
			stubs[a.Area] = struct{}{}
		}
	}
	if !wrote {
		return ""
	}
	ids := make([]string, 0, len(stubs))
	for id := range stubs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "%sarea %s stub\n", Indent, id)
	}
	return b.String()
}

// RIP renders a "router rip" stanza with one network line per announced
// network. An empty network set yields no stanza.
func RIP(networks []netip.Prefix) string {
	if len(networks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("router rip\n")
	for _, n := range networks {
		if !n.IsValid() {
			continue
		}
		fmt.Fprintf(&b, "%snetwork %s\n", Indent, n.Masked())
	}
	return b.String()
}

// InterfaceCost renders an interface stanza setting the OSPF cost.
func InterfaceCost(iface string, cost int) string {
	return fmt.Sprintf("interface %s\n%sospf cost %d\n", iface, Indent, cost)
}

// Join concatenates stanzas with a single blank line between them,
// skipping empty ones.
func Join(blocks ...string) string {
	var nonEmpty []string
	for _, blk := range blocks {
		if blk != "" {
			nonEmpty = append(nonEmpty, strings.TrimRight(blk, "\n")+"\n")
		}
	}
	return strings.Join(nonEmpty, "\n")
}

// ParseNetworkLines extracts the CIDRs of every "network <cidr>" line in
// a rendered stanza, in order. Lines that do not parse are skipped.
func ParseNetworkLines(text string) []netip.Prefix {
	var out []netip.Prefix
	for _, row := range strings.Split(text, "\n") {
		fields := strings.Fields(row)
		if len(fields) < 2 || fields[0] != "network" {
			continue
		}
		p, err := netip.ParsePrefix(fields[1])
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
