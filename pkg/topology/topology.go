// Package topology defines the in-memory model of a lab topology: devices,
// their interfaces and collision domains, routing protocols, loopbacks and
// OSPF area configuration.
//
// Topologies are authored as TOML or YAML files (see Load) and handed to the
// synthesis pipeline pre-resolved: ambiguous choices (which OSPF area an
// unconfigured locality group belongs to, which neighbor IP to use) are
// resolved by callers before the core is invoked.
package topology

import (
	"net/netip"

	"github.com/sciro24/labforge/pkg/errors"
)

// Protocol is a routing protocol a device participates in.
type Protocol string

const (
	ProtocolBGP    Protocol = "bgp"
	ProtocolOSPF   Protocol = "ospf"
	ProtocolRIP    Protocol = "rip"
	ProtocolStatic Protocol = "static"
)

// knownProtocols is the set of accepted protocol tokens.
var knownProtocols = map[Protocol]bool{
	ProtocolBGP:    true,
	ProtocolOSPF:   true,
	ProtocolRIP:    true,
	ProtocolStatic: true,
}

// Role classifies a device for artifact emission.
type Role string

const (
	RoleRouter Role = "router"
	RoleHost   Role = "host"
	RoleWeb    Role = "web"
)

// Interface is a physical interface binding: a named interface attached to
// a collision domain with an address that retains its host bits.
type Interface struct {
	Name    string
	Domain  string // collision-domain id shared with the other endpoints
	Address netip.Prefix
	Cost    int // OSPF interface cost, 0 means protocol default
}

// StaticRoute is one static route of a static-only device.
type StaticRoute struct {
	Network string // destination CIDR
	Via     string // next hop, mask stripped on emission
	Dev     string // outgoing interface, defaults to the first interface
}

// ExtraArea is a pre-supplied OSPF area for one address-locality group,
// keyed by the group's first octet.
type ExtraArea struct {
	Area string
	Stub bool
}

// OSPFConfig carries a device's OSPF area configuration.
type OSPFConfig struct {
	Area       string            // main area id; empty means topology default
	Stub       bool              // main area stub flag
	ExtraAreas map[int]ExtraArea // by locality-group first octet
}

// Device is one lab device. A device owns its interfaces for its whole
// lifetime; removal discards the subtree, never individual entities.
type Device struct {
	Name         string
	Role         Role
	Protocols    []Protocol
	ASN          string
	Interfaces   []Interface
	Loopbacks    []netip.Prefix // /32 (or /128) only
	OSPF         OSPFConfig
	StaticRoutes []StaticRoute
	Gateway      string // default-route next hop for hosts and web servers
}

// Has reports whether the device runs the given protocol.
func (d *Device) Has(p Protocol) bool {
	for _, q := range d.Protocols {
		if q == p {
			return true
		}
	}
	return false
}

// StaticOnly reports whether the device's only protocol is "static".
// Static-only devices never get a routing-daemon configuration tree.
func (d *Device) StaticOnly() bool {
	if len(d.Protocols) == 0 {
		return false
	}
	for _, p := range d.Protocols {
		if p != ProtocolStatic {
			return false
		}
	}
	return true
}

// PhysicalAddresses returns the interface addresses, host bits retained.
func (d *Device) PhysicalAddresses() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(d.Interfaces))
	for _, ifc := range d.Interfaces {
		out = append(out, ifc.Address)
	}
	return out
}

// CombinedAddresses returns physical interface addresses plus loopbacks.
func (d *Device) CombinedAddresses() []netip.Prefix {
	return append(d.PhysicalAddresses(), d.Loopbacks...)
}

// FirstLoopback returns the device's canonical loopback, the first one
// declared. ok is false when the device has none.
func (d *Device) FirstLoopback() (netip.Prefix, bool) {
	if len(d.Loopbacks) == 0 {
		return netip.Prefix{}, false
	}
	return d.Loopbacks[0], true
}

// Topology is the full authored lab. Devices keep authoring order; the
// order matters for deterministic planning (the first OSPF-enabled device
// seeds the topology default main area).
type Topology struct {
	Name    string
	Devices []*Device
}

// Device looks up a device by name.
func (t *Topology) Device(name string) (*Device, bool) {
	for _, d := range t.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Routers returns the devices with RoleRouter, in authoring order.
func (t *Topology) Routers() []*Device {
	var out []*Device
	for _, d := range t.Devices {
		if d.Role == RoleRouter {
			out = append(out, d)
		}
	}
	return out
}

// AddLoopback validates addr as a loopback (/32 or /128) and records it
// on the device. Duplicates are ignored.
func (d *Device) AddLoopback(addr netip.Prefix) error {
	if err := validateLoopback(addr); err != nil {
		return err
	}
	for _, lb := range d.Loopbacks {
		if lb == addr {
			return nil
		}
	}
	d.Loopbacks = append(d.Loopbacks, addr)
	return nil
}

func validateLoopback(p netip.Prefix) error {
	if !p.IsValid() {
		return errors.New(errors.ErrCodeInvalidAddress, "invalid loopback address")
	}
	if p.Addr().Is4() && p.Bits() != 32 {
		return errors.New(errors.ErrCodeInvalidAddress, "loopback %s must be /32", p)
	}
	if !p.Addr().Is4() && p.Bits() != 128 {
		return errors.New(errors.ErrCodeInvalidAddress, "loopback %s must be /128", p)
	}
	return nil
}

// validate checks cross-field consistency after decoding.
func (t *Topology) validate() error {
	if len(t.Devices) == 0 {
		return errors.New(errors.ErrCodeInvalidTopology, "topology declares no devices")
	}
	seen := make(map[string]bool, len(t.Devices))
	for _, d := range t.Devices {
		if d.Name == "" {
			return errors.New(errors.ErrCodeInvalidTopology, "device with empty name")
		}
		if seen[d.Name] {
			return errors.New(errors.ErrCodeInvalidTopology, "duplicate device %q", d.Name)
		}
		seen[d.Name] = true

		for _, p := range d.Protocols {
			if !knownProtocols[p] {
				return errors.New(errors.ErrCodeInvalidProtocol, "device %q: unknown protocol %q", d.Name, p)
			}
		}
		if d.Role == RoleRouter && len(d.Protocols) == 0 {
			return errors.New(errors.ErrCodeInvalidTopology, "router %q declares no protocols", d.Name)
		}
		for _, lb := range d.Loopbacks {
			if err := validateLoopback(lb); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidTopology, err, "device %q", d.Name)
			}
		}
		for _, ifc := range d.Interfaces {
			if !ifc.Address.IsValid() {
				return errors.New(errors.ErrCodeInvalidTopology, "device %q: interface %q has no address", d.Name, ifc.Name)
			}
		}
	}
	return nil
}
