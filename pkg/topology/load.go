package topology

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/sciro24/labforge/pkg/errors"
	"github.com/sciro24/labforge/pkg/netaddr"
)

// fileTopology is the on-disk shape shared by the TOML and YAML decoders.
// Addresses are plain strings here; Build parses and validates them.
type fileTopology struct {
	Name    string        `toml:"name" yaml:"name"`
	Devices []*fileDevice `toml:"device" yaml:"devices"`
}

type fileDevice struct {
	Name      string           `toml:"name" yaml:"name"`
	Role      string           `toml:"role" yaml:"role"`
	Protocols []string         `toml:"protocols" yaml:"protocols"`
	ASN       string           `toml:"asn" yaml:"asn"`
	Ifaces    []*fileInterface `toml:"interface" yaml:"interfaces"`
	Loopbacks []string         `toml:"loopbacks" yaml:"loopbacks"`
	OSPF      *fileOSPF        `toml:"ospf" yaml:"ospf"`
	Routes    []*fileRoute     `toml:"route" yaml:"routes"`
	Gateway   string           `toml:"gateway" yaml:"gateway"`
}

type fileInterface struct {
	Name    string `toml:"name" yaml:"name"`
	Domain  string `toml:"domain" yaml:"domain"`
	Address string `toml:"address" yaml:"address"`
	Cost    int    `toml:"cost" yaml:"cost"`
}

type fileOSPF struct {
	Area  string                   `toml:"area" yaml:"area"`
	Stub  bool                     `toml:"stub" yaml:"stub"`
	Extra map[string]fileExtraArea `toml:"extra" yaml:"extra"`
}

type fileExtraArea struct {
	Area string `toml:"area" yaml:"area"`
	Stub bool   `toml:"stub" yaml:"stub"`
}

type fileRoute struct {
	Network string `toml:"network" yaml:"network"`
	Via     string `toml:"via" yaml:"via"`
	Dev     string `toml:"dev" yaml:"dev"`
}

// Load reads a topology file, selecting the decoder by extension:
// ".toml" for TOML, ".yaml"/".yml" for YAML.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "reading topology %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return LoadTOML(data)
	case ".yaml", ".yml":
		return LoadYAML(data)
	}
	return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported topology format %q (want .toml, .yaml or .yml)", filepath.Ext(path))
}

// LoadTOML decodes a TOML topology document.
func LoadTOML(data []byte) (*Topology, error) {
	var ft fileTopology
	if err := toml.Unmarshal(data, &ft); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decoding TOML topology")
	}
	return ft.build()
}

// LoadYAML decodes a YAML topology document.
func LoadYAML(data []byte) (*Topology, error) {
	var ft fileTopology
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decoding YAML topology")
	}
	return ft.build()
}

// build converts the decoded file shape into the validated model.
// Address strings must carry an explicit prefix; loopbacks without one
// are treated as host routes (/32 appended), matching authoring habit.
func (ft *fileTopology) build() (*Topology, error) {
	t := &Topology{Name: ft.Name}
	for _, fd := range ft.Devices {
		d := &Device{
			Name:    fd.Name,
			Role:    deviceRole(fd),
			ASN:     fd.ASN,
			Gateway: fd.Gateway,
		}
		for _, p := range fd.Protocols {
			d.Protocols = append(d.Protocols, Protocol(strings.ToLower(strings.TrimSpace(p))))
		}
		for _, fi := range fd.Ifaces {
			addr, err := netaddr.ParseInterface(fi.Address)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidTopology, err, "device %q interface %q", fd.Name, fi.Name)
			}
			name := fi.Name
			if name == "" {
				name = defaultInterfaceName(len(d.Interfaces))
			}
			d.Interfaces = append(d.Interfaces, Interface{Name: name, Domain: fi.Domain, Address: addr, Cost: fi.Cost})
		}
		for _, lb := range fd.Loopbacks {
			s := lb
			if !strings.Contains(s, "/") {
				s += "/32"
			}
			addr, err := netaddr.ParseInterface(s)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidTopology, err, "device %q loopback", fd.Name)
			}
			if err := d.AddLoopback(addr); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidTopology, err, "device %q", fd.Name)
			}
		}
		if fd.OSPF != nil {
			d.OSPF = OSPFConfig{Area: fd.OSPF.Area, Stub: fd.OSPF.Stub}
			for key, ea := range fd.OSPF.Extra {
				octet, err := parseOctet(key)
				if err != nil {
					return nil, errors.Wrap(errors.ErrCodeInvalidTopology, err, "device %q ospf.extra key %q", fd.Name, key)
				}
				if d.OSPF.ExtraAreas == nil {
					d.OSPF.ExtraAreas = make(map[int]ExtraArea)
				}
				d.OSPF.ExtraAreas[octet] = ExtraArea{Area: ea.Area, Stub: ea.Stub}
			}
		}
		for _, fr := range fd.Routes {
			network := fr.Network
			if network != "" {
				p, err := netaddr.ParseNetwork(network)
				if err != nil {
					return nil, errors.Wrap(errors.ErrCodeInvalidTopology, err, "device %q route", fd.Name)
				}
				network = p.String()
			}
			d.StaticRoutes = append(d.StaticRoutes, StaticRoute{Network: network, Via: fr.Via, Dev: fr.Dev})
		}
		t.Devices = append(t.Devices, d)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// deviceRole derives the role: explicit when declared, router when the
// device declares protocols, host otherwise.
func deviceRole(fd *fileDevice) Role {
	switch strings.ToLower(fd.Role) {
	case string(RoleRouter):
		return RoleRouter
	case string(RoleHost):
		return RoleHost
	case string(RoleWeb):
		return RoleWeb
	case "":
		if len(fd.Protocols) > 0 {
			return RoleRouter
		}
		return RoleHost
	}
	return Role(strings.ToLower(fd.Role))
}

func defaultInterfaceName(idx int) string {
	return "eth" + strconv.Itoa(idx)
}

func parseOctet(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return 0, errors.New(errors.ErrCodeInvalidTopology, "locality-group key %q is not a first octet", s)
	}
	return n, nil
}
