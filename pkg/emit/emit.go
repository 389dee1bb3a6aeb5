// Package emit renders the on-disk artifact tree of a lab: per-device
// FRR configuration (daemons, vtysh.conf, frr.conf), startup scripts,
// web-server filesystems and the lab.conf wiring file. Emitters are
// pure and return a Set of relative paths; Write persists a Set under
// a lab directory, each file through a temp file and rename.
package emit

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sciro24/labforge/pkg/aggregate"
	"github.com/sciro24/labforge/pkg/errors"
	"github.com/sciro24/labforge/pkg/netaddr"
	"github.com/sciro24/labforge/pkg/stanza"
	"github.com/sciro24/labforge/pkg/topology"
)

// Artifact is one file of a lab tree.
type Artifact struct {
	Content string
	Mode    fs.FileMode
}

// Set maps lab-relative paths to artifacts.
type Set map[string]Artifact

// Merge copies every artifact of other into s, overwriting collisions.
func (s Set) Merge(other Set) {
	for path, a := range other {
		s[path] = a
	}
}

// Paths returns the relative paths of the set, sorted.
func (s Set) Paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

const (
	modeConfig  = fs.FileMode(0o644)
	modeStartup = fs.FileMode(0o755)

	frrHeader = "password zebra\n" +
		"enable password zebra\n" +
		"\n" +
		"log file /var/log/frr/frr.log\n"

	bgpDebug = "debug bgp keepalives\n" +
		"debug bgp updates in\n" +
		"debug bgp updates out\n"
)

// daemonsFile enables the FRR daemons the device's protocols need.
// zebra is always on.
func daemonsFile(d *topology.Device) string {
	onOff := func(p topology.Protocol) string {
		if d.Has(p) {
			return "yes"
		}
		return "no"
	}
	var b strings.Builder
	b.WriteString("zebra=yes\n")
	fmt.Fprintf(&b, "ripd=%s\n", onOff(topology.ProtocolRIP))
	fmt.Fprintf(&b, "ospfd=%s\n", onOff(topology.ProtocolOSPF))
	fmt.Fprintf(&b, "bgpd=%s\n", onOff(topology.ProtocolBGP))
	b.WriteString("\n")
	for _, name := range []string{"ospf6d", "ripngd", "isisd", "pimd", "ldpd", "nhrpd", "eigrpd", "babeld", "sharpd", "staticd", "pbrd", "bfdd", "fabricd"} {
		fmt.Fprintf(&b, "%s=no\n", name)
	}
	b.WriteString("\n")
	b.WriteString("vtysh_enable=yes\n")
	b.WriteString(`zebra_options=" -s 90000000 --daemon -A 127.0.0.1"` + "\n")
	b.WriteString(`bgpd_options="   --daemon -A 127.0.0.1"` + "\n")
	b.WriteString(`ospfd_options="  --daemon -A 127.0.0.1"` + "\n")
	b.WriteString(`ospf6d_options=" --daemon -A ::1"` + "\n")
	b.WriteString(`ripd_options="   --daemon -A 127.0.0.1"` + "\n")
	b.WriteString(`ripngd_options=" --daemon -A ::1"` + "\n")
	for _, name := range []string{"isisd", "pimd", "ldpd", "nhrpd", "eigrpd", "babeld", "sharpd", "staticd", "pbrd", "bfdd", "fabricd"} {
		fmt.Fprintf(&b, "%s_options=\"  --daemon -A 127.0.0.1\"\n", name)
	}
	return b.String()
}

func vtyshFile(name string) string {
	return fmt.Sprintf("service integrated-vtysh-config\nhostname %s-frr\n", name)
}

// FRRConfig renders a device's frr.conf: the fixed header, BGP debug
// lines when the device runs BGP, then the protocol stanzas separated
// by blank lines.
func FRRConfig(d *topology.Device, assignments []aggregate.Assignment) string {
	parts := []string{frrHeader}
	if d.Has(topology.ProtocolBGP) {
		parts = append(parts, bgpDebug)
		parts = append(parts, stanza.BGP(d.ASN, aggregate.BGPNetworks(d)))
	}
	if d.Has(topology.ProtocolOSPF) {
		for _, ifc := range d.Interfaces {
			if ifc.Cost > 0 {
				parts = append(parts, stanza.InterfaceCost(ifc.Name, ifc.Cost))
			}
		}
		parts = append(parts, stanza.OSPF(assignments))
	}
	if d.Has(topology.ProtocolRIP) {
		parts = append(parts, stanza.RIP(aggregate.RIPNetworks(d)))
	}
	return stanza.Join(parts...)
}

// FRRConfPath returns the lab-relative frr.conf path of a device.
func FRRConfPath(name string) string {
	return filepath.Join(name, "etc", "frr", "frr.conf")
}

func addressLines(d *topology.Device) []string {
	var out []string
	for _, ifc := range d.Interfaces {
		out = append(out, fmt.Sprintf("ip address add %s dev %s", ifc.Address, ifc.Name))
	}
	for _, lb := range d.Loopbacks {
		out = append(out, fmt.Sprintf("ip address add %s dev lo", lb))
	}
	return out
}

// Router renders the artifact tree of a routing device: the etc/frr
// files and a startup script that configures addresses and starts FRR.
// Static-only devices get a startup script alone.
func Router(d *topology.Device, assignments []aggregate.Assignment) Set {
	if d.StaticOnly() {
		return staticOnly(d)
	}
	startup := strings.Join(addressLines(d), "\n") + "\n\nsystemctl start frr\n"
	return Set{
		filepath.Join(d.Name, "etc", "frr", "daemons"):    {Content: daemonsFile(d), Mode: modeConfig},
		filepath.Join(d.Name, "etc", "frr", "vtysh.conf"): {Content: vtyshFile(d.Name), Mode: modeConfig},
		FRRConfPath(d.Name):                               {Content: FRRConfig(d, assignments), Mode: modeConfig},
		d.Name + ".startup":                               {Content: startup, Mode: modeStartup},
	}
}

// staticOnly renders the startup of a device that routes with static
// entries alone: address lines, then one ip route per entry with the
// next-hop mask stripped. No FRR tree is emitted.
func staticOnly(d *topology.Device) Set {
	lines := addressLines(d)
	defaultDev := "eth0"
	if len(d.Interfaces) > 0 && d.Interfaces[0].Name != "" {
		defaultDev = d.Interfaces[0].Name
	}
	for _, r := range d.StaticRoutes {
		via := netaddr.StripPrefix(r.Via)
		dev := r.Dev
		if dev == "" {
			dev = defaultDev
		}
		switch {
		case r.Network != "" && via != "":
			lines = append(lines, fmt.Sprintf("ip route add %s via %s dev %s", r.Network, via, dev))
		case r.Network != "":
			lines = append(lines, fmt.Sprintf("ip route add %s dev %s", r.Network, dev))
		}
	}
	return Set{
		d.Name + ".startup": {Content: strings.Join(lines, "\n") + "\n", Mode: modeStartup},
	}
}

// Host renders a plain host: address lines plus an optional default
// route through the device gateway.
func Host(d *topology.Device) Set {
	lines := addressLines(d)
	if gw := netaddr.StripPrefix(d.Gateway); gw != "" {
		lines = append(lines, fmt.Sprintf("ip route add default via %s dev eth0", gw))
	}
	return Set{
		d.Name + ".startup": {Content: strings.Join(lines, "\n") + "\n", Mode: modeStartup},
	}
}

// Web renders a web server: an index page under var/www/html and a
// startup that configures the first interface, routes through the
// gateway and starts apache.
func Web(d *topology.Device) Set {
	addr := ""
	if len(d.Interfaces) > 0 {
		addr = d.Interfaces[0].Address.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ip address add %s dev eth0\n", addr)
	if gw := netaddr.StripPrefix(d.Gateway); gw != "" {
		fmt.Fprintf(&b, "ip route add default via %s dev eth0\n", gw)
	}
	b.WriteString("systemctl start apache2\n")
	index := fmt.Sprintf("<html><head><title>%s</title></head><body><h1>Server %s</h1></body></html>", d.Name, d.Name)
	return Set{
		filepath.Join(d.Name, "var", "www", "html", "index.html"): {Content: index, Mode: modeConfig},
		d.Name + ".startup": {Content: b.String(), Mode: modeStartup},
	}
}

// Device renders any device by role.
func Device(d *topology.Device, assignments []aggregate.Assignment) Set {
	switch d.Role {
	case topology.RoleWeb:
		return Web(d)
	case topology.RoleHost:
		return Host(d)
	default:
		return Router(d, assignments)
	}
}

// LabConf renders lab.conf: one "<device>[<n>]=<domain>" line per
// interface in topology order, an image line per device, and a blank
// line between devices. Routing devices run the FRR image, everything
// else the base image.
func LabConf(t *topology.Topology) string {
	var b strings.Builder
	for _, d := range t.Devices {
		for i, ifc := range d.Interfaces {
			fmt.Fprintf(&b, "%s[%d]=%s\n", d.Name, i, ifc.Domain)
		}
		if d.Role == topology.RoleRouter && !d.StaticOnly() {
			fmt.Fprintf(&b, "%s[image]=\"kathara/frr\"\n", d.Name)
		} else {
			fmt.Fprintf(&b, "%s[image]=\"kathara/base\"\n", d.Name)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Write persists the set under root, creating directories as needed.
// Each file goes through a temp file and rename so a crash never leaves
// a half-written artifact behind.
func Write(root string, s Set) error {
	for _, rel := range s.Paths() {
		a := s[rel]
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeEmitFailed, err, "creating %s", filepath.Dir(path))
		}
		if err := writeAtomic(path, []byte(a.Content), a.Mode); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "creating temp file in %s", dir)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "writing %s", name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "closing %s", name)
	}
	if err := os.Chmod(name, mode); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "setting mode on %s", name)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "replacing %s", path)
	}
	return nil
}

// RewriteFile applies transform to the file's content and writes the
// result back through a temp file and rename, preserving the mode.
func RewriteFile(path string, transform func(string) string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeFileNotFound, err, "file %s does not exist", path)
		}
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "inspecting %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "reading %s", path)
	}
	return writeAtomic(path, []byte(transform(string(data))), info.Mode().Perm())
}

// StartupInsertBeforeServices inserts lines into startup content just
// before the first "systemctl start" line, or at the end when no
// service start exists. Used when a loopback is added to an already
// emitted lab.
func StartupInsertBeforeServices(content string, lines []string) string {
	rows := strings.Split(content, "\n")
	if strings.HasSuffix(content, "\n") {
		rows = rows[:len(rows)-1]
	}
	at := len(rows)
	for i, row := range rows {
		if strings.HasPrefix(strings.TrimSpace(row), "systemctl start") {
			at = i
			break
		}
	}
	var b strings.Builder
	for _, row := range rows[:at] {
		b.WriteString(row + "\n")
	}
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	for _, row := range rows[at:] {
		b.WriteString(row + "\n")
	}
	return b.String()
}
