package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sciro24/labforge/pkg/errors"
)

const sampleTOML = `
name = "as100"

[[device]]
name = "r1"
protocols = ["bgp", "ospf"]
asn = "100"
loopbacks = ["9.9.9.9/32"]

  [[device.interface]]
  name = "eth0"
  domain = "A"
  address = "10.0.0.1/24"

  [[device.interface]]
  name = "eth1"
  domain = "B"
  address = "10.0.1.1/24"

  [device.ospf]
  area = "0.0.0.0"

    [device.ospf.extra]
    20 = { area = "2.2.2.2", stub = true }

[[device]]
name = "pc1"
role = "host"
gateway = "10.0.0.1"

  [[device.interface]]
  domain = "A"
  address = "10.0.0.10/24"
`

const sampleYAML = `
name: as100
devices:
  - name: r1
    protocols: [bgp, ospf]
    asn: "100"
    loopbacks: ["9.9.9.9/32"]
    interfaces:
      - name: eth0
        domain: A
        address: 10.0.0.1/24
      - name: eth1
        domain: B
        address: 10.0.1.1/24
    ospf:
      area: 0.0.0.0
      extra:
        "20": {area: 2.2.2.2, stub: true}
  - name: pc1
    role: host
    gateway: 10.0.0.1
    interfaces:
      - domain: A
        address: 10.0.0.10/24
`

func checkSample(t *testing.T, topo *Topology) {
	t.Helper()
	if topo.Name != "as100" {
		t.Errorf("Name = %q, want as100", topo.Name)
	}
	if len(topo.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(topo.Devices))
	}

	r1, ok := topo.Device("r1")
	if !ok {
		t.Fatal("Device(r1) not found")
	}
	if r1.Role != RoleRouter {
		t.Errorf("r1 role = %q, want router (derived from protocols)", r1.Role)
	}
	if !r1.Has(ProtocolBGP) || !r1.Has(ProtocolOSPF) || r1.Has(ProtocolRIP) {
		t.Errorf("r1 protocols = %v, want bgp+ospf", r1.Protocols)
	}
	if got := r1.Interfaces[1].Address.String(); got != "10.0.1.1/24" {
		t.Errorf("eth1 address = %s, want host bits retained", got)
	}
	ea, ok := r1.OSPF.ExtraAreas[20]
	if !ok || ea.Area != "2.2.2.2" || !ea.Stub {
		t.Errorf("ExtraAreas[20] = %+v, ok=%v; want {2.2.2.2 true}", ea, ok)
	}

	pc1, _ := topo.Device("pc1")
	if pc1.Role != RoleHost {
		t.Errorf("pc1 role = %q, want host", pc1.Role)
	}
	if pc1.Interfaces[0].Name != "eth0" {
		t.Errorf("unnamed interface = %q, want default eth0", pc1.Interfaces[0].Name)
	}
}

func TestLoadTOML(t *testing.T) {
	topo, err := LoadTOML([]byte(sampleTOML))
	if err != nil {
		t.Fatalf("LoadTOML: %v", err)
	}
	checkSample(t, topo)
}

func TestLoadYAML(t *testing.T) {
	topo, err := LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	checkSample(t, topo)
}

func TestLoad_DetectsFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lab.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	topo, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkSample(t, topo)

	bad := filepath.Join(dir, "lab.conf")
	if err := os.WriteFile(bad, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("Load(.conf) error = %v, want INVALID_FORMAT", err)
	}
}

func TestLoad_RejectsAddressWithoutPrefix(t *testing.T) {
	src := `
name: bad
devices:
  - name: r1
    protocols: [rip]
    interfaces:
      - domain: A
        address: 10.0.0.1
`
	_, err := LoadYAML([]byte(src))
	if !errors.Is(err, errors.ErrCodeInvalidTopology) {
		t.Fatalf("LoadYAML error = %v, want INVALID_TOPOLOGY", err)
	}
}

func TestLoad_RejectsDuplicateDevice(t *testing.T) {
	src := `
name: bad
devices:
  - name: r1
    protocols: [rip]
  - name: r1
    protocols: [rip]
`
	if _, err := LoadYAML([]byte(src)); !errors.Is(err, errors.ErrCodeInvalidTopology) {
		t.Fatalf("LoadYAML error = %v, want INVALID_TOPOLOGY", err)
	}
}

func TestLoad_LoopbackWithoutPrefixBecomesHostRoute(t *testing.T) {
	src := `
name: lab
devices:
  - name: r1
    protocols: [rip]
    loopbacks: ["1.2.3.4"]
`
	topo, err := LoadYAML([]byte(src))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	r1, _ := topo.Device("r1")
	if got := r1.Loopbacks[0].String(); got != "1.2.3.4/32" {
		t.Errorf("loopback = %s, want 1.2.3.4/32", got)
	}
}

func TestLoad_NormalizesStaticRouteNetworks(t *testing.T) {
	src := `
name: lab
devices:
  - name: r1
    protocols: [static]
    interfaces:
      - domain: A
        address: 192.168.1.2/24
    routes:
      - network: 30.0.0.5/24
        via: 192.168.1.1
`
	topo, err := LoadYAML([]byte(src))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	r1, _ := topo.Device("r1")
	if got := r1.StaticRoutes[0].Network; got != "30.0.0.0/24" {
		t.Errorf("route network = %q, want host bits masked to 30.0.0.0/24", got)
	}
}

func TestLoad_RejectsMalformedStaticRoute(t *testing.T) {
	src := `
name: lab
devices:
  - name: r1
    protocols: [static]
    routes:
      - network: 30.0.0.0
        via: 192.168.1.1
`
	if _, err := LoadYAML([]byte(src)); !errors.Is(err, errors.ErrCodeInvalidTopology) {
		t.Fatalf("LoadYAML error = %v, want INVALID_TOPOLOGY", err)
	}
}

func TestStaticOnly(t *testing.T) {
	d := &Device{Protocols: []Protocol{ProtocolStatic}}
	if !d.StaticOnly() {
		t.Error("StaticOnly() = false for static-only device")
	}
	d.Protocols = []Protocol{ProtocolStatic, ProtocolBGP}
	if d.StaticOnly() {
		t.Error("StaticOnly() = true for static+bgp device")
	}
	d.Protocols = nil
	if d.StaticOnly() {
		t.Error("StaticOnly() = true for protocol-less device")
	}
}
