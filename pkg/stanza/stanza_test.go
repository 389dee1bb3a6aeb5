package stanza

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sciro24/labforge/pkg/aggregate"
)

func pfx(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	if err != nil {
		t.Fatalf("ParsePrefix(%q): %v", s, err)
	}
	return p
}

func TestBGP(t *testing.T) {
	got := BGP("100", []netip.Prefix{
		pfx(t, "10.0.0.1/24"),
		pfx(t, "10.0.1.0/24"),
		pfx(t, "10.0.0.5/24"), // same network as the first, dropped
	})
	want := "router bgp 100\n" +
		"    no bgp ebgp-requires-policy\n" +
		"    no bgp network import-check\n" +
		"    network 10.0.0.0/24\n" +
		"    network 10.0.1.0/24\n"
	if got != want {
		t.Errorf("BGP:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBGP_Empty(t *testing.T) {
	if got := BGP("100", nil); got != "" {
		t.Errorf("BGP with no networks = %q, want empty", got)
	}
}

func TestOSPF(t *testing.T) {
	got := OSPF([]aggregate.Assignment{
		{Area: "0.0.0.0", Main: true, Networks: []netip.Prefix{pfx(t, "100.0.0.0/16")}},
		{Area: "20.20.20.20", Stub: true, Networks: []netip.Prefix{pfx(t, "20.0.0.0/24")}},
	})
	want := "router ospf\n" +
		"    network 100.0.0.0/16 area 0.0.0.0\n" +
		"    network 20.0.0.0/24 area 20.20.20.20\n" +
		"    area 20.20.20.20 stub\n"
	if got != want {
		t.Errorf("OSPF:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestOSPF_Empty(t *testing.T) {
	if got := OSPF(nil); got != "" {
		t.Errorf("OSPF with no assignments = %q, want empty", got)
	}
}

func TestRIP(t *testing.T) {
	got := RIP([]netip.Prefix{pfx(t, "192.168.0.0/16")})
	want := "router rip\n    network 192.168.0.0/16\n"
	if got != want {
		t.Errorf("RIP = %q, want %q", got, want)
	}
}

func TestInterfaceCost(t *testing.T) {
	got := InterfaceCost("eth0", 45)
	want := "interface eth0\n    ospf cost 45\n"
	if got != want {
		t.Errorf("InterfaceCost = %q, want %q", got, want)
	}
}

func TestJoin(t *testing.T) {
	got := Join("router bgp 1\n    network 1.0.0.0/8\n", "", "router rip\n    network 2.0.0.0/8\n")
	want := "router bgp 1\n    network 1.0.0.0/8\n\nrouter rip\n    network 2.0.0.0/8\n"
	if got != want {
		t.Errorf("Join:\ngot:\n%q\nwant:\n%q", got, want)
	}
}

func TestInsertLines_SkipsCommentsAndStopsAtNextStanza(t *testing.T) {
	content := "router bgp 100\n" +
		"    network 1.0.0.0/8\n" +
		"!\n" +
		"route-map X permit 10\n"
	got, found := InsertLines(content, "bgp", "", []string{"neighbor 2.2.2.2 remote-as 200"})
	if !found {
		t.Fatal("expected block match")
	}
	want := "router bgp 100\n" +
		"    network 1.0.0.0/8\n" +
		"!\n" +
		"    neighbor 2.2.2.2 remote-as 200\n" +
		"route-map X permit 10\n"
	if got != want {
		t.Errorf("InsertLines:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestInsertLines_MatchToken(t *testing.T) {
	content := "router bgp 100\n    network 1.0.0.0/8\n\nrouter bgp 200 vrf red\n    network 2.0.0.0/8\n"
	got, found := InsertLines(content, "bgp", "200", []string{"neighbor 9.9.9.9 remote-as 100"})
	if !found {
		t.Fatal("expected block match")
	}
	if !strings.Contains(got, "    network 2.0.0.0/8\n    neighbor 9.9.9.9 remote-as 100\n") {
		t.Errorf("neighbor landed in the wrong block:\n%s", got)
	}
	if strings.Contains(got, "1.0.0.0/8\n    neighbor") {
		t.Errorf("neighbor inserted into first block:\n%s", got)
	}
}

func TestInsertLines_AppendFallback(t *testing.T) {
	content := "hostname r1\n"
	got, found := InsertLines(content, "ospf", "", []string{"router ospf", "    network 10.0.0.0/8 area 0.0.0.0"})
	if found {
		t.Fatal("no block should match")
	}
	want := "hostname r1\nrouter ospf\n    network 10.0.0.0/8 area 0.0.0.0\n"
	if got != want {
		t.Errorf("fallback append:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestInsertLines_HeaderIsCaseInsensitiveButExact(t *testing.T) {
	content := "Router OSPF\n    network 10.0.0.0/8 area 0.0.0.0\n"
	if _, found := InsertLines(content, "ospf", "", []string{"area 1.1.1.1 stub"}); !found {
		t.Error("case-insensitive header should match")
	}
	// "router ospf6" must not match "router ospf".
	other := "router ospf6\n    interface eth0 area 0.0.0.0\n"
	if _, found := InsertLines(other, "ospf", "", []string{"x"}); found {
		t.Error("ospf6 header must not match ospf")
	}
}

func TestInjectFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frr.conf")
	seed := BGP("100", []netip.Prefix{pfx(t, "10.0.0.0/24")})
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	found, err := InjectFile(path, "bgp", "", []string{"neighbor 10.0.0.2 remote-as 200"})
	if err != nil {
		t.Fatalf("InjectFile: %v", err)
	}
	if !found {
		t.Error("InjectFile must report the bgp block as found")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "    neighbor 10.0.0.2 remote-as 200\n") {
		t.Errorf("neighbor line missing:\n%s", data)
	}
	nets := ParseNetworkLines(string(data))
	if len(nets) != 1 || nets[0] != pfx(t, "10.0.0.0/24") {
		t.Errorf("network lines disturbed: %v", nets)
	}
}

func TestInjectFile_Missing(t *testing.T) {
	_, err := InjectFile(filepath.Join(t.TempDir(), "nope.conf"), "bgp", "", []string{"x"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestInjectFile_ReportsFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frr.conf")
	if err := os.WriteFile(path, []byte("router ospf\n    network 10.0.0.0/24 area 0.0.0.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	found, err := InjectFile(path, "bgp", "", []string{"neighbor 10.0.0.2 remote-as 200"})
	if err != nil {
		t.Fatalf("InjectFile: %v", err)
	}
	if found {
		t.Error("no bgp block exists, found must be false")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\nneighbor 10.0.0.2 remote-as 200\n") {
		t.Errorf("lines must be appended unindented at end of file:\n%s", data)
	}
}

func TestFileContains(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frr.conf")
	if err := os.WriteFile(path, []byte("router bgp 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err := FileContains(path, "bgp 100")
	if err != nil || !ok {
		t.Errorf("FileContains = %v, %v; want true, nil", ok, err)
	}
	ok, err = FileContains(filepath.Join(dir, "absent"), "x")
	if err != nil || ok {
		t.Errorf("missing file: got %v, %v; want false, nil", ok, err)
	}
}

func TestAppendFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frr.conf")
	if err := os.WriteFile(path, []byte("router bgp 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AppendFile(path, "route-map LP permit 10\n    set local-preference 120\n"); err != nil {
		t.Fatalf("AppendFile: %v", err)
	}
	data, _ := os.ReadFile(path)
	want := "router bgp 100\n\nroute-map LP permit 10\n    set local-preference 120\n"
	if string(data) != want {
		t.Errorf("AppendFile:\ngot:\n%s\nwant:\n%s", data, want)
	}
}
