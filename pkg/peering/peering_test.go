package peering

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciro24/labforge/pkg/stanza"
	"github.com/sciro24/labforge/pkg/topology"
)

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	require.NoError(t, err)
	return p
}

// Three routers: r1 and r2 share collision domain A across AS 100/200,
// r1 and r3 share AS 100 with loopbacks.
func testIndex(t *testing.T) *topology.Index {
	t.Helper()
	topo := &topology.Topology{
		Name: "peering",
		Devices: []*topology.Device{
			{
				Name:      "r1",
				Role:      topology.RoleRouter,
				Protocols: []topology.Protocol{topology.ProtocolBGP},
				ASN:       "100",
				Interfaces: []topology.Interface{
					{Name: "eth0", Domain: "A", Address: mustPrefix(t, "10.0.0.1/24")},
				},
				Loopbacks: []netip.Prefix{mustPrefix(t, "1.1.1.1/32")},
			},
			{
				Name:      "r2",
				Role:      topology.RoleRouter,
				Protocols: []topology.Protocol{topology.ProtocolBGP},
				ASN:       "200",
				Interfaces: []topology.Interface{
					{Name: "eth0", Domain: "A", Address: mustPrefix(t, "10.0.0.2/24")},
				},
			},
			{
				Name:      "r3",
				Role:      topology.RoleRouter,
				Protocols: []topology.Protocol{topology.ProtocolBGP},
				ASN:       "100",
				Interfaces: []topology.Interface{
					{Name: "eth0", Domain: "B", Address: mustPrefix(t, "10.0.1.1/24")},
				},
				Loopbacks: []netip.Prefix{mustPrefix(t, "3.3.3.3/32")},
			},
		},
	}
	idx, err := topology.NewIndex(topo)
	require.NoError(t, err)
	return idx
}

func TestSynthesize(t *testing.T) {
	neighbors, err := Synthesize(testIndex(t))
	require.NoError(t, err)

	byKey := make(map[string]Neighbor)
	for _, n := range neighbors {
		byKey[n.Device+"->"+n.Peer] = n
	}
	require.Len(t, neighbors, 4)

	eb := byKey["r1->r2"]
	assert.Equal(t, "10.0.0.2", eb.Address.String())
	assert.Equal(t, "200", eb.RemoteAS)
	assert.False(t, eb.UpdateSource.IsValid())

	back := byKey["r2->r1"]
	assert.Equal(t, "10.0.0.1", back.Address.String())
	assert.Equal(t, "100", back.RemoteAS)

	ib := byKey["r1->r3"]
	assert.Equal(t, "3.3.3.3", ib.Address.String())
	assert.Equal(t, "100", ib.RemoteAS)
	assert.Equal(t, "1.1.1.1", ib.UpdateSource.String())

	ib2 := byKey["r3->r1"]
	assert.Equal(t, "1.1.1.1", ib2.Address.String())
	assert.Equal(t, "3.3.3.3", ib2.UpdateSource.String())
}

func TestSynthesize_Ordering(t *testing.T) {
	neighbors, err := Synthesize(testIndex(t))
	require.NoError(t, err)
	var keys []string
	for _, n := range neighbors {
		keys = append(keys, n.Device+"->"+n.Peer)
	}
	assert.Equal(t, []string{"r1->r2", "r1->r3", "r2->r1", "r3->r1"}, keys)
}

func TestSynthesize_SameASSharedDomain(t *testing.T) {
	topo := &topology.Topology{
		Name: "same-as",
		Devices: []*topology.Device{
			{
				Name:      "r1",
				Role:      topology.RoleRouter,
				Protocols: []topology.Protocol{topology.ProtocolBGP},
				ASN:       "100",
				Interfaces: []topology.Interface{
					{Name: "eth0", Domain: "A", Address: mustPrefix(t, "10.0.0.1/24")},
				},
			},
			{
				Name:      "r2",
				Role:      topology.RoleRouter,
				Protocols: []topology.Protocol{topology.ProtocolBGP},
				ASN:       "100",
				Interfaces: []topology.Interface{
					{Name: "eth0", Domain: "A", Address: mustPrefix(t, "10.0.0.2/24")},
				},
			},
		},
	}
	idx, err := topology.NewIndex(topo)
	require.NoError(t, err)

	// Same-AS routers on one LAN peer over their interface addresses
	// even without loopbacks.
	neighbors, err := Synthesize(idx)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)

	assert.Equal(t, "r1", neighbors[0].Device)
	assert.Equal(t, "10.0.0.2", neighbors[0].Address.String())
	assert.Equal(t, "100", neighbors[0].RemoteAS)
	assert.False(t, neighbors[0].UpdateSource.IsValid())

	assert.Equal(t, "r2", neighbors[1].Device)
	assert.Equal(t, "10.0.0.1", neighbors[1].Address.String())
	assert.Equal(t, "100", neighbors[1].RemoteAS)
}

func TestSynthesize_SkipsNonBGPDevices(t *testing.T) {
	topo := &topology.Topology{
		Name: "mixed",
		Devices: []*topology.Device{
			{
				Name:      "r1",
				Role:      topology.RoleRouter,
				Protocols: []topology.Protocol{topology.ProtocolBGP},
				ASN:       "100",
				Interfaces: []topology.Interface{
					{Name: "eth0", Domain: "A", Address: mustPrefix(t, "10.0.0.1/24")},
				},
				Loopbacks: []netip.Prefix{mustPrefix(t, "1.1.1.1/32")},
			},
			{
				Name:      "ospfonly",
				Role:      topology.RoleRouter,
				Protocols: []topology.Protocol{topology.ProtocolOSPF},
				ASN:       "200",
				Interfaces: []topology.Interface{
					{Name: "eth0", Domain: "A", Address: mustPrefix(t, "10.0.0.2/24")},
				},
				Loopbacks: []netip.Prefix{mustPrefix(t, "2.2.2.2/32")},
			},
		},
	}
	idx, err := topology.NewIndex(topo)
	require.NoError(t, err)

	// A non-BGP device neither receives neighbor statements nor is
	// offered as a peer, even when it carries an ASN and a loopback.
	neighbors, err := Synthesize(idx)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestNeighborLines(t *testing.T) {
	n := Neighbor{
		Device:       "r1",
		ASN:          "100",
		Peer:         "r3",
		Address:      netip.MustParseAddr("3.3.3.3"),
		RemoteAS:     "100",
		UpdateSource: netip.MustParseAddr("1.1.1.1"),
	}
	assert.Equal(t, []string{
		"neighbor 3.3.3.3 remote-as 100",
		"neighbor 3.3.3.3 description Router r3",
		"neighbor 3.3.3.3 update-source 1.1.1.1",
	}, n.Lines())
}

func TestApply_Idempotent(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"r1", "r2", "r3"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
		seed := stanza.BGP(map[string]string{"r1": "100", "r2": "200", "r3": "100"}[name],
			[]netip.Prefix{mustPrefix(t, "10.0.0.0/24")})
		require.NoError(t, os.WriteFile(filepath.Join(dir, name, "frr.conf"), []byte(seed), 0o644))
	}
	confPath := func(device string) string { return filepath.Join(dir, device, "frr.conf") }

	neighbors, err := Synthesize(testIndex(t))
	require.NoError(t, err)

	applied, err := Apply(neighbors, confPath)
	require.NoError(t, err)
	assert.Equal(t, 4, applied)

	data, err := os.ReadFile(confPath("r1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "    neighbor 10.0.0.2 remote-as 200\n")
	assert.Contains(t, string(data), "    neighbor 10.0.0.2 description Router r2\n")
	assert.Contains(t, string(data), "    neighbor 3.3.3.3 update-source 1.1.1.1\n")

	// Re-running must not duplicate anything.
	applied, err = Apply(neighbors, confPath)
	require.NoError(t, err)
	assert.Zero(t, applied)
	again, err := os.ReadFile(confPath("r1"))
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestApply_MissingConfigSkipped(t *testing.T) {
	dir := t.TempDir()
	neighbors, err := Synthesize(testIndex(t))
	require.NoError(t, err)
	applied, err := Apply(neighbors, func(device string) string {
		return filepath.Join(dir, device, "frr.conf")
	})
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestLocalPref(t *testing.T) {
	for rel, want := range map[Relationship]int{RelCustomer: 120, RelPeer: 100, RelProvider: 80} {
		got, err := LocalPref(rel)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := LocalPref(Relationship("friend"))
	assert.Error(t, err)
}

func TestApplyRelationship(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frr.conf")
	seed := stanza.BGP("100", []netip.Prefix{mustPrefix(t, "10.0.0.0/24")})
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	peer := netip.MustParseAddr("10.0.0.2")
	require.NoError(t, ApplyRelationship(path, peer, RelCustomer, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "route-map RM-CUSTOMER-10-0-0-2-IN permit 10\n    set local-preference 120\n")
	assert.Contains(t, text, "    neighbor 10.0.0.2 route-map RM-CUSTOMER-10-0-0-2-IN in\n")
	assert.NotContains(t, text, "prefix-list")

	require.NoError(t, ApplyRelationship(path, peer, RelCustomer, false))
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, text, string(again), "second apply must be a no-op")
}

func TestApplyRelationshipWithFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frr.conf")
	seed := stanza.BGP("100", []netip.Prefix{mustPrefix(t, "10.0.0.0/24")})
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	peer := netip.MustParseAddr("10.0.0.2")
	require.NoError(t, ApplyRelationship(path, peer, RelProvider, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "    set local-preference 80\n")
	assert.Contains(t, text, "ip prefix-list PL-PROVIDER-10-0-0-2-IN permit any\n")
	assert.Contains(t, text, "ip prefix-list PL-PROVIDER-10-0-0-2-OUT permit any\n")
	assert.Contains(t, text, "    neighbor 10.0.0.2 prefix-list PL-PROVIDER-10-0-0-2-IN in\n")
	assert.Contains(t, text, "    neighbor 10.0.0.2 prefix-list PL-PROVIDER-10-0-0-2-OUT out\n")

	require.NoError(t, ApplyRelationship(path, peer, RelProvider, true))
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, text, string(again), "second apply must be a no-op")
}
