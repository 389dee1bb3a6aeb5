package topology

import (
	"fmt"
	"sort"

	memdb "github.com/hashicorp/go-memdb"
)

const (
	deviceTable  = "devices"
	bindingTable = "interfaces"
)

// Index names for the topology database.
const (
	IDIndex     = "id"
	ASNIndex    = "asn"
	DomainIndex = "domain"
	DeviceIndex = "device"
)

// Binding is one interface row in the index: the flattened form of a
// device/interface pair, keyed for collision-domain lookups.
type Binding struct {
	ID      string // "<device>/<interface>"
	Device  string
	Iface   string
	Domain  string
	Address string // interface address in CIDR form, host bits retained
	ASN     string
	BGP     bool // owning device runs bgp
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			deviceTable: {
				Name: deviceTable,
				Indexes: map[string]*memdb.IndexSchema{
					IDIndex: {
						Name:    IDIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
					ASNIndex: {
						Name:         ASNIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "ASN"},
					},
				},
			},
			bindingTable: {
				Name: bindingTable,
				Indexes: map[string]*memdb.IndexSchema{
					IDIndex: {
						Name:    IDIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					DomainIndex: {
						Name:         DomainIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Domain"},
					},
					DeviceIndex: {
						Name:    DeviceIndex,
						Indexer: &memdb.StringFieldIndex{Field: "Device"},
					},
				},
			},
		},
	}
}

// Index is an in-memory indexed view over a topology, used by the peering
// synthesizer to answer "who shares this collision domain" and "who shares
// this ASN" without rescanning every device.
type Index struct {
	db *memdb.MemDB
}

// NewIndex builds the index from a topology.
func NewIndex(t *Topology) (*Index, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	txn := db.Txn(true)
	for _, d := range t.Devices {
		if err := txn.Insert(deviceTable, d); err != nil {
			txn.Abort()
			return nil, fmt.Errorf("indexing device %s: %w", d.Name, err)
		}
		for _, ifc := range d.Interfaces {
			b := &Binding{
				ID:      d.Name + "/" + ifc.Name,
				Device:  d.Name,
				Iface:   ifc.Name,
				Domain:  ifc.Domain,
				Address: ifc.Address.String(),
				ASN:     d.ASN,
				BGP:     d.Has(ProtocolBGP),
			}
			if err := txn.Insert(bindingTable, b); err != nil {
				txn.Abort()
				return nil, fmt.Errorf("indexing interface %s: %w", b.ID, err)
			}
		}
	}
	txn.Commit()
	return &Index{db: db}, nil
}

// Device looks up a device by name.
func (ix *Index) Device(name string) (*Device, bool, error) {
	txn := ix.db.Txn(false)
	raw, err := txn.First(deviceTable, IDIndex, name)
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	return raw.(*Device), true, nil
}

// DevicesByASN returns every device announcing the given ASN, sorted by name.
func (ix *Index) DevicesByASN(asn string) ([]*Device, error) {
	txn := ix.db.Txn(false)
	it, err := txn.Get(deviceTable, ASNIndex, asn)
	if err != nil {
		return nil, err
	}
	var out []*Device
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*Device))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// BindingsByDomain returns every interface binding attached to a collision
// domain, sorted by binding id.
func (ix *Index) BindingsByDomain(domain string) ([]*Binding, error) {
	txn := ix.db.Txn(false)
	it, err := txn.Get(bindingTable, DomainIndex, domain)
	if err != nil {
		return nil, err
	}
	var out []*Binding
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*Binding))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Domains returns the distinct non-empty collision-domain ids, sorted.
func (ix *Index) Domains() ([]string, error) {
	txn := ix.db.Txn(false)
	it, err := txn.Get(bindingTable, IDIndex)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for raw := it.Next(); raw != nil; raw = it.Next() {
		b := raw.(*Binding)
		if b.Domain != "" {
			set[b.Domain] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// ASNs returns the distinct non-empty ASNs in the topology, sorted.
func (ix *Index) ASNs() ([]string, error) {
	txn := ix.db.Txn(false)
	it, err := txn.Get(deviceTable, IDIndex)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for raw := it.Next(); raw != nil; raw = it.Next() {
		d := raw.(*Device)
		if d.ASN != "" {
			set[d.ASN] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}
