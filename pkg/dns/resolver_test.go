package dns

import (
	"os"
	"testing"

	"github.com/cuemby/ztgateway/pkg/storage"
	"github.com/cuemby/ztgateway/pkg/types"
	"github.com/miekg/dns"
)

func newTestResolver(t *testing.T) (*Resolver, storage.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "ztgateway-dns-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := storage.NewJSONStore(dir)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	return NewResolver(store), store
}

func query(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	return m
}

func TestResolveReturnsRefusedForUnauthorizedCN(t *testing.T) {
	resolver, store := newTestResolver(t)

	mustCreate(t, store.CreateEndpoint(&types.Endpoint{CN: "sdeadbeefcafe", Role: types.RoleService}))
	mustCreate(t, store.CreateEndpoint(&types.Endpoint{CN: "calice00000001", Role: types.RoleClient}))
	mustCreate(t, store.CreateRoute(&types.Route{ServiceCN: "sdeadbeefcafe", BackendHost: "10.10.10.50", BackendPort: 5432}))
	mustCreate(t, store.CreateZone(&types.Zone{
		Name:      "db.internal.corp",
		ServiceCN: "sdeadbeefcafe",
		Records:   map[string][]types.Record{"@": {{Type: types.RecordTypeA, Value: "203.0.113.1"}}},
	}))

	resp, matched := resolver.Resolve(query("db.internal.corp", dns.TypeA), "calice00000001")
	if !matched {
		t.Fatal("expected a private-zone match")
	}
	if resp.Rcode != dns.RcodeRefused {
		t.Errorf("expected REFUSED, got %v", dns.RcodeToString[resp.Rcode])
	}
}

func TestResolveReturnsAForAuthorizedCN(t *testing.T) {
	resolver, store := newTestResolver(t)

	mustCreate(t, store.CreateEndpoint(&types.Endpoint{CN: "sdeadbeefcafe", Role: types.RoleService}))
	mustCreate(t, store.CreateEndpoint(&types.Endpoint{CN: "calice00000001", Role: types.RoleClient}))
	mustCreate(t, store.CreateRoute(&types.Route{ServiceCN: "sdeadbeefcafe", BackendHost: "10.10.10.50", BackendPort: 5432}))
	mustCreate(t, store.CreateZone(&types.Zone{
		Name:      "db.internal.corp",
		ServiceCN: "sdeadbeefcafe",
		Records:   map[string][]types.Record{"@": {{Type: types.RecordTypeA, Value: "203.0.113.1"}}},
	}))
	if err := store.AuthorizeEndpoint("db.internal.corp", "calice00000001"); err != nil {
		t.Fatalf("AuthorizeEndpoint: %v", err)
	}

	resp, matched := resolver.Resolve(query("db.internal.corp", dns.TypeA), "calice00000001")
	if !matched {
		t.Fatal("expected a private-zone match")
	}
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected NOERROR, got %v", dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(resp.Answer))
	}
	a, ok := resp.Answer[0].(*dns.A)
	if !ok || a.A.String() != "203.0.113.1" {
		t.Errorf("unexpected answer: %+v", resp.Answer[0])
	}
}

func TestResolveWildcardAndLiteralCoexist(t *testing.T) {
	resolver, store := newTestResolver(t)

	mustCreate(t, store.CreateEndpoint(&types.Endpoint{CN: "sdeadbeefcafe", Role: types.RoleService}))
	mustCreate(t, store.CreateEndpoint(&types.Endpoint{CN: "calice00000001", Role: types.RoleClient}))
	mustCreate(t, store.CreateRoute(&types.Route{ServiceCN: "sdeadbeefcafe", BackendHost: "10.10.10.50", BackendPort: 5432}))
	mustCreate(t, store.CreateZone(&types.Zone{
		Name:      "zone",
		ServiceCN: "sdeadbeefcafe",
		Records: map[string][]types.Record{
			"*":       {{Type: types.RecordTypeA, Value: "192.0.2.1"}},
			"replica": {{Type: types.RecordTypeA, Value: "192.0.2.2"}},
		},
	}))
	if err := store.AuthorizeEndpoint("zone", "calice00000001"); err != nil {
		t.Fatalf("AuthorizeEndpoint: %v", err)
	}

	resp, _ := resolver.Resolve(query("replica.zone", dns.TypeA), "calice00000001")
	if resp.Answer[0].(*dns.A).A.String() != "192.0.2.2" {
		t.Error("replica.zone should match the literal record, not the wildcard")
	}

	resp, _ = resolver.Resolve(query("other.zone", dns.TypeA), "calice00000001")
	if resp.Answer[0].(*dns.A).A.String() != "192.0.2.1" {
		t.Error("other.zone should fall back to the wildcard record")
	}
}

func TestResolveNoZoneMatchIsNotHandled(t *testing.T) {
	resolver, _ := newTestResolver(t)

	_, matched := resolver.Resolve(query("example.com", dns.TypeA), "calice00000001")
	if matched {
		t.Error("a name with no matching zone must not be handled locally")
	}
}

func mustCreate(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}
