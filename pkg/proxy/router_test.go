package proxy

import (
	"os"
	"testing"

	"github.com/cuemby/ztgateway/pkg/storage"
	"github.com/cuemby/ztgateway/pkg/types"
)

func newTestRouter(t *testing.T) (*Router, storage.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "ztgateway-proxy-router-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := storage.NewJSONStore(dir)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	return NewRouter(store), store
}

func seedZone(t *testing.T, store storage.Store) {
	t.Helper()
	if err := store.CreateEndpoint(&types.Endpoint{CN: "sdeadbeefcafe", Role: types.RoleService}); err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}
	if err := store.CreateEndpoint(&types.Endpoint{CN: "calice00000001", Role: types.RoleClient}); err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}
	if err := store.CreateRoute(&types.Route{ServiceCN: "sdeadbeefcafe", BackendHost: "10.10.10.50", BackendPort: 5432, Domains: []string{"db.internal.corp"}}); err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}
	if err := store.CreateZone(&types.Zone{Name: "db.internal.corp", ServiceCN: "sdeadbeefcafe"}); err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
}

func TestRouterResolveUnauthorizedIsDrop(t *testing.T) {
	router, store := newTestRouter(t)
	seedZone(t, store)

	_, _, err := router.Resolve("db.internal.corp", "calice00000001")
	if err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRouterResolveAuthorized(t *testing.T) {
	router, store := newTestRouter(t)
	seedZone(t, store)
	if err := store.AuthorizeEndpoint("db.internal.corp", "calice00000001"); err != nil {
		t.Fatalf("AuthorizeEndpoint: %v", err)
	}

	zoneName, route, err := router.Resolve("db.internal.corp:5432", "calice00000001")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if zoneName != "db.internal.corp" {
		t.Errorf("zoneName = %q, want db.internal.corp", zoneName)
	}
	if route.BackendHost != "10.10.10.50" || route.BackendPort != 5432 {
		t.Errorf("unexpected route: %+v", route)
	}
}

func TestRouterResolveNoZoneMatch(t *testing.T) {
	router, store := newTestRouter(t)
	seedZone(t, store)

	if _, _, err := router.Resolve("example.com", "calice00000001"); err == nil {
		t.Error("expected an error for a hostname with no matching zone")
	}
}

func TestNormalizeHostname(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Example.COM", "example.com"},
		{"example.com:8443", "example.com"},
		{"example.com.", "example.com"},
	}
	for _, tt := range tests {
		if got := normalizeHostname(tt.in); got != tt.want {
			t.Errorf("normalizeHostname(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
