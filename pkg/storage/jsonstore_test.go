package storage

import (
	"os"
	"testing"

	"github.com/cuemby/ztgateway/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *JSONStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "ztgateway-store-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := NewJSONStore(dir)
	require.NoError(t, err)
	return store
}

func TestCreateRouteRequiresServiceEndpoint(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateRoute(&types.Route{ServiceCN: "sdeadbeefcafe", BackendHost: "10.0.0.1", BackendPort: 5432})
	require.Error(t, err)

	require.NoError(t, store.CreateEndpoint(&types.Endpoint{CN: "cdeadbeefcafe", Role: types.RoleClient}))
	err = store.CreateRoute(&types.Route{ServiceCN: "cdeadbeefcafe", BackendHost: "10.0.0.1", BackendPort: 5432})
	require.Error(t, err, "route must reference a service-role endpoint")

	require.NoError(t, store.CreateEndpoint(&types.Endpoint{CN: "sdeadbeefcafe", Role: types.RoleService}))
	require.NoError(t, store.CreateRoute(&types.Route{ServiceCN: "sdeadbeefcafe", BackendHost: "10.0.0.1", BackendPort: 5432}))
}

func TestCreateZoneRequiresRouteForServiceCN(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateZone(&types.Zone{Name: "db.internal.corp", ServiceCN: "sdeadbeefcafe"})
	require.Error(t, err)

	require.NoError(t, store.CreateEndpoint(&types.Endpoint{CN: "sdeadbeefcafe", Role: types.RoleService}))
	require.NoError(t, store.CreateRoute(&types.Route{ServiceCN: "sdeadbeefcafe", BackendHost: "10.0.0.1", BackendPort: 5432}))
	require.NoError(t, store.CreateZone(&types.Zone{Name: "Db.Internal.Corp.", ServiceCN: "sdeadbeefcafe"}))

	zone, err := store.GetZone("db.internal.corp")
	require.NoError(t, err)
	require.Equal(t, "db.internal.corp", zone.Name)
}

func TestDeleteEndpointCascades(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateEndpoint(&types.Endpoint{CN: "sdeadbeefcafe", Role: types.RoleService}))
	require.NoError(t, store.CreateEndpoint(&types.Endpoint{CN: "calice00000001", Role: types.RoleClient}))
	require.NoError(t, store.CreateRoute(&types.Route{ServiceCN: "sdeadbeefcafe", BackendHost: "10.0.0.1", BackendPort: 5432}))
	require.NoError(t, store.CreateZone(&types.Zone{Name: "db.internal.corp", ServiceCN: "sdeadbeefcafe"}))
	require.NoError(t, store.AuthorizeEndpoint("db.internal.corp", "calice00000001"))

	require.NoError(t, store.DeleteEndpoint("sdeadbeefcafe"))

	_, err := store.GetRoute("sdeadbeefcafe")
	require.Error(t, err, "route must be removed with its owning service endpoint")

	_, err = store.GetZone("db.internal.corp")
	require.Error(t, err, "zone owned by the deleted service must be removed")

	client, err := store.GetEndpoint("calice00000001")
	require.NoError(t, err, "unrelated endpoints must survive the cascade")
	require.NotNil(t, client)
}

func TestDeleteEndpointPrunesAccessLists(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateEndpoint(&types.Endpoint{CN: "sdeadbeefcafe", Role: types.RoleService}))
	require.NoError(t, store.CreateEndpoint(&types.Endpoint{CN: "calice00000001", Role: types.RoleClient}))
	require.NoError(t, store.CreateRoute(&types.Route{ServiceCN: "sdeadbeefcafe", BackendHost: "10.0.0.1", BackendPort: 5432}))
	require.NoError(t, store.CreateZone(&types.Zone{Name: "other.zone", ServiceCN: ""}))
	require.NoError(t, store.AuthorizeEndpoint("other.zone", "calice00000001"))

	require.NoError(t, store.DeleteEndpoint("calice00000001"))

	zone, err := store.GetZone("other.zone")
	require.NoError(t, err)
	require.False(t, zone.AccessList["calice00000001"])
}

func TestFindZoneForNameLongestSuffix(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateZone(&types.Zone{Name: "corp"}))
	require.NoError(t, store.CreateZone(&types.Zone{Name: "internal.corp"}))

	zone, err := store.FindZoneForName("db.internal.corp")
	require.NoError(t, err)
	require.Equal(t, "internal.corp", zone.Name)

	zone, err = store.FindZoneForName("other.corp")
	require.NoError(t, err)
	require.Equal(t, "corp", zone.Name)

	zone, err = store.FindZoneForName("example.com")
	require.NoError(t, err)
	require.Nil(t, zone)
}

func TestStoreReloadsFromDisk(t *testing.T) {
	dir, err := os.MkdirTemp("", "ztgateway-store-reload-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store, err := NewJSONStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.CreateEndpoint(&types.Endpoint{CN: "calice00000001", Role: types.RoleClient, Name: "alice"}))

	reloaded, err := NewJSONStore(dir)
	require.NoError(t, err)

	endpoint, err := reloaded.GetEndpoint("calice00000001")
	require.NoError(t, err)
	require.Equal(t, "alice", endpoint.Name)
}
