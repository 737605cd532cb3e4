/*
Package storage persists the gateway's authoritative state: the
endpoint registry, the private zones, and the backend routes.

# Design

Three in-memory maps (endpoints, zones, routes) are loaded from disk
once at startup and mirrored by every mutation. A single
writer-preferring lock (sync.RWMutex) serializes mutations; readers on
the resolver and proxy fast paths take a short read lock to snapshot
what they need and run the rest of their logic outside it.

Every mutation that changes memory also rewrites the affected JSON
document on disk: marshal to a temp file in the same directory, then
os.Rename over the real path, so a crash mid-write never leaves a
truncated document behind.

# Referential invariants

The store — not its callers — enforces the cross-entity rules from the
data model:

  - Deleting an endpoint CN removes it from every zone's access list,
    and if it is a service CN, also deletes its route and every zone
    whose service_cn names it.
  - Creating a route requires the named service endpoint to already
    exist.
  - Creating a zone with a non-empty ServiceCN requires that route to
    already exist.
  - Zone names are normalized (lower-case, trailing dot stripped)
    before they are used as map keys.
*/
package storage
