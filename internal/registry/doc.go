// Package registry defines the service registry the monitor reads topology
// from and writes status transitions back to, together with an in-memory
// implementation.
//
// Reads are never cached by callers: every scan pass re-fetches member lists
// and instance snapshots so topology changes become visible within one
// polling interval. Backends live in sub-packages:
//
//   - registry/zookeeper: <root>/<group>/<host:port> nodes holding the status
//   - registry/redis: sets of groups and members plus JSON instance values
package registry
