// Package balance decides which service groups this monitor node checks.
//
// Groups are spread across the configured peers with a consistent hash ring,
// so a peer joining or leaving only moves the groups adjacent to it. The
// Controller refreshes the group list from the registry and raises a
// rebalance signal whenever the set of owned groups changes.
package balance
