// Package scanner checks every instance of one service group and proposes
// status transitions.
//
// Each Scan re-reads the member list and every instance snapshot from the
// registry, probes UP and DOWN members with a retry budget that depends on
// their last known status, and submits a StatusChangeEvent only when the
// derived status differs from the stored one. Probe failures never abort a
// scan; stop and rebalance requests are honoured between instances and
// between probe attempts.
package scanner
