// Package pool runs the check workers of one monitor node and rebuilds them
// whenever the group assignment changes.
package pool
