// Package scheduler runs check workers on a self-correcting periodic timer and
// rotates them across a shared table of group slots when groups outnumber
// workers.
package scheduler
