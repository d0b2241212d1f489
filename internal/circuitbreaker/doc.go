// Package circuitbreaker guards writes to a backend that may be failing.
//
// A breaker has three states:
//
//   - CLOSED: writes pass through
//   - OPEN: the backend failed repeatedly, writes are held back
//   - HALF-OPEN: the reset timeout elapsed, one write probes the backend
//
// Usage:
//
//	cb := circuitbreaker.New(5, 30*time.Second, clock.New())
//	if cb.Allow() {
//	    if err := write(); err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
