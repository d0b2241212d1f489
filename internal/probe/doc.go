// Package probe implements the TCP liveness check used by the group scanner.
//
// A probe performs exactly one non-blocking connect attempt bounded by a
// timeout and reports whether the endpoint is reachable. Retries are the
// caller's policy. Failures are logged and folded into "unreachable"; no
// error ever leaves the package.
//
// On Linux the probe drives the socket directly through golang.org/x/sys/unix
// so that the readiness classification (readable, writable, error) is applied
// exactly. Other platforms fall back to a bounded net.Dialer connect.
package probe
