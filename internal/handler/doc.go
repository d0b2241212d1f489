// Package handler implements the status HTTP surface of a monitor node:
// Prometheus metrics, a JSON status document and a liveness endpoint.
package handler
