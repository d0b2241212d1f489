// Package instance defines the monitored endpoint model shared by the
// registry, scanner and update pipeline: instances grouped under a service
// group, their lifecycle status, and the status change events emitted when a
// liveness check observes a transition.
package instance
