package registry

import (
	"context"
	"errors"

	"github.com/angeloszaimis/service-monitor/internal/instance"
)

// ErrNotFound is returned when a group or instance does not exist.
var ErrNotFound = errors.New("registry: not found")

// Reader is the read side consumed by the scanner.
type Reader interface {
	// ListMembers returns the member keys of group. An existing group with
	// no members yields an empty, non-nil slice; an unknown group yields
	// ErrNotFound.
	ListMembers(ctx context.Context, groupID string) ([]string, error)

	// Instance returns a snapshot of one member, or ErrNotFound.
	Instance(ctx context.Context, groupID, memberKey string) (instance.Instance, error)
}

// StatusWriter persists status transitions.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, key string, status instance.Status) error
}

// Registry is implemented by every backend.
type Registry interface {
	Reader
	StatusWriter

	// ListGroups returns every known group id in ascending order.
	ListGroups(ctx context.Context) ([]string, error)

	Close() error
}
