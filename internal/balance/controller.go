package balance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const DefaultRefreshInterval = 10 * time.Second

// GroupLister lists every group known to the registry.
type GroupLister interface {
	ListGroups(ctx context.Context) ([]string, error)
}

type Options struct {
	// NodeID identifies this monitor on the ring. Defaults to "local".
	NodeID string
	// Peers are the other monitor nodes sharing the group space.
	Peers           []string
	VirtualNodes    int
	RefreshInterval time.Duration
	Clock           clock.Clock
}

type Controller struct {
	source GroupLister
	ring   *ring
	opts   Options
	logger *slog.Logger

	mutex     sync.RWMutex
	groups    []string
	rebalance atomic.Bool
	loaded    atomic.Bool
}

func NewController(source GroupLister, opts Options, logger *slog.Logger) *Controller {
	if opts.NodeID == "" {
		opts.NodeID = "local"
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	nodes := []string{opts.NodeID}
	for _, peer := range opts.Peers {
		if peer != "" && !slices.Contains(nodes, peer) {
			nodes = append(nodes, peer)
		}
	}

	return &Controller{
		source: source,
		ring:   buildRing(nodes, opts.VirtualNodes),
		opts:   opts,
		logger: logger.With(slog.String("component", "balance"), slog.String("node", opts.NodeID)),
	}
}

// Refresh reloads the group list and recomputes the owned groups. A change
// in ownership raises the rebalance signal.
func (c *Controller) Refresh(ctx context.Context) error {
	all, err := c.source.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	owned := make([]string, 0, len(all))
	for _, groupID := range all {
		if c.Owner(groupID) == c.opts.NodeID {
			owned = append(owned, groupID)
		}
	}
	slices.Sort(owned)

	c.mutex.Lock()
	changed := !slices.Equal(c.groups, owned)
	if changed {
		c.groups = owned
	}
	c.mutex.Unlock()

	first := !c.loaded.Swap(true)
	if changed && !first {
		c.rebalance.Store(true)
	}
	if changed || first {
		c.logger.Info("Group assignment updated",
			slog.Int("total_groups", len(all)),
			slog.Int("owned_groups", len(owned)))
	}
	return nil
}

// Run refreshes the assignment every refresh interval until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.opts.Clock.Ticker(c.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Balance controller stopped")
			return nil

		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("Cannot refresh group assignment", slog.Any("err", err))
			}
		}
	}
}

// AssignedGroups returns the ordered groups this node owns. Every worker
// shares the same list and picks its group through the slot table.
func (c *Controller) AssignedGroups(_ int) []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return slices.Clone(c.groups)
}

func (c *Controller) NeedsRebalance() bool {
	return c.rebalance.Load()
}

// Acknowledge clears the rebalance signal once the pool has been rebuilt.
func (c *Controller) Acknowledge() {
	c.rebalance.Store(false)
}

// Owner returns the node responsible for groupID.
func (c *Controller) Owner(groupID string) string {
	return c.ring.owner(groupID)
}
