// Package zookeeper implements registry.Registry on top of a ZooKeeper
// ensemble.
//
// Layout under the configured root:
//
//	<root>/<group>            optional JSON data: {"connect_timeout": <seconds>}
//	<root>/<group>/<ip:port>  data: decimal instance status
package zookeeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/samuel/go-zookeeper/zk"

	"github.com/angeloszaimis/service-monitor/internal/instance"
	"github.com/angeloszaimis/service-monitor/internal/registry"
)

// Conn is the subset of *zk.Conn the registry uses.
type Conn interface {
	Children(path string) ([]string, *zk.Stat, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Set(path string, data []byte, version int32) (*zk.Stat, error)
	Close()
}

// Registry reads groups and instances from ZooKeeper nodes.
type Registry struct {
	conn Conn
	root string
}

type groupData struct {
	ConnectTimeout int `json:"connect_timeout"`
}

// New wraps an established connection.
func New(conn Conn, root string) *Registry {
	if root == "" {
		root = "/"
	}
	return &Registry{conn: conn, root: path.Clean("/" + root)}
}

// Dial connects to the ensemble and logs session state changes until the
// connection is closed.
func Dial(servers []string, root string, sessionTimeout time.Duration, logger *slog.Logger) (*Registry, error) {
	logger = logger.With(slog.String("component", "zookeeper"))

	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogger(printfLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("connect zookeeper %v: %w", servers, err)
	}

	go func() {
		for ev := range events {
			if ev.Type == zk.EventSession {
				logger.Info("zookeeper session state changed",
					slog.String("state", ev.State.String()),
					slog.String("server", ev.Server))
			}
		}
	}()

	return New(conn, root), nil
}

func (r *Registry) ListGroups(_ context.Context) ([]string, error) {
	children, _, err := r.conn.Children(r.root)
	if err != nil {
		return nil, r.wrap(r.root, err)
	}
	sort.Strings(children)
	return children, nil
}

func (r *Registry) ListMembers(_ context.Context, groupID string) ([]string, error) {
	p := r.groupPath(groupID)
	children, _, err := r.conn.Children(p)
	if err != nil {
		return nil, r.wrap(p, err)
	}
	if children == nil {
		children = []string{}
	}
	sort.Strings(children)
	return children, nil
}

func (r *Registry) Instance(_ context.Context, groupID, memberKey string) (instance.Instance, error) {
	p := path.Join(r.groupPath(groupID), memberKey)
	data, _, err := r.conn.Get(p)
	if err != nil {
		return instance.Instance{}, r.wrap(p, err)
	}

	host, port, err := instance.ParseMember(memberKey)
	if err != nil {
		return instance.Instance{}, fmt.Errorf("member %q: %w", p, err)
	}

	status, err := instance.ParseStatus(string(data))
	if err != nil {
		return instance.Instance{}, fmt.Errorf("status of %q: %w", p, err)
	}

	return instance.Instance{
		GroupID:        groupID,
		MemberKey:      memberKey,
		Host:           host,
		Port:           port,
		ConnectTimeout: r.groupTimeout(groupID),
		Status:         status,
	}, nil
}

func (r *Registry) UpdateStatus(_ context.Context, key string, status instance.Status) error {
	groupID, memberKey, ok := instance.SplitKey(key)
	if !ok {
		return fmt.Errorf("malformed instance key %q", key)
	}
	p := path.Join(r.groupPath(groupID), memberKey)
	if _, err := r.conn.Set(p, []byte(status.Encode()), -1); err != nil {
		return r.wrap(p, err)
	}
	return nil
}

func (r *Registry) Close() error {
	r.conn.Close()
	return nil
}

// groupTimeout reads the optional per-group connect timeout. Missing or
// malformed data means no override.
func (r *Registry) groupTimeout(groupID string) time.Duration {
	data, _, err := r.conn.Get(r.groupPath(groupID))
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return 0
	}
	var gd groupData
	if err := json.Unmarshal(data, &gd); err != nil {
		return 0
	}
	return time.Duration(gd.ConnectTimeout) * time.Second
}

func (r *Registry) groupPath(groupID string) string {
	return path.Join(r.root, groupID)
}

func (r *Registry) wrap(p string, err error) error {
	if errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("node %q: %w", p, registry.ErrNotFound)
	}
	return fmt.Errorf("node %q: %w", p, err)
}

type printfLogger struct {
	logger *slog.Logger
}

func (l printfLogger) Printf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
