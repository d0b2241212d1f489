// Package redis implements registry.Registry on top of Redis.
//
// Keys, all under a configurable prefix:
//
//	<prefix>:groups                     set of group ids
//	<prefix>:members:<group>            set of member keys
//	<prefix>:instance:<group>/<member>  JSON instance record
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/angeloszaimis/service-monitor/internal/instance"
	"github.com/angeloszaimis/service-monitor/internal/registry"
)

// record is the stored JSON shape of an instance.
type record struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ConnectTimeout int    `json:"connect_timeout,omitempty"`
	Status         int    `json:"status"`
}

// Registry keeps groups and instances in Redis.
type Registry struct {
	client redis.UniversalClient
	prefix string
}

// NewUniversalClient parses a redis:// URL into a universal client.
func NewUniversalClient(redisURL string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cant parse redis url: %w", err)
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{opts.Addr},
		DB:           opts.DB,
		Username:     opts.Username,
		Password:     opts.Password,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		TLSConfig:    opts.TLSConfig,
	}), nil
}

// New creates a registry using client. An empty prefix defaults to "monitor".
func New(client redis.UniversalClient, prefix string) *Registry {
	if prefix == "" {
		prefix = "monitor"
	}
	return &Registry{client: client, prefix: prefix}
}

// Register stores an instance and adds it to its group.
func (r *Registry) Register(ctx context.Context, inst instance.Instance) error {
	data, err := json.Marshal(toRecord(inst))
	if err != nil {
		return fmt.Errorf("marshal instance %q: %w", inst.Key(), err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.groupsKey(), inst.GroupID)
		pipe.SAdd(ctx, r.membersKey(inst.GroupID), inst.MemberKey)
		pipe.Set(ctx, r.instanceKey(inst.Key()), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register instance %q: %w", inst.Key(), err)
	}
	return nil
}

// AddGroup registers a group without members.
func (r *Registry) AddGroup(ctx context.Context, groupID string) error {
	if err := r.client.SAdd(ctx, r.groupsKey(), groupID).Err(); err != nil {
		return fmt.Errorf("add group %q: %w", groupID, err)
	}
	return nil
}

func (r *Registry) ListGroups(ctx context.Context) ([]string, error) {
	groups, err := r.client.SMembers(ctx, r.groupsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	sort.Strings(groups)
	return groups, nil
}

func (r *Registry) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	known, err := r.client.SIsMember(ctx, r.groupsKey(), groupID).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup group %q: %w", groupID, err)
	}
	if !known {
		return nil, fmt.Errorf("group %q: %w", groupID, registry.ErrNotFound)
	}

	members, err := r.client.SMembers(ctx, r.membersKey(groupID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members of %q: %w", groupID, err)
	}
	if members == nil {
		members = []string{}
	}
	sort.Strings(members)
	return members, nil
}

func (r *Registry) Instance(ctx context.Context, groupID, memberKey string) (instance.Instance, error) {
	key := instance.Key(groupID, memberKey)
	data, err := r.client.Get(ctx, r.instanceKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return instance.Instance{}, fmt.Errorf("instance %q: %w", key, registry.ErrNotFound)
	}
	if err != nil {
		return instance.Instance{}, fmt.Errorf("read instance %q: %w", key, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return instance.Instance{}, fmt.Errorf("decode instance %q: %w", key, err)
	}

	return instance.Instance{
		GroupID:        groupID,
		MemberKey:      memberKey,
		Host:           rec.Host,
		Port:           rec.Port,
		ConnectTimeout: time.Duration(rec.ConnectTimeout) * time.Second,
		Status:         instance.Status(rec.Status),
	}, nil
}

// UpdateStatus rewrites the status field under WATCH so a concurrent
// re-registration is never clobbered with stale fields.
func (r *Registry) UpdateStatus(ctx context.Context, key string, status instance.Status) error {
	redisKey := r.instanceKey(key)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("instance %q: %w", key, registry.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode instance %q: %w", key, err)
		}
		rec.Status = int(status)

		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, redisKey)
	if err != nil {
		return fmt.Errorf("update status of %q: %w", key, err)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}

func (r *Registry) groupsKey() string {
	return r.prefix + ":groups"
}

func (r *Registry) membersKey(groupID string) string {
	return r.prefix + ":members:" + groupID
}

func (r *Registry) instanceKey(key string) string {
	return r.prefix + ":instance:" + key
}

func toRecord(inst instance.Instance) record {
	return record{
		Host:           inst.Host,
		Port:           inst.Port,
		ConnectTimeout: int(inst.ConnectTimeout / time.Second),
		Status:         int(inst.Status),
	}
}
