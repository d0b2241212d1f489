package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/angeloszaimis/service-monitor/config"
	"github.com/angeloszaimis/service-monitor/internal/instance"
	"github.com/angeloszaimis/service-monitor/internal/registry"
	redisregistry "github.com/angeloszaimis/service-monitor/internal/registry/redis"
	"github.com/angeloszaimis/service-monitor/internal/registry/zookeeper"
)

// seeder is a registry that can be populated from the static config seed.
type seeder interface {
	AddGroup(ctx context.Context, groupID string) error
	Register(ctx context.Context, inst instance.Instance) error
}

type memorySeeder struct {
	*registry.Memory
}

func (s memorySeeder) AddGroup(_ context.Context, groupID string) error {
	s.Memory.AddGroup(groupID)
	return nil
}

func (s memorySeeder) Register(_ context.Context, inst instance.Instance) error {
	s.Memory.Put(inst)
	return nil
}

func openRegistry(ctx context.Context, cfg config.RegistryConfig, log *slog.Logger) (registry.Registry, error) {
	switch cfg.Backend {
	case config.BackendZooKeeper:
		reg, err := zookeeper.Dial(cfg.ZooKeeper.Servers, cfg.ZooKeeper.Root, cfg.ZooKeeper.Session(), log)
		if err != nil {
			return nil, err
		}
		if len(cfg.Memory.Groups) > 0 {
			log.Warn("Ignoring static groups, the zookeeper registry is managed externally")
		}
		return reg, nil

	case config.BackendRedis:
		addr := cfg.Redis.Addr
		if !strings.Contains(addr, "://") {
			addr = "redis://" + addr
		}
		client, err := redisregistry.NewUniversalClient(addr)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		reg := redisregistry.New(client, cfg.Redis.Prefix)
		if err := seed(ctx, reg, cfg.Memory); err != nil {
			reg.Close()
			return nil, err
		}
		return reg, nil

	default:
		reg := registry.NewMemory()
		if err := seed(ctx, memorySeeder{reg}, cfg.Memory); err != nil {
			return nil, err
		}
		return reg, nil
	}
}

// seed registers every configured group and member, in group order.
func seed(ctx context.Context, s seeder, cfg config.MemoryConfig) error {
	groupIDs := make([]string, 0, len(cfg.Groups))
	for id := range cfg.Groups {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)

	for _, groupID := range groupIDs {
		if err := s.AddGroup(ctx, groupID); err != nil {
			return err
		}
		for _, member := range cfg.Groups[groupID] {
			inst, err := seedInstance(groupID, member)
			if err != nil {
				return err
			}
			if err := s.Register(ctx, inst); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedInstance(groupID string, member config.MemberConfig) (instance.Instance, error) {
	inst := instance.Instance{
		GroupID:        groupID,
		MemberKey:      member.Member,
		Host:           member.Host,
		Port:           member.Port,
		ConnectTimeout: member.ConnectTimeout(),
	}

	if inst.Host == "" {
		host, port, err := instance.ParseMember(member.Member)
		if err != nil {
			return instance.Instance{}, fmt.Errorf("seed member %q: %w", instance.Key(groupID, member.Member), err)
		}
		inst.Host, inst.Port = host, port
	}

	status, err := instance.ParseStatus(member.Status)
	if err != nil {
		return instance.Instance{}, fmt.Errorf("seed member %q: %w", instance.Key(groupID, member.Member), err)
	}
	inst.Status = status

	return inst, nil
}
