package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/angeloszaimis/service-monitor/internal/instance"
)

// Memory is a Registry held entirely in process memory.
type Memory struct {
	mutex  sync.RWMutex
	groups map[string]map[string]instance.Instance
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		groups: make(map[string]map[string]instance.Instance),
	}
}

// AddGroup registers a group, possibly without members. Existing groups are
// left untouched.
func (m *Memory) AddGroup(groupID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.groups[groupID]; !exists {
		m.groups[groupID] = make(map[string]instance.Instance)
	}
}

// Put adds or replaces an instance, creating its group on demand.
func (m *Memory) Put(inst instance.Instance) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	members, exists := m.groups[inst.GroupID]
	if !exists {
		members = make(map[string]instance.Instance)
		m.groups[inst.GroupID] = members
	}
	members[inst.MemberKey] = inst
}

func (m *Memory) ListGroups(_ context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	groups := make([]string, 0, len(m.groups))
	for id := range m.groups {
		groups = append(groups, id)
	}
	sort.Strings(groups)
	return groups, nil
}

func (m *Memory) ListMembers(_ context.Context, groupID string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	members, exists := m.groups[groupID]
	if !exists {
		return nil, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}

	keys := make([]string, 0, len(members))
	for key := range members {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Instance(_ context.Context, groupID, memberKey string) (instance.Instance, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	inst, exists := m.groups[groupID][memberKey]
	if !exists {
		return instance.Instance{}, fmt.Errorf("instance %q: %w", instance.Key(groupID, memberKey), ErrNotFound)
	}
	return inst, nil
}

func (m *Memory) UpdateStatus(_ context.Context, key string, status instance.Status) error {
	groupID, memberKey, ok := instance.SplitKey(key)
	if !ok {
		return fmt.Errorf("malformed instance key %q", key)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	inst, exists := m.groups[groupID][memberKey]
	if !exists {
		return fmt.Errorf("instance %q: %w", key, ErrNotFound)
	}
	inst.Status = status
	m.groups[groupID][memberKey] = inst
	return nil
}

func (m *Memory) Close() error {
	return nil
}
