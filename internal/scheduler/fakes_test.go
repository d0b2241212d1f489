package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
)

type flag struct {
	atomic.Bool
}

func (f *flag) StopRequested() bool  { return f.Load() }
func (f *flag) NeedsRebalance() bool { return f.Load() }

type recordingScanner struct {
	mutex  sync.Mutex
	groups []string
	onScan func(groupID string)
}

func (r *recordingScanner) Scan(_ context.Context, groupID string) {
	r.mutex.Lock()
	r.groups = append(r.groups, groupID)
	hook := r.onScan
	r.mutex.Unlock()

	if hook != nil {
		hook(groupID)
	}
}

func (r *recordingScanner) Scanned() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.groups...)
}
