package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/service-monitor/internal/instance"
)

const namespace = "service_monitor"

type Metrics struct {
	registry *prometheus.Registry

	probes         *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	passes         prometheus.Counter
	passDuration   prometheus.Histogram
	pendingUpdates prometheus.Gauge
	failedUpdates  prometheus.Counter
	workers        prometheus.Gauge

	pendingCount atomic.Int64
	workerCount  atomic.Int64

	mutex     sync.RWMutex
	groups    map[string]*groupState
	instances map[string]*instanceState
	startTime time.Time
}

type groupState struct {
	scans    int64
	members  int
	lastScan time.Time
	duration time.Duration
}

type instanceState struct {
	probes     int64
	failures   int64
	status     instance.Status
	lastChange time.Time
}

type Snapshot struct {
	Uptime         time.Duration              `json:"uptime"`
	Workers        int                        `json:"workers"`
	PendingUpdates int                        `json:"pending_updates"`
	Groups         map[string]GroupMetrics    `json:"groups"`
	Instances      map[string]InstanceMetrics `json:"instances"`
	StatusCounts   map[string]int             `json:"status_counts"`
}

type GroupMetrics struct {
	Scans        int64         `json:"scans"`
	Members      int           `json:"members"`
	LastScan     time.Time     `json:"last_scan"`
	LastDuration time.Duration `json:"last_duration"`
}

type InstanceMetrics struct {
	Probes     int64     `json:"probes"`
	Failures   int64     `json:"failures"`
	Status     string    `json:"status"`
	LastChange time.Time `json:"last_change,omitempty"`
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "TCP liveness probes by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Observed instance status transitions by new status.",
		}, []string{"status"}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_passes_total",
			Help:      "Completed group scan passes.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_pass_duration_seconds",
			Help:      "Wall time of one group scan pass.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		pendingUpdates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_updates",
			Help:      "Status changes waiting to be written to the registry.",
		}),
		failedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_updates_total",
			Help:      "Registry status writes that exhausted their retries.",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Check workers currently running.",
		}),
		groups:    make(map[string]*groupState),
		instances: make(map[string]*instanceState),
		startTime: time.Now(),
	}

	m.registry.MustRegister(
		m.probes,
		m.transitions,
		m.passes,
		m.passDuration,
		m.pendingUpdates,
		m.failedUpdates,
		m.workers,
	)
	return m
}

// Registry exposes the Prometheus registry the series are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordProbe(key string, reachable bool) {
	if m == nil {
		return
	}
	result := "reachable"
	if !reachable {
		result = "unreachable"
	}
	m.probes.WithLabelValues(result).Inc()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	st := m.instance(key)
	st.probes++
	if !reachable {
		st.failures++
	}
}

// RecordStatus stores the status a check settled on, whether or not it
// changed.
func (m *Metrics) RecordStatus(key string, status instance.Status) {
	if m == nil {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.instance(key).status = status
}

func (m *Metrics) RecordTransition(ev instance.StatusChangeEvent) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(ev.Status.String()).Inc()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	st := m.instance(ev.Key)
	st.status = ev.Status
	st.lastChange = ev.Timestamp
}

func (m *Metrics) RecordScan(groupID string, members int, duration time.Duration) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.passDuration.Observe(duration.Seconds())

	m.mutex.Lock()
	defer m.mutex.Unlock()

	st, exists := m.groups[groupID]
	if !exists {
		st = &groupState{}
		m.groups[groupID] = st
	}
	st.scans++
	st.members = members
	st.lastScan = time.Now()
	st.duration = duration
}

func (m *Metrics) SetPendingUpdates(n int) {
	if m == nil {
		return
	}
	m.pendingCount.Store(int64(n))
	m.pendingUpdates.Set(float64(n))
}

func (m *Metrics) RecordFailedUpdate() {
	if m == nil {
		return
	}
	m.failedUpdates.Inc()
}

func (m *Metrics) AddWorkers(delta int) {
	if m == nil {
		return
	}
	m.workers.Set(float64(m.workerCount.Add(int64(delta))))
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Groups:       make(map[string]GroupMetrics),
		Instances:    make(map[string]InstanceMetrics),
		StatusCounts: make(map[string]int),
	}
	if m == nil {
		return snap
	}

	snap.Workers = int(m.workerCount.Load())
	snap.PendingUpdates = int(m.pendingCount.Load())

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap.Uptime = time.Since(m.startTime)

	for id, st := range m.groups {
		snap.Groups[id] = GroupMetrics{
			Scans:        st.scans,
			Members:      st.members,
			LastScan:     st.lastScan,
			LastDuration: st.duration,
		}
	}

	for key, st := range m.instances {
		status := st.status.String()
		snap.Instances[key] = InstanceMetrics{
			Probes:     st.probes,
			Failures:   st.failures,
			Status:     status,
			LastChange: st.lastChange,
		}
		snap.StatusCounts[status]++
	}

	return snap
}

func (m *Metrics) instance(key string) *instanceState {
	st, exists := m.instances[key]
	if !exists {
		st = &instanceState{status: instance.StatusUnknown}
		m.instances[key] = st
	}
	return st
}
