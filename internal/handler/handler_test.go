package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/service-monitor/internal/handler"
	"github.com/angeloszaimis/service-monitor/internal/instance"
	"github.com/angeloszaimis/service-monitor/internal/metrics"
)

type staticAssignment struct {
	groups    []string
	rebalance bool
}

func (a staticAssignment) AssignedGroups(int) []string { return a.groups }
func (a staticAssignment) NeedsRebalance() bool        { return a.rebalance }

type stopFlag struct {
	atomic.Bool
}

func (f *stopFlag) StopRequested() bool { return f.Load() }

type fixedBacklog int

func (b fixedBacklog) Pending() int { return int(b) }

type fixedPool int64

func (p fixedPool) Generations() int64 { return int64(p) }

var _ = Describe("StatusHandler", func() {
	var (
		m      *metrics.Metrics
		stop   *stopFlag
		routes http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	BeforeEach(func() {
		m = metrics.New()
		stop = &stopFlag{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		assignment := staticAssignment{groups: []string{"g1", "g2"}, rebalance: true}
		routes = handler.NewStatusHandler(logger, "node-a", m, assignment, stop, fixedBacklog(3), fixedPool(2)).Routes()
	})

	Describe("/status", func() {
		It("should describe the node", func() {
			m.RecordScan("g1", 2, 10*time.Millisecond)
			m.RecordTransition(instance.StatusChangeEvent{Key: "g1/10.0.0.1:80", Status: instance.StatusDown})

			rec := get("/status")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var body map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("node", "node-a"))
			Expect(body).To(HaveKeyWithValue("rebalancing", true))
			Expect(body).To(HaveKeyWithValue("stopping", false))
			Expect(body).To(HaveKeyWithValue("pending_updates", BeNumerically("==", 3)))
			Expect(body).To(HaveKeyWithValue("pool_generations", BeNumerically("==", 2)))
			Expect(body["assigned_groups"]).To(ConsistOf("g1", "g2"))
			Expect(body["metrics"]).To(HaveKey("groups"))
		})
	})

	Describe("/healthz", func() {
		It("should be healthy while running", func() {
			rec := get("/healthz")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("ok"))
		})

		It("should fail once stopping", func() {
			stop.Store(true)
			Expect(get("/healthz").Code).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("/metrics", func() {
		It("should expose the Prometheus series", func() {
			m.RecordProbe("g1/10.0.0.1:80", true)

			rec := get("/metrics")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`service_monitor_probes_total{result="reachable"} 1`))
		})
	})

	It("should serve the raw snapshot", func() {
		rec := get("/snapshot")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"instances"`))
	})

	It("should reject other methods", func() {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
		Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("should answer 404 for unknown paths", func() {
		Expect(get("/missing").Code).To(Equal(http.StatusNotFound))
	})
})
