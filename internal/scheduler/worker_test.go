package scheduler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/service-monitor/internal/metrics"
	"github.com/angeloszaimis/service-monitor/internal/scheduler"
)

var _ = Describe("Worker", func() {
	var (
		mock      *clock.Mock
		scans     *recordingScanner
		stop      *flag
		rebalance *flag
		logger    *slog.Logger
	)

	newPool := func(groups, size int) (*scheduler.SlotTable, []*scheduler.Worker) {
		workers := size
		if groups < workers {
			workers = groups
		}
		table := scheduler.NewSlotTable(groupIDs(groups), workers)
		pool := make([]*scheduler.Worker, workers)
		for i := range pool {
			pool[i] = scheduler.NewWorker(i, table, scans, stop, rebalance, scheduler.Options{
				Interval: time.Second,
				PoolSize: size,
				Clock:    mock,
			}, logger)
		}
		return table, pool
	}

	BeforeEach(func() {
		mock = clock.NewMock()
		scans = &recordingScanner{}
		stop = &flag{}
		rebalance = &flag{}
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	})

	Describe("RunPass", func() {
		DescribeTable("should cover every group after ceil(M/N) cycles",
			func(groups, size int) {
				table, pool := newPool(groups, size)
				cycles := (groups + size - 1) / size

				for c := 0; c < cycles; c++ {
					for _, w := range pool {
						w.RunPass(context.Background())
					}
					Expect(table.OccupiedCount()).To(BeNumerically("<=", size))
				}

				Expect(scans.Scanned()).To(ContainElements(groupIDs(groups)))
			},
			Entry("5 groups on 2 workers", 5, 2),
			Entry("7 groups on 3 workers", 7, 3),
			Entry("4 groups on 1 worker", 4, 1),
			Entry("6 groups on 2 workers", 6, 2),
		)

		It("should keep the slot when the pool holds every group", func() {
			_, pool := newPool(3, 4)
			Expect(pool).To(HaveLen(3))

			for i := 0; i < 20; i++ {
				for w, worker := range pool {
					worker.RunPass(context.Background())
					Expect(worker.Slot()).To(Equal(w))
				}
			}
			Expect(scans.Scanned()).To(HaveLen(60))
		})

		It("should keep the slot when the group count equals the pool size", func() {
			_, pool := newPool(2, 2)
			for i := 0; i < 5; i++ {
				pool[1].RunPass(context.Background())
				Expect(pool[1].Slot()).To(Equal(1))
			}
		})

		It("should not rotate once a rebalance is requested", func() {
			_, pool := newPool(4, 2)
			scans.onScan = func(string) { rebalance.Store(true) }

			pool[0].RunPass(context.Background())
			Expect(pool[0].Slot()).To(Equal(0))
		})

		It("should log each pass at info level with its slot and group", func() {
			logs := &bytes.Buffer{}
			logger = slog.New(slog.NewTextHandler(logs, nil))
			_, pool := newPool(2, 2)

			pool[1].RunPass(context.Background())

			Expect(logs.String()).To(ContainSubstring(`msg="Running pass"`))
			Expect(logs.String()).To(ContainSubstring("worker=1"))
			Expect(logs.String()).To(ContainSubstring("slot=1"))
			Expect(logs.String()).To(ContainSubstring("group=" + groupIDs(2)[1]))
		})

		It("should skip the pass without groups", func() {
			table := scheduler.NewSlotTable(nil, 0)
			w := scheduler.NewWorker(0, table, scans, stop, rebalance, scheduler.Options{Clock: mock}, logger)

			w.RunPass(context.Background())
			Expect(scans.Scanned()).To(BeEmpty())
		})
	})

	Describe("Run", func() {
		var (
			ctx    context.Context
			cancel context.CancelFunc
			done   chan struct{}
			m      *metrics.Metrics
		)

		start := func(w *scheduler.Worker) {
			done = make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				Expect(w.Run(ctx)).To(Succeed())
			}()
		}

		tick := func() bool {
			mock.Add(time.Second)
			select {
			case <-done:
				return true
			default:
				return false
			}
		}

		BeforeEach(func() {
			ctx, cancel = context.WithCancel(context.Background())
			m = metrics.New()
		})

		AfterEach(func() {
			cancel()
		})

		newWorker := func() *scheduler.Worker {
			table := scheduler.NewSlotTable([]string{"g0"}, 1)
			return scheduler.NewWorker(0, table, scans, stop, rebalance, scheduler.Options{
				Interval: time.Second,
				PoolSize: 1,
				Clock:    mock,
				Metrics:  m,
			}, logger)
		}

		It("should scan its group once per tick", func() {
			start(newWorker())

			Eventually(func() int {
				mock.Add(time.Second)
				return len(scans.Scanned())
			}).Should(BeNumerically(">=", 3))
			Expect(scans.Scanned()).To(HaveEach("g0"))
			Expect(m.Snapshot().Workers).To(Equal(1))
		})

		It("should return when the context is cancelled", func() {
			start(newWorker())
			cancel()

			Eventually(done).Should(BeClosed())
			Expect(m.Snapshot().Workers).To(BeZero())
		})

		It("should exit on a stop request", func() {
			start(newWorker())
			stop.Store(true)

			Eventually(tick).Should(BeTrue())
		})

		It("should exit on a rebalance request", func() {
			start(newWorker())
			rebalance.Store(true)

			Eventually(tick).Should(BeTrue())
		})

		It("should not scan when stopped before the first tick", func() {
			stop.Store(true)
			start(newWorker())

			Eventually(done).Should(BeClosed())
			Expect(scans.Scanned()).To(BeEmpty())
		})
	})
})
