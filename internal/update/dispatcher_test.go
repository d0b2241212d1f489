package update_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/service-monitor/internal/instance"
	"github.com/angeloszaimis/service-monitor/internal/metrics"
	"github.com/angeloszaimis/service-monitor/internal/registry"
	"github.com/angeloszaimis/service-monitor/internal/update"
)

// recordingWriter records writes and fails the first failures calls.
type recordingWriter struct {
	mutex    sync.Mutex
	writes   []instance.StatusChangeEvent
	failures int
	calls    int
	missing  map[string]bool
}

func (w *recordingWriter) UpdateStatus(_ context.Context, key string, status instance.Status) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.calls++
	if w.missing[key] {
		return registry.ErrNotFound
	}
	if w.failures > 0 {
		w.failures--
		return errors.New("registry unavailable")
	}
	w.writes = append(w.writes, instance.StatusChangeEvent{Key: key, Status: status})
	return nil
}

func (w *recordingWriter) Writes() []instance.StatusChangeEvent {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return append([]instance.StatusChangeEvent(nil), w.writes...)
}

func (w *recordingWriter) Calls() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.calls
}

var _ = Describe("Dispatcher", func() {
	var (
		writer *recordingWriter
		d      *update.Dispatcher
		m      *metrics.Metrics
		ctx    context.Context
		cancel context.CancelFunc
		log    *slog.Logger
		opts   update.Options
	)

	BeforeEach(func() {
		writer = &recordingWriter{missing: map[string]bool{}}
		m = metrics.New()
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
		opts = update.Options{
			MaxAttempts:      2,
			InitialInterval:  time.Millisecond,
			MaxInterval:      5 * time.Millisecond,
			BreakerThreshold: 2,
			BreakerTimeout:   20 * time.Millisecond,
			Metrics:          m,
		}
	})

	AfterEach(func() {
		cancel()
	})

	JustBeforeEach(func() {
		d = update.NewDispatcher(writer, opts, log)
	})

	It("should not block Submit when the loop is not running", func() {
		for i := 0; i < 1000; i++ {
			d.Submit(instance.StatusChangeEvent{Key: "g1/a", Status: instance.StatusDown})
		}
		Expect(d.Pending()).To(Equal(1000))
		Expect(m.Snapshot().PendingUpdates).To(Equal(1000))
	})

	It("should deliver events in submission order", func() {
		d.Start(ctx)
		d.Submit(instance.StatusChangeEvent{Key: "g1/a", Status: instance.StatusDown})
		d.Submit(instance.StatusChangeEvent{Key: "g1/b", Status: instance.StatusUp})
		d.Submit(instance.StatusChangeEvent{Key: "g1/a", Status: instance.StatusUp})

		Eventually(writer.Writes).Should(Equal([]instance.StatusChangeEvent{
			{Key: "g1/a", Status: instance.StatusDown},
			{Key: "g1/b", Status: instance.StatusUp},
			{Key: "g1/a", Status: instance.StatusUp},
		}))
		Eventually(d.Pending).Should(BeZero())
		Expect(m.Snapshot().PendingUpdates).To(BeZero())
	})

	Context("when the registry fails transiently", func() {
		BeforeEach(func() {
			writer.failures = 1
		})

		It("should retry and deliver", func() {
			d.Start(ctx)
			d.Submit(instance.StatusChangeEvent{Key: "g1/a", Status: instance.StatusDown})

			Eventually(writer.Writes).Should(HaveLen(1))
			Expect(writer.Calls()).To(Equal(2))
		})
	})

	Context("when the registry keeps failing", func() {
		BeforeEach(func() {
			writer.failures = 6
		})

		It("should keep the event queued until the registry recovers", func() {
			d.Start(ctx)
			d.Submit(instance.StatusChangeEvent{Key: "g1/a", Status: instance.StatusDown})

			Eventually(writer.Writes, time.Second).Should(HaveLen(1))
			Expect(writer.Calls()).To(Equal(7))
			Expect(d.Pending()).To(BeZero())
		})
	})

	Context("when the instance disappeared", func() {
		BeforeEach(func() {
			writer.missing["g1/gone"] = true
		})

		It("should drop the event without retrying", func() {
			d.Start(ctx)
			d.Submit(instance.StatusChangeEvent{Key: "g1/gone", Status: instance.StatusDown})
			d.Submit(instance.StatusChangeEvent{Key: "g1/a", Status: instance.StatusDown})

			Eventually(writer.Writes).Should(HaveLen(1))
			Expect(writer.Writes()[0].Key).To(Equal("g1/a"))
			Expect(writer.Calls()).To(Equal(2))
		})
	})

	It("should drain queued events on shutdown", func() {
		for i := 0; i < 5; i++ {
			d.Submit(instance.StatusChangeEvent{Key: "g1/a", Status: instance.StatusDown})
		}
		cancel()
		d.Start(ctx)

		Eventually(d.Done()).Should(BeClosed())
		Expect(writer.Writes()).To(HaveLen(5))
		Expect(d.Pending()).To(BeZero())
	})
})
