package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/service-monitor/pkg/logger"
)

var _ = Describe("Logger", func() {
	var out *bytes.Buffer

	BeforeEach(func() {
		out = &bytes.Buffer{}
	})

	Describe("New", func() {
		It("should write text records outside prod", func() {
			log := logger.New(logger.Options{Level: "info", Environment: "dev", Output: out})
			log.Info("Checked service", slog.String("instance", "g1/10.0.0.1:80"))

			Expect(out.String()).To(ContainSubstring(`msg="Checked service"`))
			Expect(out.String()).To(ContainSubstring("environment=dev"))
			Expect(out.String()).To(ContainSubstring("instance=g1/10.0.0.1:80"))
		})

		It("should write JSON records in prod", func() {
			log := logger.New(logger.Options{Level: "info", Environment: "prod", Output: out})
			log.Warn("Cannot read instance")

			var record map[string]any
			Expect(json.Unmarshal(out.Bytes(), &record)).To(Succeed())
			Expect(record).To(HaveKeyWithValue("msg", "Cannot read instance"))
			Expect(record).To(HaveKeyWithValue("level", "WARN"))
			Expect(record).To(HaveKeyWithValue("environment", "prod"))
		})

		It("should add the source location when asked", func() {
			log := logger.New(logger.Options{AddSource: true, Environment: "dev", Output: out})
			log.Info("hello")

			Expect(out.String()).To(ContainSubstring("source="))
		})

		It("should default to info", func() {
			log := logger.New(logger.Options{Output: out})

			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())
		})

		It("should drop records below the level", func() {
			log := logger.New(logger.Options{Level: "error", Environment: "dev", Output: out})
			log.Warn("ignored")

			Expect(out.Len()).To(BeZero())
		})
	})

	DescribeTable("ParseLevel",
		func(name string, level slog.Level) {
			Expect(logger.ParseLevel(name)).To(Equal(level))
		},
		Entry("debug", "debug", slog.LevelDebug),
		Entry("info", "info", slog.LevelInfo),
		Entry("warn", "warn", slog.LevelWarn),
		Entry("error", "error", slog.LevelError),
		Entry("upper case", "DEBUG", slog.LevelDebug),
		Entry("unknown", "verbose", slog.LevelInfo),
	)

	It("should discard everything", func() {
		log := logger.Discard()
		Expect(log).NotTo(BeNil())
		log.Error("nothing")
	})
})
