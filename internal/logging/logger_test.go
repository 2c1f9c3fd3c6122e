package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLogging(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Logging Suite")
}

var _ = Describe("Logger", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
	})

	It("writes JSON with the service attribute by default", func() {
		newLogger(buf, "inspectdiff", "info", "").Info("hello", "k", 1)

		var entry map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
		Expect(entry).To(HaveKeyWithValue("msg", "hello"))
		Expect(entry).To(HaveKeyWithValue("service", "inspectdiff"))
	})

	It("writes text when asked", func() {
		newLogger(buf, "inspectdiff", "info", "TEXT").Info("hello")
		Expect(buf.String()).To(ContainSubstring("msg=hello"))
		Expect(buf.String()).To(ContainSubstring("service=inspectdiff"))
	})

	It("drops entries below the level", func() {
		logger := newLogger(buf, "inspectdiff", "warn", "json")
		logger.Info("quiet")
		Expect(buf.Len()).To(BeZero())
		logger.Warn("loud")
		Expect(buf.String()).To(ContainSubstring("loud"))
	})

	DescribeTable("parseLevel",
		func(in string, want slog.Level) {
			Expect(parseLevel(in)).To(Equal(want))
		},
		Entry("debug", " DEBUG ", slog.LevelDebug),
		Entry("warning", "warning", slog.LevelWarn),
		Entry("error", "error", slog.LevelError),
		Entry("unknown falls back to info", "chatty", slog.LevelInfo),
	)
})
