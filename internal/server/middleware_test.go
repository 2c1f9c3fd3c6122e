package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("accessLogMiddleware", func() {
	var (
		buf     *bytes.Buffer
		handler http.Handler
		entry   map[string]any
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		slog.SetDefault(slog.New(slog.NewJSONHandler(buf, nil)))
		DeferCleanup(func() {
			slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		})
	})

	JustBeforeEach(func() {
		req := httptest.NewRequest(http.MethodGet, "/api/inspections/abc/images", nil)
		req.Header.Set(requestIDHeader, "req-7")
		requestIDMiddleware(accessLogMiddleware(handler)).ServeHTTP(httptest.NewRecorder(), req)

		entry = map[string]any{}
		Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
	})

	When("the handler writes a client error", func() {
		BeforeEach(func() {
			handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSONError(w, "Inspection not found", http.StatusNotFound)
			})
		})

		It("logs the request at warn with its status and size", func() {
			Expect(entry).To(HaveKeyWithValue("level", "WARN"))
			Expect(entry).To(HaveKeyWithValue("msg", "http_request"))
			Expect(entry).To(HaveKeyWithValue("request_id", "req-7"))
			Expect(entry).To(HaveKeyWithValue("status", BeNumerically("==", http.StatusNotFound)))
			Expect(entry).To(HaveKeyWithValue("bytes", BeNumerically("==", len(`{"error":"Inspection not found"}`+"\n"))))
			Expect(entry).To(HaveKeyWithValue("path", "/api/inspections/abc/images"))
		})
	})

	When("the handler never sets a status", func() {
		BeforeEach(func() {
			handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("ok"))
			})
		})

		It("logs a 200 at info", func() {
			Expect(entry).To(HaveKeyWithValue("level", "INFO"))
			Expect(entry).To(HaveKeyWithValue("status", BeNumerically("==", http.StatusOK)))
			Expect(entry).To(HaveKeyWithValue("bytes", BeNumerically("==", 2)))
		})
	})

	When("the handler fails", func() {
		BeforeEach(func() {
			handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSONError(w, "Internal server error", http.StatusInternalServerError)
			})
		})

		It("logs at error", func() {
			Expect(entry).To(HaveKeyWithValue("level", "ERROR"))
		})
	})
})
