// Package httpapi exposes the agent over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/xlog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "httpapi")

// ThreadIDHeader selects the conversation thread.
const ThreadIDHeader = "X-Thread-ID"

// MaxBodySize is the limit of the request body.
const MaxBodySize = 1 << 20

// Answerer answers a user message on a thread.
type Answerer interface {
	Answer(ctx context.Context, message, threadID string) *agent.Result
}

// Request is the JSON form of the request body.
type Request struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Response is the envelope of the answer.
type Response struct {
	Result *agent.Result `json:"result"`
}

// ErrorResponse is returned for requests that can not be decoded.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the HTTP shell of the agent.
type Server struct {
	agent    Answerer
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New returns the server for the agent.
func New(a Answerer) *Server {
	s := &Server{
		agent:    a,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolagent_http_requests_total",
				Help: "Total HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolagent_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"route", "method"},
		),
	}
	s.registry.MustRegister(
		s.requests,
		s.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

// Registry returns the Prometheus registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Post("/", s.answer)
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		s.requests.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		s.duration.WithLabelValues(route, r.Method).Observe(time.Since(started).Seconds())
	})
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		logger.ContextKV(r.Context(), xlog.DEBUG, "reason", "decode", "err", err.Error())
		writeJSON(w, http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	res := s.agent.Answer(r.Context(), req.Message, req.ThreadID)
	if res.ThreadID != "" {
		w.Header().Set(ThreadIDHeader, res.ThreadID)
	}
	writeJSON(w, http.StatusOK, &Response{Result: res})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

// decodeRequest reads the message from the raw body, or from the JSON body
// when the content type is application/json.
// The thread is taken from the body, the header, or the thread_id query parameter.
func decodeRequest(w http.ResponseWriter, r *http.Request) (*Request, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		return nil, err
	}

	req := new(Request)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, req); err != nil {
			return nil, err
		}
	} else {
		req.Message = string(body)
	}

	if req.ThreadID == "" {
		req.ThreadID = r.Header.Get(ThreadIDHeader)
	}
	if req.ThreadID == "" {
		req.ThreadID = r.URL.Query().Get("thread_id")
	}
	req.Message = strings.TrimSpace(req.Message)
	return req, nil
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.KV(xlog.ERROR, "reason", "encode", "err", err.Error())
	}
}
