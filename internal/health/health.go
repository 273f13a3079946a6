package health

import (
	"context"
	"net/http"
	"time"

	"go-chatbot/internal/response"
)

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

type Response struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Service   string           `json:"service"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// Handler runs every probe on each request.
type Handler struct {
	service string
	probes  map[string]Probe
	info    map[string]func() string
	timeout time.Duration
}

func NewHandler(service string) *Handler {
	return &Handler{
		service: service,
		probes:  map[string]Probe{},
		info:    map[string]func() string{},
		timeout: 3 * time.Second,
	}
}

// With adds a probe that can fail the health check.
func (h *Handler) With(name string, p Probe) *Handler {
	h.probes[name] = p
	return h
}

// Info adds an always-passing entry whose message is computed per request.
func (h *Handler) Info(name string, fn func() string) *Handler {
	h.info[name] = fn
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]Check, len(h.probes)+len(h.info))
	allHealthy := true
	for name, probe := range h.probes {
		start := time.Now()
		if err := probe(ctx); err != nil {
			checks[name] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
			continue
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}
	for name, fn := range h.info {
		checks[name] = Check{Status: "pass", Message: fn()}
	}

	status, code := "healthy", http.StatusOK
	if !allHealthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	response.JSON(w, code, Response{
		Status:    status,
		Service:   h.service,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
