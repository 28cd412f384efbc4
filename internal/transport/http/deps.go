package http

import (
	"github.com/go-auth-otp/internal/application/session"
	"github.com/go-auth-otp/internal/transport/http/handler"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps holds the application services the router exposes.
type Deps struct {
	Sessions session.Service
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
	// Probes back /v1/health-check/ready.
	Probes []handler.Probe
}
