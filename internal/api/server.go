package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/machineid-io/machineid-core/internal/admission"
	"github.com/machineid-io/machineid-core/internal/audit"
	"github.com/machineid-io/machineid-core/internal/device"
	"github.com/machineid-io/machineid-core/internal/infrastructure/config"
	"github.com/machineid-io/machineid-core/internal/infrastructure/database"
	"github.com/machineid-io/machineid-core/internal/infrastructure/influxdb"
	"github.com/machineid-io/machineid-core/internal/infrastructure/logging"
	"github.com/machineid-io/machineid-core/internal/infrastructure/mqtt"
	"github.com/machineid-io/machineid-core/internal/org"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests before dropping connections.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	DB        *database.DB
	Orgs      org.Repository
	Devices   device.Repository
	Decisions audit.Repository
	Admission *admission.Service
	MQTT      *mqtt.Client     // optional: decision publishing continues without it
	Influx    *influxdb.Client // optional: decision points continue without it
	Version   string
}

// Server is the HTTP API server for MachineID Core. It owns the
// listener, routes and middleware; create with New, start with Start.
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	db        *database.DB
	orgs      org.Repository
	devices   device.Repository
	decisions audit.Repository
	admission *admission.Service
	mqtt      *mqtt.Client
	influx    *influxdb.Client
	version   string
	server    *http.Server
	limiters  *orgLimiters // nil when rate limiting is disabled
	startTime time.Time
}

// New wires a server from its dependencies without starting it.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	// MQTT and InfluxDB are absent from this list on purpose: the
	// gate answers without them.
	required := []struct {
		present bool
		name    string
	}{
		{deps.Logger != nil, "logger"},
		{deps.Orgs != nil, "organisation repository"},
		{deps.Devices != nil, "device repository"},
		{deps.Decisions != nil, "decision repository"},
		{deps.Admission != nil, "admission service"},
	}
	for _, dep := range required {
		if !dep.present {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	s := &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		db:        deps.DB,
		orgs:      deps.Orgs,
		devices:   deps.Devices,
		decisions: deps.Decisions,
		admission: deps.Admission,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		version:   deps.Version,
		startTime: time.Now(),
	}

	if deps.Security.RateLimit.Enabled {
		s.limiters = newOrgLimiters(
			deps.Security.RateLimit.RequestsPerMinute,
			deps.Security.RateLimit.Burst,
		)
	}

	return s, nil
}

// Start builds the router and launches the listener in a background
// goroutine. Stop with Close. Binding errors surface in the log, not
// here; the listener has not run yet when Start returns.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go s.listen()

	return nil
}

// listen blocks in ListenAndServe until shutdown. ErrServerClosed is
// the normal exit after Close.
func (s *Server) listen() {
	var err error
	if s.cfg.TLS.Enabled {
		s.logger.Info("API server starting with TLS",
			"address", s.server.Addr,
			"cert", s.cfg.TLS.CertFile,
		)
		err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		s.logger.Info("API server starting", "address", s.server.Addr)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server error", "error", err)
	}
}

// Close drains in-flight requests for up to gracefulShutdownTimeout,
// then forcefully closes whatever remains.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
