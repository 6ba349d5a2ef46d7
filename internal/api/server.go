package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/inventory-core/internal/infrastructure/config"
	"github.com/nerrad567/inventory-core/internal/infrastructure/logging"
	"github.com/nerrad567/inventory-core/internal/inventory"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Ingester accepts check-ins. *inventory.Service implements it.
type Ingester interface {
	Ingest(ctx context.Context, c inventory.CheckIn) (inventory.Receipt, error)
}

// DeviceReader serves the recorded inventory. *inventory.Reader implements it.
type DeviceReader interface {
	ListDevices(ctx context.Context) ([]inventory.DeviceState, error)
	GetDevice(ctx context.Context, serial string) (*inventory.DeviceState, error)
	History(ctx context.Context, serial string) ([]inventory.HistoryRecord, error)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionReporter reports the link state of an optional broker or store.
type ConnectionReporter interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.ServerConfig
	Logger   *logging.Logger
	Ingester Ingester
	Reader   DeviceReader
	Database HealthChecker
	MQTT     ConnectionReporter // optional
	InfluxDB ConnectionReporter // optional
	Version  string
}

// Server is the HTTP API server for the inventory.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.ServerConfig
	logger   *logging.Logger
	ingester Ingester
	reader   DeviceReader
	database HealthChecker
	mqtt     ConnectionReporter
	influx   ConnectionReporter
	version  string
	server   *http.Server
	errCh    chan error
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, ingester, reader, database)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	if deps.Reader == nil {
		return nil, fmt.Errorf("device reader is required")
	}
	if deps.Database == nil {
		return nil, fmt.Errorf("database health checker is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		ingester: deps.Ingester,
		reader:   deps.Reader,
		database: deps.Database,
		mqtt:     deps.MQTT,
		influx:   deps.InfluxDB,
		version:  deps.Version,
		errCh:    make(chan error, 1),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Binding happens before Start returns, so a port already in use is
// reported here. Later serve failures are delivered on Err().
//
// Parameters:
//   - ctx: Context for the listen call
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Addr()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled() {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
			s.errCh <- err
		}
	}()

	return nil
}

// Err delivers a fatal serve error. It never fires after a clean Close.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. A check-in whose
// transaction has already committed stays committed.
//
// Returns:
//   - error: If shutdown encounters an error
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
