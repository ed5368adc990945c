// Package server orchestrates all components: transport, Meteor endpoint, example implementations, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MeteorMsg/Meteor/internal/config"
	"github.com/MeteorMsg/Meteor/internal/mathfunctions"
	"github.com/MeteorMsg/Meteor/pkg/dispatcher"
	"github.com/MeteorMsg/Meteor/pkg/meteor"
	"github.com/MeteorMsg/Meteor/pkg/serializer"
	"github.com/MeteorMsg/Meteor/pkg/transport"
	"github.com/MeteorMsg/Meteor/pkg/transport/comms"
	"github.com/MeteorMsg/Meteor/pkg/transport/loopback"
	"github.com/MeteorMsg/Meteor/pkg/transport/mqtt"
	"github.com/MeteorMsg/Meteor/pkg/transport/pgnotify"
)

const logPrefix = "server:server"

// pinger is implemented by transports that can check their connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server is the Meteor host process.
type Server struct {
	cfg        *config.Config
	transport  transport.Transport
	m          *meteor.Meteor
	httpServer *http.Server
}

// SetupLogging installs the default slog text handler at level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// OpenTransport connects the transport selected by cfg.Transport.
func OpenTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportLoopback, "":
		return loopback.New(), nil
	case config.TransportNATS:
		t, err := comms.Dial(cfg.COMMSURL, cfg.COMMSName, cfg.Channel)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))
		return t, nil
	case config.TransportPostgres:
		t, err := pgnotify.Dial(ctx, cfg.DatabaseURL, cfg.Channel)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		return t, nil
	case config.TransportMQTT:
		t, err := mqtt.Dial(cfg.MQTTBroker, cfg.ClientID(), cfg.Channel)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to MQTT broker: %w", logPrefix, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%s - unknown transport %q", logPrefix, cfg.Transport)
	}
}

// MeteorOptions translates cfg into facade options. Every endpoint knows the
// MathFunctions service.
func MeteorOptions(cfg *config.Config) ([]meteor.Option, error) {
	s, err := serializer.ByName(cfg.Serializer)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	opts := []meteor.Option{
		meteor.WithSerializer(s),
		meteor.WithTimeout(cfg.InvocationTimeout),
		meteor.WithServices(mathfunctions.ServiceDesc),
	}
	if cfg.IgnoreUnknownProcedures {
		opts = append(opts, meteor.WithIgnoreUnknownProcedures())
	}
	return opts, nil
}

// New builds a Server over t and registers the example implementations in
// the default and Cooler namespaces. The server takes ownership of t.
func New(cfg *config.Config, t transport.Transport) (*Server, error) {
	opts, err := MeteorOptions(cfg)
	if err != nil {
		t.Close()
		return nil, err
	}
	m, err := meteor.New(t, opts...)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("%s - failed to create endpoint: %w", logPrefix, err)
	}

	for _, ns := range []string{"", mathfunctions.NamespaceCooler} {
		if _, err := m.RegisterImplementation(mathfunctions.Impl{}, ns); err != nil {
			m.Close()
			return nil, fmt.Errorf("%s - failed to register implementation: %w", logPrefix, err)
		}
	}
	return &Server{cfg: cfg, transport: t, m: m}, nil
}

// Meteor returns the server's endpoint.
func (s *Server) Meteor() *meteor.Meteor {
	return s.m
}

// Close shuts down the endpoint and its transport.
func (s *Server) Close() error {
	return s.m.Close()
}

// Shutdown stops the HTTP server, then closes the endpoint. Both steps run
// even when the first fails.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s - HTTP server shutdown: %w", logPrefix, err))
		}
	}
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Handler returns the HTTP mux for the home page, health, readiness and the procedure listing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/procedures", s.handleProcedures)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.m.Health()
	w.Header().Set("Content-Type", "application/json")
	if h.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.ready(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (s *Server) ready(ctx context.Context) error {
	if s.m.Health().Status != "ok" {
		return fmt.Errorf("endpoint closed")
	}
	p, ok := s.transport.(pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthCheckTimeout)
	defer cancel()
	return p.Ping(ctx)
}

func (s *Server) handleProcedures(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]dispatcher.Binding{"procedures": s.m.Procedures()})
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting meteor (transport=%s channel=%s serializer=%s)",
		logPrefix, cfg.Transport, cfg.Channel, cfg.Serializer))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t, err := OpenTransport(ctx, cfg)
	if err != nil {
		return err
	}
	s, err := New(cfg, t)
	if err != nil {
		return err
	}

	httpAddr := cfg.ListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.Handler()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Meteor is ready, %d procedures bound", logPrefix, len(s.m.Procedures())))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	if err := s.Shutdown(ctx); err != nil {
		slog.Warn(fmt.Sprintf("%s - shutdown: %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// homePageTemplate is the HTML for the endpoint home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Meteor</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-ok { color: #0066cc; font-weight: bold; }
    .status-closed { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Meteor</h1>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Transport: <span class="stat">{{.Transport}}</span> on channel <span class="stat">{{.Channel}}</span></p>
    <p>Serializer: <span class="stat">{{.Health.Checks.Serializer}}</span></p>
    <p>Pending invocations: <span class="stat">{{.Health.Checks.Pending}}</span></p>
    <p>Uptime: {{.Health.Checks.Uptime}}</p>
  </section>

  <section>
    <h2>Procedures</h2>
    {{if not .Procedures}}
    <p>No implementations registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Namespace</th><th>Interface</th><th>Methods</th></tr>
      </thead>
      <tbody>
        {{range .Procedures}}
        <tr>
          <td>{{.Namespace}}</td>
          <td>{{.Interface}}</td>
          <td>{{range .Methods}}{{.}} {{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health     *meteor.HealthOutput
	Transport  string
	Channel    string
	Procedures []dispatcher.Binding
}

// handleHome returns an HTTP handler for the home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := homeData{
			Health:     s.m.Health(),
			Transport:  s.cfg.Transport,
			Channel:    s.cfg.Channel,
			Procedures: s.m.Procedures(),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
