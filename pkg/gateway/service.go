package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"tradebot/pkg/config"
	"tradebot/pkg/dispatch"
	"tradebot/pkg/lifecycle"
	"tradebot/pkg/transport"
	"tradebot/pkg/webhook"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 8080

	shutdownTimeout = 15 * time.Second
)

// HandlerSource builds the handler set once the transport client exists.
type HandlerSource func(client transport.Client) ([]dispatch.Descriptor, error)

// Service hosts the bot: it serves health and status endpoints plus the
// webhook route, and walks the lifecycle manager from Initialize to Shutdown.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	manager  *lifecycle.Manager
	handlers HandlerSource

	echo     *echo.Echo
	receiver *webhook.Receiver

	mu        sync.RWMutex
	startedAt time.Time
	addr      string
}

type statusResponse struct {
	Status        string             `json:"status"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Bot           lifecycle.Snapshot `json:"bot"`
	Handlers      []string           `json:"handlers,omitempty"`
}

func NewService(cfg *config.Config, manager *lifecycle.Manager, handlers HandlerSource, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if manager == nil {
		return nil, errors.New("lifecycle manager is required")
	}
	if handlers == nil {
		return nil, errors.New("handler source is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:      cfg,
		log:      log.With("component", "gateway.service"),
		manager:  manager,
		handlers: handlers,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET("/healthz", s.handleHealth)
	e.GET("/readyz", s.handleReady)
	e.GET("/status", s.handleStatus)

	if !cfg.Telegram.UsePolling() {
		s.receiver = webhook.NewReceiver(manager.Webhook(), manager.Deliver, log)
		s.receiver.Register(e)
	}

	s.echo = e
	return s, nil
}

// Handler returns the HTTP handler serving every gateway route.
func (s *Service) Handler() http.Handler {
	return s.echo
}

// Addr returns the bound listen address once Run is serving.
func (s *Service) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Run brings the bot up, serves until ctx ends or the server fails, then
// stops and shuts the bot down.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize bot: %w", err)
	}

	descs, err := s.handlers(s.manager.Client())
	if err != nil {
		s.closeClient()
		return fmt.Errorf("build handlers: %w", err)
	}
	if err := s.manager.RegisterHandlers(descs...); err != nil {
		s.closeClient()
		return err
	}

	listener, err := net.Listen("tcp", s.listenAddr())
	if err != nil {
		s.closeClient()
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("Gateway server started", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("serve gateway: %w", err)
		}
	}()

	if err := s.manager.Start(ctx); err != nil {
		s.shutdownServer(server)
		s.closeClient()
		return fmt.Errorf("start bot: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info("Shutdown signal received")
	case runErr = <-serverErrors:
		s.log.Error("Gateway server failed", "error", runErr)
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := s.manager.Stop(stopCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	s.shutdownServer(server)
	if err := s.manager.Shutdown(stopCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}

	return runErr
}

func (s *Service) listenAddr() string {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultPort
	}

	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (s *Service) shutdownServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		s.log.Warn("Gateway server shutdown failed", "error", err)
	}
}

// closeClient releases a client built by Initialize when the bot never started.
func (s *Service) closeClient() {
	client := s.manager.Client()
	if client == nil {
		return
	}
	if err := client.Close(context.Background()); err != nil {
		s.log.Warn("Failed to close transport client", "error", err)
	}
}

func (s *Service) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.currentStatus("ok", false))
}

func (s *Service) handleReady(c echo.Context) error {
	if s.manager.State() != lifecycle.Started {
		return c.JSON(http.StatusServiceUnavailable, s.currentStatus("not_ready", false))
	}
	return c.JSON(http.StatusOK, s.currentStatus("ready", false))
}

func (s *Service) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.currentStatus(s.manager.State().String(), true))
}

func (s *Service) currentStatus(status string, verbose bool) statusResponse {
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	uptime := int64(0)
	if !startedAt.IsZero() {
		uptime = int64(time.Since(startedAt).Seconds())
	}

	resp := statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Bot:           s.manager.Snapshot(),
	}
	if verbose {
		resp.Handlers = s.manager.Handlers()
	}

	return resp
}
