package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tgcommands/pkg/assistant"
	"tgcommands/pkg/bus"
	"tgcommands/pkg/channel"
	"tgcommands/pkg/command"
	"tgcommands/pkg/config"
	"tgcommands/pkg/handlers"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	healthCheckInterval = 30 * time.Second
	maxSweepInterval    = time.Minute
)

type healthChecker interface {
	Health(ctx context.Context) error
}

// Service runs channel adapters, feeds their updates through the inbound
// queue to a pool of router workers, and serves status endpoints.
type Service struct {
	cfg       *config.Config
	log       *slog.Logger
	bus       *bus.MessageBus
	router    *command.Router
	assistant healthChecker
	channels  []channel.Adapter

	mu                sync.RWMutex
	startedAt         time.Time
	assistantLastOKAt time.Time
	assistantLastErr  string
	channelStates     map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status              string                  `json:"status"`
	UptimeSeconds       int64                   `json:"uptime_seconds"`
	RoutingEnabled      bool                    `json:"routing_enabled"`
	PendingCorrelations int                     `json:"pending_correlations"`
	QueuedUpdates       int                     `json:"queued_updates"`
	AssistantLastOKAt   string                  `json:"assistant_last_ok_at,omitempty"`
	AssistantLastErr    string                  `json:"assistant_last_error,omitempty"`
	Channels            map[string]channelState `json:"channels"`
}

type commandsResponse struct {
	RoutingEnabled bool                 `json:"routing_enabled"`
	Commands       []command.Descriptor `json:"commands"`
}

// NewService wires the router, bus and adapters. asst may be nil when no
// assistant is configured.
func NewService(cfg *config.Config, adapters []channel.Adapter, asst *assistant.Assistant, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	messageBus := bus.NewMessageBusSize(cfg.Router.InboundQueueSize())

	svc := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           messageBus,
		channels:      adapters,
		channelStates: make(map[string]channelState, len(adapters)),
	}

	var asker handlers.Asker
	if asst != nil {
		asker = asst
		svc.assistant = asst
	}

	router, err := NewRouter(cfg.Router, messageBus, asker, log)
	if err != nil {
		return nil, err
	}
	svc.router = router

	for _, adapter := range adapters {
		svc.channelStates[adapter.Name()] = channelState{}
	}

	return svc, nil
}

// Router exposes the service router, mainly for tests and tooling.
func (s *Service) Router() *command.Router { return s.router }

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if s.assistant != nil {
		if err := s.checkAssistantHealth(ctx); err != nil {
			s.log.Warn("Assistant not reachable, /ask will fail until it recovers", "error", err)
		}
		go s.runHealthChecks(ctx)
	}

	unsubscribe := s.bus.Listen(ctx, s.cfg.Router.EventBufferSize(), s.logEvent)
	defer unsubscribe()

	if ttl := s.cfg.Router.CorrelationTTL(); ttl > 0 {
		go s.runSweeper(ctx, ttl)
	}

	var workers sync.WaitGroup
	for i := 0; i < s.cfg.Router.WorkerCount(); i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.runWorker(ctx)
		}()
	}
	defer func() {
		cancel()
		s.bus.Close()
		workers.Wait()
	}()

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	s.log.Info("Gateway running", "workers", s.cfg.Router.WorkerCount(), "routing_enabled", s.router.Registry().Enabled())

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// handleInbound is the channel.Handler given to every adapter.
func (s *Service) handleInbound(ctx context.Context, update bus.Update) error {
	if update.Transport == nil {
		return errors.New("update has no transport")
	}
	if !s.bus.PublishInbound(ctx, update) {
		return errors.New("inbound queue closed")
	}
	return nil
}

func (s *Service) runWorker(ctx context.Context) {
	for {
		update, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		handled := s.router.Process(ctx, update)
		s.log.Debug("Processed update", "channel", update.Channel, "chat_id", update.ChatID(), "handled", handled)
	}
}

func (s *Service) logEvent(event bus.Event) {
	attrs := []any{"type", string(event.Type), "channel", event.Channel, "chat_id", event.ChatID}
	if event.Command != "" {
		attrs = append(attrs, "command", event.Command)
	}
	if id := event.Payload[bus.PayloadMessageID]; id != "" {
		attrs = append(attrs, "message_id", id)
	}

	if event.Error != "" {
		s.log.Warn("Router notification", append(attrs, "error", event.Error)...)
		return
	}
	s.log.Info("Router notification", attrs...)
}

// runSweeper drops correlations that have waited longer than ttl.
func (s *Service) runSweeper(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(sweepInterval(ttl))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.router.Tracker().Sweep(now.Add(-ttl)); removed > 0 {
				s.log.Info("Expired pending correlations", "removed", removed, "ttl", ttl.String())
			}
		}
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < maxSweepInterval {
		return ttl
	}
	return maxSweepInterval
}

func (s *Service) runHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.checkAssistantHealth(ctx)
		}
	}
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.statusMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) statusMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /commands", s.handleCommands)
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.writeJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) handleCommands(w http.ResponseWriter, _ *http.Request) {
	registry := s.router.Registry()
	s.writeJSON(w, http.StatusOK, commandsResponse{
		RoutingEnabled: registry.Enabled(),
		Commands:       registry.Commands(),
	})
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	assistantLastOK := ""
	if !s.assistantLastOKAt.IsZero() {
		assistantLastOK = s.assistantLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:              status,
		UptimeSeconds:       uptime,
		RoutingEnabled:      s.router.Registry().Enabled(),
		PendingCorrelations: s.router.Tracker().Len(),
		QueuedUpdates:       s.bus.Pending(),
		AssistantLastOKAt:   assistantLastOK,
		AssistantLastErr:    s.assistantLastErr,
		Channels:            channels,
	}
}

// isReady requires a running channel and, when an assistant is configured,
// a healthy assistant.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}
	if !anyRunning {
		return false
	}

	if s.assistant == nil {
		return true
	}

	return !s.assistantLastOKAt.IsZero() && s.assistantLastErr == ""
}

func (s *Service) checkAssistantHealth(ctx context.Context) error {
	if err := s.assistant.Health(ctx); err != nil {
		s.mu.Lock()
		s.assistantLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("assistant health check failed: %w", err)
	}

	s.mu.Lock()
	s.assistantLastErr = ""
	s.assistantLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
