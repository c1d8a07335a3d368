// Package server exposes the event handler over HTTP, both as an Event
// Grid webhook and as an Azure Functions custom handler.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cpacket/appliance-registrar/cloud"
	"github.com/cpacket/appliance-registrar/handler"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	EventsPath  = "/api/events"
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"

	subscriptionValidationEvent = "Microsoft.EventGrid.SubscriptionValidationEvent"
	// eventBinding is the trigger binding name in function.json.
	eventBinding = "event"

	// MaxLockWait keeps a queued pass inside Event Grid's 30 second
	// delivery timeout, so waiting on another pass does not cause a
	// redelivery by itself.
	MaxLockWait = 20 * time.Second

	maxBodyBytes      = 1 << 20
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// EventHandler runs a pass for one event. *handler.Handler implements it.
type EventHandler interface {
	Handle(ctx context.Context, ev cloud.ScalingEvent) (*handler.Outcome, error)
}

type Server struct {
	router       *mux.Router
	events       EventHandler
	functionName string
	logger       *zap.Logger
}

// New builds the router. functionName is the route the Functions host
// invokes, the function's directory name.
func New(events EventHandler, functionName string, logger *zap.Logger) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		events:       events,
		functionName: functionName,
		logger:       logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(withLatency)
	s.router.HandleFunc(HealthPath, s.health).Methods(http.MethodGet)
	s.router.Handle(MetricsPath, promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc(EventsPath, s.eventGridWebhook).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/"+s.functionName, s.customHandler).Methods(http.MethodPost)
}

// LockWait bounds how long a served pass waits for another pass on the
// same controller. Zero, meaning no bound, is also capped.
func LockWait(configured time.Duration) time.Duration {
	if configured <= 0 || configured > MaxLockWait {
		return MaxLockWait
	}
	return configured
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on port until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down server")
	}
	return nil
}

func (*Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// eventGridWebhook accepts an Event Grid batch. The subscription
// validation handshake is answered inline; every other event is handled
// in order. Pass failures are logged, not returned, so Event Grid does not
// redeliver an event whose pass already made changes.
func (s *Server) eventGridWebhook(w http.ResponseWriter, r *http.Request) {
	// CloudEvents abuse protection handshake
	if r.Method == http.MethodOptions {
		if origin := r.Header.Get("WebHook-Request-Origin"); origin != "" {
			w.Header().Set("WebHook-Allowed-Origin", origin)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, errors.Wrap(err, "failed to read body"))
		return
	}
	var batch []cloud.EventGridEvent
	if err := json.Unmarshal(body, &batch); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, errors.Wrap(err, "body is not an Event Grid batch"))
		return
	}

	for _, raw := range batch {
		if raw.EventType == subscriptionValidationEvent {
			s.validateSubscription(w, raw)
			return
		}
	}

	for _, raw := range batch {
		ev, err := cloud.FromEventGrid(raw)
		if err != nil {
			s.logger.Error("dropping malformed event", zap.String("event_id", raw.ID), zap.Error(err))
			continue
		}
		if _, err := s.events.Handle(r.Context(), ev); err != nil {
			s.logger.Error("pass failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) validateSubscription(w http.ResponseWriter, raw cloud.EventGridEvent) {
	var data struct {
		ValidationCode string `json:"validationCode"`
	}
	if err := json.Unmarshal(raw.Data, &data); err != nil || data.ValidationCode == "" {
		writeError(w, s.logger, http.StatusBadRequest, errors.New("validation event without code"))
		return
	}
	s.logger.Info("answering subscription validation", zap.String("event_id", raw.ID))
	writeJSON(w, s.logger, map[string]string{"validationResponse": data.ValidationCode})
}

type invokeRequest struct {
	Data     map[string]json.RawMessage `json:"Data"`
	Metadata map[string]json.RawMessage `json:"Metadata"`
}

type invokeResponse struct {
	Outputs     map[string]any `json:"Outputs"`
	Logs        []string       `json:"Logs"`
	ReturnValue any            `json:"ReturnValue"`
}

// customHandler serves an Azure Functions custom handler invocation of an
// Event Grid trigger.
func (s *Server) customHandler(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, errors.Wrap(err, "malformed invocation"))
		return
	}
	raw, ok := req.Data[eventBinding]
	if !ok {
		writeError(w, s.logger, http.StatusBadRequest, errors.Errorf("invocation has no %q binding", eventBinding))
		return
	}
	// the host may deliver the event as a JSON string
	var str string
	if json.Unmarshal(raw, &str) == nil {
		raw = json.RawMessage(str)
	}

	ev, err := cloud.ParseEvent(raw)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err)
		return
	}

	resp := invokeResponse{Outputs: map[string]any{}, Logs: []string{}}
	out, err := s.events.Handle(r.Context(), ev)
	switch {
	case err != nil:
		resp.Logs = append(resp.Logs, "pass failed: "+err.Error())
	case out != nil:
		resp.Logs = append(resp.Logs, "run "+out.RunID+": "+string(out.Status))
	}
	writeJSON(w, s.logger, resp)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, code int, err error) {
	logger.Error("rejecting request", zap.Int("status", code), zap.Error(err))
	http.Error(w, err.Error(), code)
}
