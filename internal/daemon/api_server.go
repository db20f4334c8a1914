package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"spoilshield/internal/capture"
	"spoilshield/internal/chat"
	"spoilshield/internal/config"
	"spoilshield/internal/detect"
	"spoilshield/internal/logging"
	"spoilshield/internal/recap"
	"spoilshield/internal/relay"
	"spoilshield/internal/services"
)

// apiServer is the extension-facing HTTP bridge: page contexts post raw
// signals in, the panel reads state and subscribes to the SSE stream.
type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ingest/mutations", srv.handleIngestMutations)
	mux.HandleFunc("/api/ingest/page", srv.handleIngestPage)
	mux.HandleFunc("/api/events", srv.handleEvents)
	mux.HandleFunc("/api/state", srv.handleState)
	mux.HandleFunc("/api/request", srv.handleRequest)
	mux.HandleFunc("/api/commands", srv.handleCommands)
	mux.HandleFunc("/api/episode/confirm", srv.handleEpisodeConfirm)
	mux.HandleFunc("/api/import/accept", srv.handleImportAccept)
	mux.HandleFunc("/api/import/dismiss", srv.handleImportDismiss)
	mux.HandleFunc("/api/recap/manual", srv.handleManualRecap)
	mux.HandleFunc("/api/ask", srv.handleAsk)
	mux.HandleFunc("/api/report", srv.handleReport)
	mux.HandleFunc("/api/status", srv.handleStatus)

	srv.server = &http.Server{
		Handler:           corsMiddleware(withRequestID(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: the SSE stream stays open indefinitely.
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, useful when the bind port is 0.
func (s *apiServer) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// corsMiddleware lets the extension's page and panel contexts call the
// daemon from their browser origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) handleIngestMutations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var batch capture.MutationBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid mutation batch")
		return
	}
	s.daemon.observer.HandleBatch(batch)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleIngestPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var snapshot detect.PageSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid page snapshot")
		return
	}
	s.daemon.runner.OnSnapshot(&snapshot)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents is the SSE stream merging relay deliveries (SHOW_INFO,
// CONTEXT) with flow pushes (PHASE, IMPORT_OFFER). Subscribing replays
// last-known state, which is the consumer-side readiness handshake.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	relayEvents, cancelRelay := s.daemon.relay.Subscribe(r.Context())
	defer cancelRelay()
	flowEvents, cancelFlow := s.daemon.events.subscribe()
	defer cancelFlow()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, open := <-relayEvents:
			if !open {
				return
			}
			writeSSE(w, event.Type, event.Payload)
			flusher.Flush()
		case event, open := <-flowEvents:
			if !open {
				return
			}
			writeSSE(w, event.Type, event.Payload)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload json.RawMessage) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

func (s *apiServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()

	payload := map[string]any{
		"flow": s.daemon.flow.Snapshot(),
		// The panel reads its request-burst schedule from here.
		"timing": map[string]any{
			"refreshIntervalMs": s.daemon.cfg.Relay.RefreshIntervalMs,
			"startupBurstMs":    s.daemon.cfg.Relay.StartupBurstMs,
		},
	}
	if envelope, ok, err := s.daemon.relay.CurrentShowInfo(ctx); err == nil && ok {
		payload["showInfo"] = envelope
	}
	tabID, _ := strconv.Atoi(r.URL.Query().Get("tab"))
	if envelope, ok, err := s.daemon.relay.CurrentContext(ctx, tabID); err == nil && ok {
		payload["context"] = envelope
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Kind == relay.RequestRedetect {
		s.daemon.flow.RequestRedetect(r.Context())
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if err := s.daemon.relay.HandleRequest(r.Context(), body.Kind); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tabID, _ := strconv.Atoi(r.URL.Query().Get("tab"))
	commands := s.daemon.relay.DrainCommands(tabID)
	if commands == nil {
		commands = []relay.Command{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"commands": commands})
}

func (s *apiServer) handleEpisodeConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Title   string `json:"title"`
		Season  int    `json:"season"`
		Episode int    `json:"episode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	if strings.TrimSpace(body.Title) != "" {
		err = s.daemon.flow.ConfirmManualSetup(r.Context(), body.Title, body.Season, body.Episode)
	} else {
		err = s.daemon.flow.ConfirmEpisode(r.Context(), body.Season, body.Episode)
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.flow.Snapshot())
}

func (s *apiServer) handleImportAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.flow.AcceptImport(r.Context()); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleImportDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.daemon.flow.DismissImport()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleManualRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.daemon.flow.ActiveSession(r.Context())
	if err != nil {
		s.writeError(w, http.StatusConflict, "no active session")
		return
	}
	request := recap.Request{
		ShowTitle: session.ShowTitle,
		Season:    session.Season,
		Episode:   session.Episode,
	}
	if id, err := strconv.ParseInt(session.ShowID, 10, 64); err == nil {
		request.ShowID = id
	}
	result, err := s.daemon.resolver.SetManual(r.Context(), request, body.Text)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleAsk streams the answer as SSE chunk events, closing with a done
// event carrying the final (possibly audited) answer.
func (s *apiServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	var body struct {
		Question  string `json:"question"`
		Style     string `json:"style"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.daemon.flow.ActiveSession(r.Context())
	if err != nil {
		s.writeError(w, http.StatusConflict, "no active session")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	recapText := ""
	if snapshot := s.daemon.flow.Snapshot(); snapshot.Recap != nil {
		recapText = snapshot.Recap.Summary
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	result, err := s.daemon.chat.Ask(r.Context(), chat.AskRequest{
		SessionID: session.ID,
		Question:  body.Question,
		Style:     body.Style,
		Timestamp: body.Timestamp,
		Recap:     recapText,
	},
		func(chunk string) {
			encoded, encErr := json.Marshal(chunk)
			if encErr != nil {
				return
			}
			writeSSE(w, "chunk", encoded)
			flusher.Flush()
		})
	if err != nil {
		encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
		writeSSE(w, "error", encoded)
		flusher.Flush()
		return
	}

	encoded, _ := json.Marshal(map[string]any{
		"answer":      result.Answer,
		"wasAudited":  result.WasAudited,
		"interrupted": result.Interrupted,
	})
	writeSSE(w, "done", encoded)
	flusher.Flush()
}

func (s *apiServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	var body struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := ""
	if session, err := s.daemon.flow.ActiveSession(r.Context()); err == nil {
		sessionID = session.ID
	}
	id := s.daemon.chat.ReportSpoiler(r.Context(), chat.Report{
		SessionID: sessionID,
		Question:  body.Question,
		Answer:    body.Answer,
	})
	s.writeJSON(w, http.StatusOK, map[string]string{"reportId": id})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

