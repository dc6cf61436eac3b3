package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/gemini-relay/internal/config"
	"github.com/ent0n29/gemini-relay/internal/conversation"
	"github.com/ent0n29/gemini-relay/internal/observability"
	"github.com/ent0n29/gemini-relay/internal/reply"
	"github.com/ent0n29/gemini-relay/internal/transcript"
)

const sourceHTTP = "http"

// Replier is the reply service as seen by the HTTP surface.
type Replier interface {
	Generate(ctx context.Context, id conversation.ID, text string) (string, error)
	Reset(ctx context.Context, id conversation.ID) error
	History(id conversation.ID) conversation.History
	Fallbacks() reply.Fallbacks
}

type Server struct {
	cfg      config.Config
	replies  Replier
	archive  transcript.Archive
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// New builds the HTTP surface. archive may be nil when transcripts are
// disabled.
func New(cfg config.Config, replies Replier, archive transcript.Archive, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		replies: replies,
		archive: archive,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handlePerfLatencyReset)

	r.Get("/v1/conversations/ws", s.handleConversationWS)
	r.Route("/v1/conversations/{id}", func(r chi.Router) {
		r.Post("/messages", s.handlePostMessage)
		r.Get("/history", s.handleGetHistory)
		r.Delete("/history", s.handleResetHistory)
		r.Get("/transcript", s.handleGetTranscript)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"model_provider":  s.cfg.ModelProvider,
		"transcript_mode": s.transcriptMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.replies == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "reply service not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"model_provider":  s.cfg.ModelProvider,
		"transcript_mode": s.transcriptMode(),
	})
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
}

type historyResponse struct {
	ConversationID string              `json:"conversation_id"`
	Limit          int                 `json:"limit"`
	Turns          []conversation.Turn `json:"turns"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationIDParam(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	s.metrics.ObserveInbound(sourceHTTP, "text")

	text, err := s.replies.Generate(r.Context(), id, req.Text)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", string(id)).Str("source", sourceHTTP).Msg("generate failed")
		respondJSON(w, http.StatusInternalServerError, messageResponse{
			ConversationID: string(id),
			Reply:          s.replies.Fallbacks().Internal,
		})
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{ConversationID: string(id), Reply: text})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationIDParam(w, r)
	if !ok {
		return
	}
	turns := s.replies.History(id)
	if turns == nil {
		turns = conversation.History{}
	}
	respondJSON(w, http.StatusOK, historyResponse{
		ConversationID: string(id),
		Limit:          s.cfg.MemoryLimit,
		Turns:          turns,
	})
}

func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationIDParam(w, r)
	if !ok {
		return
	}
	if err := s.replies.Reset(r.Context(), id); err != nil {
		respondError(w, http.StatusServiceUnavailable, "reset_failed", err.Error())
		return
	}
	s.metrics.ObserveReset(sourceHTTP)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationIDParam(w, r)
	if !ok {
		return
	}
	if s.archive == nil {
		respondError(w, http.StatusNotFound, "transcript_disabled", "transcript archive is not configured")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.archive.Recent(r.Context(), string(id), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_query_failed", err.Error())
		return
	}
	if entries == nil {
		entries = []transcript.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": string(id),
		"entries":         entries,
	})
}

func conversationIDParam(w http.ResponseWriter, r *http.Request) (conversation.ID, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_conversation_id", "missing conversation id")
		return "", false
	}
	return conversation.ID(id), true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) transcriptMode() string {
	switch s.archive.(type) {
	case nil:
		return "disabled"
	case *transcript.PostgresArchive:
		return "postgres"
	case *transcript.SQLiteArchive:
		return "sqlite"
	case *transcript.InMemoryArchive:
		return "in-memory"
	default:
		return "custom"
	}
}
