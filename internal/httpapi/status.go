package httpapi

import (
	"fmt"
	"net/http"
	"strings"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	ModelProvider   string        `json:"model_provider"`
	Model           string        `json:"model"`
	TelegramEnabled bool          `json:"telegram_enabled"`
	MemoryLimit     int           `json:"memory_limit"`
	TranscriptMode  string        `json:"transcript_mode"`
	Checks          []statusCheck `json:"checks"`
}

// handleStatus reports which collaborators are configured so operators can
// see at a glance why the relay is or is not answering.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.ModelProvider))
	checks := make([]statusCheck, 0, 4)
	checks = append(checks, s.modelCheck(provider))

	if s.cfg.TelegramEnabled {
		checks = append(checks, statusCheck{ID: "telegram", Status: "ok", Label: "Telegram polling", Detail: "enabled"})
	} else {
		checks = append(checks, statusCheck{
			ID:     "telegram",
			Status: "warn",
			Label:  "Telegram polling",
			Detail: "disabled",
			Fix:    "Set RELAY_TELEGRAM_ENABLED=true and TELEGRAM_BOT_TOKEN.",
		})
	}

	mode := s.transcriptMode()
	checks = append(checks, statusCheck{ID: "transcript", Status: "ok", Label: "Transcript archive", Detail: mode})

	checks = append(checks, statusCheck{
		ID:     "memory",
		Status: "ok",
		Label:  "Conversation memory",
		Detail: fmt.Sprintf("last %d turns per conversation, in process only", s.cfg.MemoryLimit),
	})

	respondJSON(w, http.StatusOK, statusResponse{
		ModelProvider:   provider,
		Model:           s.cfg.ModelName,
		TelegramEnabled: s.cfg.TelegramEnabled,
		MemoryLimit:     s.cfg.MemoryLimit,
		TranscriptMode:  mode,
		Checks:          checks,
	})
}

func (s *Server) modelCheck(provider string) statusCheck {
	switch provider {
	case "gemini":
		if s.cfg.GeminiAPIKey == "" {
			return statusCheck{ID: "model", Status: "error", Label: "Model backend", Detail: "gemini without API key", Fix: "Set GEMINI_API_KEY."}
		}
	case "openai":
		if s.cfg.OpenAIAPIKey == "" {
			return statusCheck{ID: "model", Status: "error", Label: "Model backend", Detail: "openai without API key", Fix: "Set OPENAI_API_KEY."}
		}
	case "http":
		if s.cfg.ModelHTTPURL == "" {
			return statusCheck{ID: "model", Status: "error", Label: "Model backend", Detail: "http without URL", Fix: "Set MODEL_HTTP_URL."}
		}
	case "mock", "echo":
		return statusCheck{ID: "model", Status: "warn", Label: "Model backend", Detail: provider + " (local stub, no real model)"}
	default:
		return statusCheck{ID: "model", Status: "error", Label: "Model backend", Detail: "unknown provider " + provider}
	}
	return statusCheck{ID: "model", Status: "ok", Label: "Model backend", Detail: provider}
}
