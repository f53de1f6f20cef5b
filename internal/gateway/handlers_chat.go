package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"agentcore/internal/agent"
	"agentcore/internal/coreerr"
)

const keepaliveInterval = 15 * time.Second

type chatRequest struct {
	Message     string  `json:"message"`
	SessionID   string  `json:"session_id"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

func (a *App) chatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		id := identityFromRequest(r, a.cfg.AdminSessionKeys)
		sessionKey := firstNonEmpty(req.SessionID, id.sessionKey)

		agentReq := agent.Request{
			SessionKey:  sessionKey,
			UserID:      id.userID,
			Message:     req.Message,
			Channel:     "web",
			Plan:        "pro",
			IsAdmin:     id.isAdmin,
			Model:       req.Model,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Approve:     nil, // sync endpoint has no out-of-band approval channel
		}

		res, err := a.engine.Run(r.Context(), agentReq, func(agent.Event) {})
		if err != nil {
			writeChatError(w, err)
			return
		}
		res.SessionID = sessionKey
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}
}

func writeChatError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch coreerr.ClassifyKind(err) {
	case coreerr.KindInsufficient:
		status = http.StatusPaymentRequired
	case coreerr.KindThrottled:
		status = http.StatusTooManyRequests
	case coreerr.KindAdminRequired:
		status = http.StatusForbidden
	case coreerr.KindCancelled:
		status = 499
	}
	http.Error(w, err.Error(), status)
}

// chatStreamHandler implements the SSE endpoint, grounded on the teacher's
// internal/agentd/handlers_chat.go pattern: a sync.Mutex-serialized
// `data: %s\n\n` writer, a keepalive comment-line ticker, and callbacks that
// translate the engine's event stream into wire frames as it happens.
func (a *App) chatStreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		fl, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		id := identityFromRequest(r, a.cfg.AdminSessionKeys)
		sessionKey := firstNonEmpty(req.SessionID, id.sessionKey)

		var streamMu sync.Mutex
		write := func(ev agent.Event) {
			b, err := json.Marshal(ev)
			if err != nil {
				return
			}
			streamMu.Lock()
			defer streamMu.Unlock()
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, b)
			fl.Flush()
		}

		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(keepaliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					streamMu.Lock()
					fmt.Fprint(w, ": keepalive\n\n")
					fl.Flush()
					streamMu.Unlock()
				case <-stop:
					return
				}
			}
		}()

		ctx := r.Context()
		approve := func(callID string) (bool, error) {
			// No out-of-band decision channel is wired to this transport yet;
			// the engine already emits approval_required before dispatch, so
			// a caller watching the stream can act on it out of band in a
			// future revision. Until then, confirmation-gated tools deny.
			return false, nil
		}

		agentReq := agent.Request{
			SessionKey:  sessionKey,
			UserID:      id.userID,
			Message:     req.Message,
			Channel:     "web",
			Plan:        "pro",
			IsAdmin:     id.isAdmin,
			Model:       req.Model,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Approve:     approve,
		}

		res, err := a.engine.Run(ctx, agentReq, write)
		if err != nil {
			log.Error().Err(err).Str("session", sessionKey).Msg("chat stream ended with error")
		}
		_ = res
	}
}
