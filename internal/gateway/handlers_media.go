package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"agentcore/internal/media"
)

type mediaResponse struct {
	URL             string `json:"url"`
	Provider        string `json:"provider"`
	CreditsUsed     int64  `json:"credits_used"`
	Cached          bool   `json:"cached"`
	OriginalCredits int64  `json:"original_credits"`
}

const mediaGenerationCost = 10

// mediaHandler implements POST /v1/media/{kind} (spec §6): a
// content-addressed cache in front of Generator, so repeated requests for
// the same normalized parameters report a flat 1 credit instead of the full
// generation cost. The credit figure is only reported as credits_used in the
// response; the handler does not deduct it from any user balance.
func (a *App) mediaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		kind := strings.TrimPrefix(r.URL.Path, "/v1/media/")
		kind = strings.Trim(kind, "/")
		if kind == "" {
			http.Error(w, "missing media kind", http.StatusBadRequest)
			return
		}
		if a.gen == nil {
			http.Error(w, "media generation not configured", http.StatusServiceUnavailable)
			return
		}

		var params map[string]any
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		hash := media.Fingerprint(kind, params)
		ctx := r.Context()

		if entry, ok := a.media.Lookup(ctx, kind, hash); ok {
			_ = a.media.RecordHit(ctx, kind, hash)
			writeJSON(w, mediaResponse{
				URL:             entry.ResultURL,
				Provider:        entry.Provider,
				CreditsUsed:     1,
				Cached:          true,
				OriginalCredits: entry.OriginalCredits,
			})
			return
		}

		url, provider, err := a.gen.Generate(ctx, kind, params)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		paramsJSON, _ := json.Marshal(params)
		if err := a.media.Store(ctx, kind, hash, url, provider, mediaGenerationCost, string(paramsJSON)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, mediaResponse{
			URL:             url,
			Provider:        provider,
			CreditsUsed:     mediaGenerationCost,
			Cached:          false,
			OriginalCredits: mediaGenerationCost,
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// mediaServeHandler serves a previously generated artifact back out of the
// object store, grounded on the teacher's audioServeHandler (GET /audio/)
// pattern, generalized from http.ServeFile over a local path to a
// Get-and-copy over the objectstore.ObjectStore abstraction.
func (a *App) mediaServeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/media/")
		if key == "" || a.objects == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		rc, attrs, err := a.objects.Get(r.Context(), key)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer rc.Close()
		if attrs.ContentType != "" {
			w.Header().Set("Content-Type", attrs.ContentType)
		}
		_, _ = io.Copy(w, rc)
	}
}
