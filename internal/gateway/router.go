package gateway

import (
	"fmt"
	"net/http"
)

// NewRouter builds the gateway's route table, grounded on the teacher's
// internal/agentd/router.go thin http.NewServeMux wiring.
func NewRouter(a *App) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ready")
	})

	mux.HandleFunc("/v1/chat", a.chatHandler())
	mux.HandleFunc("/v1/chat/stream", a.chatStreamHandler())
	mux.HandleFunc("/v1/media/", a.mediaHandler())
	mux.HandleFunc("/media/", a.mediaServeHandler())

	return mux
}
