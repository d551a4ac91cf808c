package http

import (
	"encoding/json"
	"net/http"

	"telegram-quiz-bot/internal/app"
)

// NewRouter exposes the health check and the live results feed.
func NewRouter(feed *app.ResultFeed) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"subscribers": feed.Subscribers(),
		})
	})
	mux.HandleFunc("/ws/results", NewResultsHandler(feed).ServeWS)
	return mux
}
