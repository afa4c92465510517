package app

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"motherbot/internal/bot"
)

// health is the body served on /health
type health struct {
	Status        string `json:"status"`
	Mode          string `json:"mode"`
	RunningRelays int    `json:"running_relays"`
}

func (a *App) mode() string {
	if a.config.WebhookMode {
		return "webhook"
	}
	return "polling"
}

// routes builds the HTTP mux: health, metrics and webhook endpoints
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := health{Status: "ok", Mode: a.mode(), RunningRelays: a.runner.Count()}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			a.logger.Warn("Failed to write health response", zap.Error(err))
		}
	})

	mux.Handle("GET /metrics", a.metrics.Handler())

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Mother bot is running (mode: %s)", a.mode())
	})

	// Webhook endpoints; without a secret (polling mode) every request is rejected
	bot.NewWebhookHandler(a.bot, a.runner, a.config.WebhookSecret, a.logger).RegisterRoutes(mux)

	return mux
}
