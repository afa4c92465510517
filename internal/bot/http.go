package bot

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// SecretHeader carries the secret_token registered with setWebhook
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives updates for the mother bot and every relay bot
type WebhookHandler struct {
	master *Bot
	runner *Runner
	secret []byte
	logger *zap.Logger
}

// NewWebhookHandler creates the webhook endpoint. Requests whose secret header does not
// match secret are rejected; an empty secret rejects every request.
func NewWebhookHandler(master *Bot, runner *Runner, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{master: master, runner: runner, secret: []byte(secret), logger: logger}
}

// RegisterRoutes registers POST /telegram-webhook/{id} on the provided mux
func (wh *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+WebhookPath+"{id}", wh.handleUpdate)
}

func (wh *WebhookHandler) authorized(r *http.Request) bool {
	if len(wh.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), wh.secret) == 1
}

func (wh *WebhookHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !wh.authorized(r) {
		wh.logger.Warn("Rejected webhook request without a valid secret",
			zap.String("webhook_id", id),
			zap.String("remote_addr", r.RemoteAddr))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if id != MasterWebhookID && !wh.runner.Running(id) {
		http.NotFound(w, r)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		wh.logger.Warn("Error decoding webhook update", zap.String("webhook_id", id), zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Process update in background to respond quickly to the platform
	if id == MasterWebhookID {
		go wh.master.HandleWebhookUpdate(update)
	} else {
		go wh.runner.HandleUpdate(id, update)
	}

	w.WriteHeader(http.StatusOK)
}
