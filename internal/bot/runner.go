package bot

import (
	"context"
	"fmt"

	"motherbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// WebhookPath is the path prefix relay and mother bot webhooks are served under
const WebhookPath = "/telegram-webhook/"

// Launch starts receiving updates for the relay bot. Launching a running relay bot is a no-op.
func (r *Runner) Launch(ctx context.Context, rb *models.RelayBot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.Running(rb.ID) {
		return nil
	}

	api, err := r.apis.API(rb.Credential)
	if err != nil {
		return fmt.Errorf("failed to connect relay bot: %w", err)
	}

	h := &relayHandle{relay: *rb, api: api}
	var updates tgbotapi.UpdatesChannel

	if r.webhookURL != "" {
		if err := setWebhook(api, r.webhookURL+WebhookPath+rb.ID, r.webhookSecret); err != nil {
			return fmt.Errorf("failed to set relay webhook: %w", err)
		}
	} else {
		if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			r.logger.Warn("Failed to delete relay webhook", zap.String("relay_id", rb.ID), zap.Error(err))
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = api.GetUpdatesChan(u)
		h.polling = true
	}

	r.mu.Lock()
	r.running[rb.ID] = h
	r.updateGauge()
	r.mu.Unlock()

	if h.polling {
		go r.poll(rb.ID, updates)
	}

	r.logger.Info("Relay bot launched",
		zap.String("relay_id", rb.ID),
		zap.String("handle", rb.PublicHandle),
		zap.String("credential", rb.MaskedCredential()),
		zap.Bool("polling", h.polling))
	return nil
}

// Stop stops receiving updates for the relay bot. Unknown ids are ignored.
func (r *Runner) Stop(relayID string) {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	r.mu.Lock()
	h, ok := r.running[relayID]
	delete(r.running, relayID)
	r.updateGauge()
	r.mu.Unlock()

	if !ok {
		return
	}

	if h.api != nil {
		if h.polling {
			h.api.StopReceivingUpdates()
		} else if _, err := h.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			r.logger.Warn("Failed to delete relay webhook", zap.String("relay_id", relayID), zap.Error(err))
		}
	}
	// a stopped handle cannot poll again, the next Launch gets a fresh one
	r.apis.Forget(h.relay.Credential)

	r.logger.Info("Relay bot stopped", zap.String("relay_id", relayID))
}

// StopAll stops every running relay bot
func (r *Runner) StopAll() {
	for _, id := range r.RunningIDs() {
		r.Stop(id)
	}
}

// Running reports whether updates are being received for the relay bot
func (r *Runner) Running(relayID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.running[relayID]
	return ok
}

// RunningIDs returns the ids of all running relay bots
func (r *Runner) RunningIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of running relay bots
func (r *Runner) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.running)
}

// RestartActive launches every relay bot the store lists as active.
// Relay bots whose credential stopped working are marked as error.
func (r *Runner) RestartActive(ctx context.Context) (int, error) {
	relays, err := r.registry.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	launched := 0
	for i := range relays {
		rb := &relays[i]
		if err := r.Launch(ctx, rb); err != nil {
			r.logger.Warn("Failed to restart relay bot", zap.String("relay_id", rb.ID), zap.Error(err))
			if err := r.registry.MarkError(ctx, rb.ID); err != nil {
				r.logger.Error("Failed to mark relay bot as error", zap.String("relay_id", rb.ID), zap.Error(err))
			}
			continue
		}
		launched++
	}
	return launched, nil
}

// HandleUpdate processes a single update of a relay bot
func (r *Runner) HandleUpdate(relayID string, update tgbotapi.Update) {
	r.mu.RLock()
	h, ok := r.running[relayID]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("Dropping update for relay bot that is not running", zap.String("relay_id", relayID))
		return
	}

	if update.Message != nil && update.Message.From != nil {
		r.handleRelayMessage(h, update.Message)
	}
	if update.CallbackQuery != nil && update.CallbackQuery.From != nil {
		r.handleRelayCallback(h, update.CallbackQuery)
	}
}

func (r *Runner) poll(relayID string, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		r.HandleUpdate(relayID, update)
	}
}

// updateGauge must be called with mu held
func (r *Runner) updateGauge() {
	if r.metrics != nil {
		r.metrics.ActiveRelays.Set(float64(len(r.running)))
	}
}
