package bot

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MasterWebhookID is the webhook path segment of the mother bot
const MasterWebhookID = "master"

var errNoAPI = errors.New("bot API is not configured")

// Start starts the mother bot in polling mode
func (b *Bot) Start() error {
	if b.api == nil {
		return errNoAPI
	}
	b.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started successfully. Waiting for updates...")

	// Handle updates (blocks until Stop)
	b.handleUpdates(updates)
	return nil
}

// StartWebhook points the platform at webhookURL/telegram-webhook/master.
// The platform sends secret back with every update.
func (b *Bot) StartWebhook(webhookURL, secret string) error {
	if b.api == nil {
		return errNoAPI
	}
	target := webhookURL + WebhookPath + MasterWebhookID
	b.logger.Info("Setting up webhook", zap.String("webhook_url", target))

	if err := setWebhook(b.api, target, secret); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", target))
		return err
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
	} else {
		b.logger.Info("Webhook set successfully",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
		)
	}
	return nil
}

// setWebhook registers target with a secret_token. WebhookConfig of the SDK has no
// field for it, so the request is built by hand.
func setWebhook(api *tgbotapi.BotAPI, target, secret string) error {
	params := tgbotapi.Params{"url": target}
	params.AddNonZero("max_connections", 40)
	params.AddNonEmpty("secret_token", secret)
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// Stop ends polling
func (b *Bot) Stop() {
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
}

// HandleWebhookUpdate processes a single update of the mother bot
func (b *Bot) HandleWebhookUpdate(update tgbotapi.Update) {
	if update.Message != nil && update.Message.From != nil {
		b.handleMessage(update.Message)
	}
	if update.CallbackQuery != nil && update.CallbackQuery.From != nil {
		b.handleCallbackQuery(update.CallbackQuery)
	}
}

// handleUpdates processes incoming updates from polling mode
func (b *Bot) handleUpdates(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		b.HandleWebhookUpdate(update)
	}
}
