package bot

import (
	"context"
	"fmt"
	"strings"

	"motherbot/internal/provision"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleConversation processes the token the user sends after /newbot
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	credential := strings.TrimSpace(message.Text)

	// The token should not stay in the chat history
	if credential != "" {
		deleteMessage(b.api, message, b.logger)
	}

	bot, err := b.provision.Provision(ctx, credential, userID)
	var kind provision.Kind
	if err != nil {
		kind = provision.KindOf(err)
	}
	b.countProvisioning(kind)

	switch kind {
	case "":
		b.clearStep(ctx, userID)
		b.logger.Info("Relay bot provisioned",
			zap.String("relay_id", bot.ID),
			zap.Int64("owner_id", userID),
			zap.String("credential", bot.MaskedCredential()))
		b.reply(ctx, message.Chat.ID, fmt.Sprintf(textProvisioned, bot.PublicHandle, bot.PublicHandle, bot.PublicHandle), nil)
	case provision.KindInvalidFormat:
		// The step stays so the user can paste the token again
		b.reply(ctx, message.Chat.ID, textInvalidFormat, nil)
	case provision.KindPlatformRejected:
		b.reply(ctx, message.Chat.ID, textPlatformRejected, nil)
	case provision.KindDuplicate:
		b.clearStep(ctx, userID)
		b.reply(ctx, message.Chat.ID, textDuplicate, nil)
	case provision.KindQuotaExceeded:
		b.clearStep(ctx, userID)
		b.reply(ctx, message.Chat.ID, fmt.Sprintf(textQuotaReached, b.registry.MaxPerOwner()), nil)
	default:
		b.clearStep(ctx, userID)
		b.logger.Error("Provisioning failed", zap.Int64("owner_id", userID), zap.Error(err))
		b.reply(ctx, message.Chat.ID, textProvisionFailed, nil)
	}
}

func (b *Bot) clearStep(ctx context.Context, userID int64) {
	if err := b.steps.Clear(ctx, userID); err != nil {
		b.logger.Error("Failed to clear step", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (b *Bot) countProvisioning(kind provision.Kind) {
	if b.metrics == nil {
		return
	}
	outcome := string(kind)
	if outcome == "" {
		outcome = "success"
	}
	b.metrics.Provisioning.WithLabelValues(outcome).Inc()
}
