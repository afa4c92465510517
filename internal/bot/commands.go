package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"motherbot/internal/models"
	"motherbot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleStart registers the user and shows available commands
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	var role models.Role
	if b.admins[message.From.ID] {
		role = models.RoleAdmin
	}
	if err := ensureUser(ctx, b.db, message.From, role); err != nil {
		b.logger.Error("Failed to register user", zap.Int64("user_id", message.From.ID), zap.Error(err))
	}
	b.reply(ctx, message.Chat.ID, textHelp, nil)
}

// handleNewBot starts the token conversation
func (b *Bot) handleNewBot(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	owned, err := b.registry.ListByOwner(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to list relay bots", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, message.Chat.ID, textGenericError, nil)
		return
	}
	if limit := b.registry.MaxPerOwner(); limit > 0 && len(owned) >= limit {
		b.reply(ctx, message.Chat.ID, fmt.Sprintf(textQuotaReached, limit), nil)
		return
	}

	if err := b.steps.Set(ctx, userID, models.StepAwaitingToken, nil); err != nil {
		b.logger.Error("Failed to set step", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, message.Chat.ID, textGenericError, nil)
		return
	}
	b.reply(ctx, message.Chat.ID, textAskToken, nil)
}

// handleMyBots lists the user's relay bots with a Manage button each
func (b *Bot) handleMyBots(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	relays, err := b.registry.ListByOwner(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to list relay bots", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, message.Chat.ID, textGenericError, nil)
		return
	}
	if len(relays) == 0 {
		b.reply(ctx, message.Chat.ID, textNoRelays, nil)
		return
	}

	b.reply(ctx, message.Chat.ID, renderRelayList(relays), relayListButtons(relays))
}

// handleStats shows counters and the last days of aggregates for every relay of the user
func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	relays, err := b.registry.ListByOwner(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to list relay bots", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, message.Chat.ID, textGenericError, nil)
		return
	}
	if len(relays) == 0 {
		b.reply(ctx, message.Chat.ID, textNoRelays, nil)
		return
	}

	var sections []string
	for _, r := range relays {
		stats, err := b.relays.Stats(ctx, userID, r.ID, statsDays)
		if err != nil {
			b.logger.Error("Failed to get stats", zap.String("relay_id", r.ID), zap.Error(err))
			continue
		}
		sections = append(sections, renderStats(stats))
	}
	if len(sections) == 0 {
		b.reply(ctx, message.Chat.ID, textGenericError, nil)
		return
	}
	b.reply(ctx, message.Chat.ID, strings.Join(sections, "\n\n"), nil)
}

// handleCancel clears whatever step the user is in
func (b *Bot) handleCancel(ctx context.Context, message *tgbotapi.Message) {
	notice, err := b.relays.Cancel(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to cancel step", zap.Int64("user_id", message.From.ID), zap.Error(err))
		notice = textGenericError
	}
	b.reply(ctx, message.Chat.ID, notice, nil)
}

// handleSuspend lets an administrator take a relay bot offline
func (b *Bot) handleSuspend(ctx context.Context, message *tgbotapi.Message) {
	if !b.admins[message.From.ID] {
		b.reply(ctx, message.Chat.ID, textAdminsOnly, nil)
		return
	}

	relayID := strings.TrimSpace(message.CommandArguments())
	if relayID == "" {
		b.reply(ctx, message.Chat.ID, textSuspendUsage, nil)
		return
	}

	if err := b.registry.Suspend(ctx, relayID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(ctx, message.Chat.ID, textRelayUnavailable, nil)
			return
		}
		b.logger.Error("Failed to suspend relay bot", zap.String("relay_id", relayID), zap.Error(err))
		b.reply(ctx, message.Chat.ID, textGenericError, nil)
		return
	}
	b.runner.Stop(relayID)

	b.logger.Info("Relay bot suspended", zap.String("relay_id", relayID), zap.Int64("admin_id", message.From.ID))
	b.reply(ctx, message.Chat.ID, fmt.Sprintf(textSuspended, relayID), nil)
}
