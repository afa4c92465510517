package bot

import (
	"context"
	"errors"
	"fmt"

	"motherbot/internal/models"
	"motherbot/internal/platform"
	"motherbot/internal/relay"
	"motherbot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// ownedRelay loads the relay bot and checks that userID owns it
func (b *Bot) ownedRelay(ctx context.Context, userID int64, relayID string) (*models.RelayBot, error) {
	rb, err := b.registry.Get(ctx, relayID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", platform.ErrRelayUnavailable, relayID)
		}
		return nil, err
	}
	if rb.OwnerID != userID {
		return nil, relay.ErrNotOwner
	}
	return rb, nil
}

// handleManageCallback shows the relay card with its controls
func (b *Bot) handleManageCallback(ctx context.Context, query *tgbotapi.CallbackQuery, relayID string) string {
	rb, err := b.ownedRelay(ctx, query.From.ID, relayID)
	if err != nil {
		return actionError(err)
	}
	b.reply(ctx, query.From.ID, renderRelayCard(rb), relayCardButtons(rb))
	return ""
}

// handleDeactivateCallback stops the relay bot but keeps its record and quota slot
func (b *Bot) handleDeactivateCallback(ctx context.Context, query *tgbotapi.CallbackQuery, relayID string) string {
	rb, err := b.ownedRelay(ctx, query.From.ID, relayID)
	if err != nil {
		return actionError(err)
	}

	if err := b.registry.Deactivate(ctx, rb.ID); err != nil {
		b.logger.Error("Failed to deactivate relay bot", zap.String("relay_id", rb.ID), zap.Error(err))
		return textGenericError
	}
	b.runner.Stop(rb.ID)

	rb.Status = models.StatusInactive
	editButtons(b.api, query, relayCardButtons(rb), b.logger)
	return textRelayStopped
}

// handleActivateCallback restarts a stopped relay bot
func (b *Bot) handleActivateCallback(ctx context.Context, query *tgbotapi.CallbackQuery, relayID string) string {
	rb, err := b.ownedRelay(ctx, query.From.ID, relayID)
	if err != nil {
		return actionError(err)
	}
	if rb.Status == models.StatusSuspended {
		return textRelaySuspended
	}

	if err := b.registry.Activate(ctx, rb.ID); err != nil {
		b.logger.Error("Failed to activate relay bot", zap.String("relay_id", rb.ID), zap.Error(err))
		return textGenericError
	}
	rb.Status = models.StatusActive

	if err := b.runner.Launch(ctx, rb); err != nil {
		b.logger.Warn("Failed to launch relay bot", zap.String("relay_id", rb.ID), zap.Error(err))
		if err := b.registry.MarkError(ctx, rb.ID); err != nil {
			b.logger.Error("Failed to mark relay bot as error", zap.String("relay_id", rb.ID), zap.Error(err))
		}
		rb.Status = models.StatusError
		editButtons(b.api, query, relayCardButtons(rb), b.logger)
		return textRelayStartError
	}

	editButtons(b.api, query, relayCardButtons(rb), b.logger)
	return textRelayStarted
}

// handleDeleteCallback removes the relay bot and frees its quota slot
func (b *Bot) handleDeleteCallback(ctx context.Context, query *tgbotapi.CallbackQuery, relayID string) string {
	rb, err := b.ownedRelay(ctx, query.From.ID, relayID)
	if err != nil {
		return actionError(err)
	}

	b.runner.Stop(rb.ID)
	if err := b.registry.Delete(ctx, rb.ID); err != nil {
		b.logger.Error("Failed to delete relay bot", zap.String("relay_id", rb.ID), zap.Error(err))
		return textGenericError
	}

	editButtons(b.api, query, nil, b.logger)
	b.reply(ctx, query.From.ID, textRelayDeleted, nil)
	return textRelayDeleted
}

// handleStatsCallback shows the stats of one relay bot
func (b *Bot) handleStatsCallback(ctx context.Context, query *tgbotapi.CallbackQuery, relayID string) string {
	stats, err := b.relays.Stats(ctx, query.From.ID, relayID, statsDays)
	if err != nil {
		if !errors.Is(err, relay.ErrNotOwner) && !errors.Is(err, platform.ErrRelayUnavailable) {
			b.logger.Error("Failed to get stats", zap.String("relay_id", relayID), zap.Error(err))
		}
		return actionError(err)
	}
	b.reply(ctx, query.From.ID, renderStats(stats), nil)
	return ""
}
