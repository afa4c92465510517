package bot

import (
	"context"
	"errors"
	"fmt"

	"motherbot/internal/models"
	"motherbot/internal/platform"
	"motherbot/internal/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleRelayMessage routes a message written to a relay bot.
// The owner talks to the bot to reply, everyone else is an anonymous sender.
func (r *Runner) handleRelayMessage(h *relayHandle, message *tgbotapi.Message) {
	ctx := context.Background()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered from panic in handleRelayMessage",
				zap.String("relay_id", h.relay.ID),
				zap.Any("panic", rec))
			r.notify(ctx, h, message.Chat.ID, textGenericError)
		}
	}()

	if message.Chat == nil || !message.Chat.IsPrivate() {
		return
	}

	if message.From.ID == h.relay.OwnerID {
		r.handleOwnerMessage(ctx, h, message)
		return
	}
	r.handleSenderMessage(ctx, h, message)
}

func (r *Runner) handleSenderMessage(ctx context.Context, h *relayHandle, message *tgbotapi.Message) {
	if err := ensureUser(ctx, r.db, message.From, ""); err != nil {
		r.logger.Error("Failed to register sender", zap.Int64("user_id", message.From.ID), zap.Error(err))
	}

	if message.IsCommand() && message.Command() == "start" {
		rb, err := r.registry.Get(ctx, h.relay.ID)
		if err != nil {
			r.logger.Error("Failed to load relay bot", zap.String("relay_id", h.relay.ID), zap.Error(err))
			return
		}
		r.notify(ctx, h, message.Chat.ID, relay.Welcome(rb))
		return
	}

	_, err := r.engine.Forward(ctx, relay.Inbound{
		RelayID:        h.relay.ID,
		SenderID:       message.From.ID,
		SenderName:     displayName(message.From),
		SenderUsername: message.From.UserName,
		Content:        contentFrom(message),
	})
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrRecipientBlocked), errors.Is(err, relay.ErrRateLimited),
		errors.Is(err, relay.ErrRejectedContent), errors.Is(err, platform.ErrRelayUnavailable):
		// the sender already got a notice
		r.logger.Debug("Message not forwarded", zap.String("relay_id", h.relay.ID), zap.Error(err))
	default:
		r.logger.Warn("Failed to forward message",
			zap.String("relay_id", h.relay.ID),
			zap.Int64("sender_id", message.From.ID),
			zap.Error(err))
	}
}

func (r *Runner) handleOwnerMessage(ctx context.Context, h *relayHandle, message *tgbotapi.Message) {
	ownerID := message.From.ID

	if message.IsCommand() {
		switch message.Command() {
		case "start", "help":
			r.notify(ctx, h, message.Chat.ID, textOwnerStart)
		case "cancel":
			notice, err := r.engine.Cancel(ctx, ownerID)
			if err != nil {
				r.logger.Error("Failed to cancel step", zap.Int64("owner_id", ownerID), zap.Error(err))
				notice = textGenericError
			}
			r.notify(ctx, h, message.Chat.ID, notice)
		case "inbox":
			inbox, err := r.engine.Inbox(ctx, ownerID, h.relay.ID, inboxLimit)
			if err != nil {
				r.logger.Error("Failed to load inbox", zap.String("relay_id", h.relay.ID), zap.Error(err))
				r.notify(ctx, h, message.Chat.ID, actionError(err))
				return
			}
			r.notify(ctx, h, message.Chat.ID, relay.RenderInbox(inbox))
		case "clear":
			removed, err := r.engine.ClearHistory(ctx, ownerID, h.relay.ID)
			if err != nil {
				r.logger.Error("Failed to clear history", zap.String("relay_id", h.relay.ID), zap.Error(err))
				r.notify(ctx, h, message.Chat.ID, actionError(err))
				return
			}
			r.notify(ctx, h, message.Chat.ID, fmt.Sprintf(textHistoryCleared, removed))
		case "export":
			r.sendExport(ctx, h, message.Chat.ID, ownerID)
		default:
			r.notify(ctx, h, message.Chat.ID, textOwnerHint)
		}
		return
	}

	st, err := r.steps.State(ctx, ownerID)
	if err != nil {
		r.logger.Error("Failed to read step", zap.Int64("owner_id", ownerID), zap.Error(err))
		r.notify(ctx, h, message.Chat.ID, textGenericError)
		return
	}
	if st == nil || st.Tag != models.StepAwaitingReply {
		r.notify(ctx, h, message.Chat.ID, textOwnerHint)
		return
	}

	// an owner of several relays may start a reply on one and type into another
	if pending := st.Data[models.StepKeyRelayID]; pending != "" && pending != h.relay.ID {
		r.notify(ctx, h, message.Chat.ID, fmt.Sprintf(textReplyElsewhere, r.relayHandle(ctx, pending)))
		return
	}

	// the engine has already told the owner how the reply went
	if _, err := r.engine.CompleteReply(ctx, ownerID, contentFrom(message)); err != nil {
		r.logger.Debug("Reply not completed", zap.String("relay_id", h.relay.ID), zap.Error(err))
	}
}

func (r *Runner) sendExport(ctx context.Context, h *relayHandle, chatID, ownerID int64) {
	data, err := r.engine.Export(ctx, ownerID, h.relay.ID)
	if err != nil {
		r.logger.Error("Failed to export history", zap.String("relay_id", h.relay.ID), zap.Error(err))
		r.notify(ctx, h, chatID, actionError(err))
		return
	}

	out := platform.Message{
		Text:     fmt.Sprintf(textExportCaption, h.relay.PublicHandle),
		Document: &platform.Document{Name: relay.ExportFileName, Data: data},
	}
	if err := r.channel.Send(ctx, h.relay.Credential, chatID, out); err != nil {
		r.logger.Warn("Export not delivered", zap.String("relay_id", h.relay.ID), zap.Error(err))
	}
}

// relayHandle names a relay for the owner, falling back to its id
func (r *Runner) relayHandle(ctx context.Context, relayID string) string {
	rb, err := r.registry.Get(ctx, relayID)
	if err != nil || rb.PublicHandle == "" {
		return relayID
	}
	return rb.PublicHandle
}

// handleRelayCallback executes Reply, Block and Unblock buttons under owner notifications
func (r *Runner) handleRelayCallback(h *relayHandle, query *tgbotapi.CallbackQuery) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered from panic in handleRelayCallback",
				zap.String("relay_id", h.relay.ID),
				zap.Any("panic", rec))
		}
	}()

	ctx := context.Background()

	action, err := relay.DecodeCallback(query.Data)
	if err != nil {
		answerCallback(h.api, query, textUnsupported, r.logger)
		return
	}

	result, err := r.engine.HandleAction(ctx, query.From.ID, action)
	if err != nil {
		r.logger.Debug("Action rejected",
			zap.String("relay_id", h.relay.ID),
			zap.Int64("actor_id", query.From.ID),
			zap.String("action", string(action.Kind)),
			zap.Error(err))
		answerCallback(h.api, query, actionError(err), r.logger)
		return
	}

	answerCallback(h.api, query, result.Notice, r.logger)
	if result.Buttons != nil {
		editButtons(h.api, query, result.Buttons, r.logger)
	}
}

// notify sends a plain message through the relay bot
func (r *Runner) notify(ctx context.Context, h *relayHandle, chatID int64, text string) {
	if err := r.channel.Send(ctx, h.relay.Credential, chatID, platform.Message{Text: text}); err != nil {
		r.logger.Debug("Notice not delivered", zap.String("relay_id", h.relay.ID), zap.Error(err))
	}
}
