package bot

import (
	"context"

	"motherbot/internal/models"
	"motherbot/internal/platform"
	"motherbot/internal/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage processes a single message sent to the mother bot
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()

	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(ctx, message.Chat.ID, textGenericError, nil)
		}
	}()

	if message.Chat == nil || !message.Chat.IsPrivate() {
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	tag, err := b.steps.Get(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to read step", zap.Int64("user_id", message.From.ID), zap.Error(err))
		b.reply(ctx, message.Chat.ID, textGenericError, nil)
		return
	}
	if tag == models.StepAwaitingToken {
		b.handleConversation(ctx, message)
		return
	}

	b.reply(ctx, message.Chat.ID, textUseCommands, nil)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()

	// Any other command interrupts a pending token prompt
	if command != "newbot" && command != "cancel" {
		b.dropTokenStep(ctx, message.From.ID)
	}

	switch command {
	case "start":
		b.handleStart(ctx, message)
	case "help":
		b.reply(ctx, message.Chat.ID, textHelp, nil)
	case "newbot":
		b.handleNewBot(ctx, message)
	case "mybots":
		b.handleMyBots(ctx, message)
	case "stats":
		b.handleStats(ctx, message)
	case "cancel":
		b.handleCancel(ctx, message)
	case "suspend":
		b.handleSuspend(ctx, message)
	default:
		b.reply(ctx, message.Chat.ID, textUnknownCommand, nil)
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()

	action, err := relay.DecodeCallback(query.Data)
	if err != nil {
		b.logger.Debug("Ignoring callback", zap.String("data", query.Data), zap.Error(err))
		answerCallback(b.api, query, textUnsupported, b.logger)
		return
	}

	var notice string
	switch action.Kind {
	case relay.ActionManage:
		notice = b.handleManageCallback(ctx, query, action.RelayID)
	case relay.ActionActivate:
		notice = b.handleActivateCallback(ctx, query, action.RelayID)
	case relay.ActionDeactivate:
		notice = b.handleDeactivateCallback(ctx, query, action.RelayID)
	case relay.ActionDelete:
		notice = b.handleDeleteCallback(ctx, query, action.RelayID)
	case relay.ActionStats:
		notice = b.handleStatsCallback(ctx, query, action.RelayID)
	default:
		notice = textUnsupported
	}

	answerCallback(b.api, query, notice, b.logger)
}

// reply sends a message from the mother bot. Failures are only logged.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, buttons [][]platform.Button) {
	msg := platform.Message{Text: text, Buttons: buttons}
	if err := b.channel.Send(ctx, b.token, chatID, msg); err != nil {
		b.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) dropTokenStep(ctx context.Context, userID int64) {
	tag, err := b.steps.Get(ctx, userID)
	if err != nil || tag != models.StepAwaitingToken {
		return
	}
	if err := b.steps.Clear(ctx, userID); err != nil {
		b.logger.Error("Failed to clear step", zap.Int64("user_id", userID), zap.Error(err))
	}
}
