package bot

import (
	"context"
	"errors"
	"strings"

	"motherbot/internal/models"
	"motherbot/internal/platform"
	"motherbot/internal/platform/telegram"
	"motherbot/internal/relay"
	"motherbot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// contentFrom reduces a platform message to text plus a kind marker.
// Media stays on the platform and is copied by reference.
func contentFrom(message *tgbotapi.Message) relay.Content {
	c := relay.Content{Text: message.Text, Kind: models.KindText}

	switch {
	case len(message.Photo) > 0:
		c.Kind = models.KindPhoto
	case message.Document != nil:
		c.Kind = models.KindDocument
	case message.Voice != nil:
		c.Kind = models.KindVoice
	case message.Audio != nil:
		c.Kind = models.KindAudio
	case message.Sticker != nil:
		c.Kind = models.KindSticker
	case message.Text == "":
		c.Kind = models.KindOther
	}

	if c.Kind != models.KindText {
		c.Text = message.Caption
		c.Attachment = &platform.Attachment{FromChatID: message.Chat.ID, MessageID: message.MessageID}
	}
	return c
}

func displayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

// ensureUser records a user the first time they show up and refreshes their names after that
func ensureUser(ctx context.Context, db storage.Storage, user *tgbotapi.User, role models.Role) error {
	u := &models.User{
		ID:          user.ID,
		DisplayName: displayName(user),
		Username:    user.UserName,
		Role:        role,
	}
	return db.UpsertUser(ctx, u)
}

// answerCallback removes the loading state of a pressed button
func answerCallback(api *tgbotapi.BotAPI, query *tgbotapi.CallbackQuery, text string, logger *zap.Logger) {
	if api == nil {
		return // For testing
	}
	if _, err := api.Request(tgbotapi.NewCallback(query.ID, text)); err != nil {
		logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

// editButtons replaces the inline keyboard under the message the button belongs to
func editButtons(api *tgbotapi.BotAPI, query *tgbotapi.CallbackQuery, rows [][]platform.Button, logger *zap.Logger) {
	if api == nil || query.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(query.Message.Chat.ID, query.Message.MessageID, telegram.Keyboard(rows))
	if _, err := api.Request(edit); err != nil {
		logger.Debug("Failed to edit buttons", zap.Error(err))
	}
}

// deleteMessage removes a message from the chat, used for messages that carry a token
func deleteMessage(api *tgbotapi.BotAPI, message *tgbotapi.Message, logger *zap.Logger) {
	if api == nil {
		return
	}
	if _, err := api.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
		logger.Debug("Failed to delete message", zap.Error(err))
	}
}

// actionError maps engine errors onto a short notice for the actor
func actionError(err error) string {
	switch {
	case errors.Is(err, relay.ErrNotOwner):
		return textNotYours
	case errors.Is(err, relay.ErrBadCallback):
		return textUnsupported
	case errors.Is(err, platform.ErrRelayUnavailable):
		return textRelayUnavailable
	default:
		return textGenericError
	}
}
