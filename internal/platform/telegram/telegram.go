package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"motherbot/internal/models"
	"motherbot/internal/platform"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Client implements platform.Channel on top of the Telegram Bot API.
// One BotAPI handle is cached per credential.
type Client struct {
	mu         sync.Mutex
	apis       map[string]*tgbotapi.BotAPI
	httpClient *http.Client
	endpoint   string
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient creates a Telegram client whose platform calls time out after timeout
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	c := &Client{
		apis:       make(map[string]*tgbotapi.BotAPI),
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   tgbotapi.APIEndpoint,
		logger:     logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram-verify",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejected credential is a platform answer, not an outage
		IsSuccessful: func(err error) bool {
			var tgErr *tgbotapi.Error
			return err == nil || errors.As(err, &tgErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return c
}

// API returns the cached BotAPI for credential, connecting on first use
func (c *Client) API(credential string) (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	api, ok := c.apis[credential]
	c.mu.Unlock()
	if ok {
		return api, nil
	}

	api, err := tgbotapi.NewBotAPIWithClient(credential, c.endpoint, c.httpClient)
	if err != nil {
		return nil, classify(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.apis[credential]; ok {
		return existing, nil
	}
	c.apis[credential] = api
	return api, nil
}

// Forget drops the cached handle for credential
func (c *Client) Forget(credential string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.apis, credential)
}

// VerifyCredential calls getMe through the circuit breaker
func (c *Client) VerifyCredential(ctx context.Context, credential string) (*platform.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return tgbotapi.NewBotAPIWithClient(credential, c.endpoint, c.httpClient)
	})
	if err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			return nil, fmt.Errorf("%w: %s", platform.ErrPlatformRejected, tgErr.Message)
		}
		c.logger.Warn("Credential verification failed",
			zap.String("credential", models.MaskCredential(credential)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to verify credential: %w", err)
	}

	api := result.(*tgbotapi.BotAPI)
	c.mu.Lock()
	c.apis[credential] = api
	c.mu.Unlock()

	displayName := strings.TrimSpace(api.Self.FirstName + " " + api.Self.LastName)
	return &platform.Identity{
		ID:          api.Self.ID,
		Handle:      api.Self.UserName,
		DisplayName: displayName,
	}, nil
}

// Send delivers msg to recipientID. Attachments are copied before the text.
func (c *Client) Send(ctx context.Context, credential string, recipientID int64, msg platform.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	api, err := c.API(credential)
	if err != nil {
		return err
	}

	if msg.Attachment != nil {
		cp := tgbotapi.NewCopyMessage(recipientID, msg.Attachment.FromChatID, msg.Attachment.MessageID)
		cp.DisableNotification = msg.Silent
		if _, err := api.CopyMessage(cp); err != nil {
			return classify(err)
		}
	}

	if msg.Document != nil {
		doc := tgbotapi.NewDocument(recipientID, tgbotapi.FileBytes{Name: msg.Document.Name, Bytes: msg.Document.Data})
		doc.Caption = msg.Text
		doc.DisableNotification = msg.Silent
		if _, err := api.Send(doc); err != nil {
			return classify(err)
		}
		return nil
	}

	out := tgbotapi.NewMessage(recipientID, msg.Text)
	out.DisableNotification = msg.Silent
	out.DisableWebPagePreview = true
	if len(msg.Buttons) > 0 {
		out.ReplyMarkup = Keyboard(msg.Buttons)
	}

	if _, err := api.Send(out); err != nil {
		return classify(err)
	}
	return nil
}

// Keyboard converts button rows into an inline keyboard
func Keyboard(rows [][]platform.Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		keyboard = append(keyboard, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// classify maps Bot API errors onto the platform error kinds
func classify(err error) error {
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) {
		return fmt.Errorf("platform request failed: %w", err)
	}

	switch {
	case tgErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", platform.ErrRecipientUnreachable, tgErr.Message)
	case tgErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(tgErr.Message), "chat not found"):
		return fmt.Errorf("%w: %s", platform.ErrRecipientUnreachable, tgErr.Message)
	case tgErr.Code == http.StatusUnauthorized, tgErr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", platform.ErrRelayUnavailable, tgErr.Message)
	default:
		return fmt.Errorf("platform request failed: %w", err)
	}
}
