package bot

import (
	"motherbot/internal/metrics"
	"motherbot/internal/platform"
	"motherbot/internal/provision"
	"motherbot/internal/registry"
	"motherbot/internal/relay"
	"motherbot/internal/steps"
	"motherbot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Options are the collaborators of the mother bot
type Options struct {
	API       *tgbotapi.BotAPI // nil disables polling, callback answers and message cleanup
	Token     string
	Channel   platform.Channel
	Store     storage.Storage
	Provision *provision.Engine
	Registry  *registry.Registry
	Relays    *relay.Engine
	Steps     *steps.Tracker
	Runner    *Runner
	Metrics   *metrics.Metrics
	AdminIDs  []int64
	Logger    *zap.Logger
}

// NewBot creates the mother bot
func NewBot(o Options) *Bot {
	admins := make(map[int64]bool)
	for _, id := range o.AdminIDs {
		admins[id] = true
	}

	if o.API != nil {
		o.Logger.Info("Bot created", zap.String("bot_username", o.API.Self.UserName))
	}

	return &Bot{
		api:       o.API,
		token:     o.Token,
		channel:   o.Channel,
		db:        o.Store,
		provision: o.Provision,
		registry:  o.Registry,
		relays:    o.Relays,
		steps:     o.Steps,
		runner:    o.Runner,
		metrics:   o.Metrics,
		admins:    admins,
		logger:    o.Logger,
	}
}

// GetAPI returns the bot API handle
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}

// RunnerOptions are the collaborators of the relay runner
type RunnerOptions struct {
	APIs          APISource
	Channel       platform.Channel
	Engine        *relay.Engine
	Registry      *registry.Registry
	Steps         *steps.Tracker
	Store         storage.Storage
	Metrics       *metrics.Metrics
	WebhookURL    string
	WebhookSecret string
	Logger        *zap.Logger
}

// NewRunner creates a relay runner. A non-empty WebhookURL selects webhook mode.
func NewRunner(o RunnerOptions) *Runner {
	return &Runner{
		apis:          o.APIs,
		channel:       o.Channel,
		engine:        o.Engine,
		registry:      o.Registry,
		steps:         o.Steps,
		db:            o.Store,
		metrics:       o.Metrics,
		webhookURL:    o.WebhookURL,
		webhookSecret: o.WebhookSecret,
		logger:        o.Logger,
		running:       make(map[string]*relayHandle),
	}
}
