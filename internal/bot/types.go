package bot

import (
	"sync"

	"motherbot/internal/metrics"
	"motherbot/internal/models"
	"motherbot/internal/platform"
	"motherbot/internal/provision"
	"motherbot/internal/registry"
	"motherbot/internal/relay"
	"motherbot/internal/steps"
	"motherbot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Bot is the mother bot: it talks to owners and provisions relay bots
type Bot struct {
	api       *tgbotapi.BotAPI
	token     string
	channel   platform.Channel
	db        storage.Storage
	provision *provision.Engine
	registry  *registry.Registry
	relays    *relay.Engine
	steps     *steps.Tracker
	runner    *Runner
	metrics   *metrics.Metrics
	admins    map[int64]bool
	logger    *zap.Logger
}

// APISource hands out Bot API handles per credential
type APISource interface {
	API(credential string) (*tgbotapi.BotAPI, error)
	Forget(credential string)
}

// Runner receives updates for every active relay bot, by polling or webhook
type Runner struct {
	apis          APISource
	channel       platform.Channel
	engine        *relay.Engine
	registry      *registry.Registry
	steps         *steps.Tracker
	db            storage.Storage
	metrics       *metrics.Metrics
	webhookURL    string // empty means polling
	webhookSecret string
	logger        *zap.Logger

	lifecycleMu sync.Mutex // serializes Launch and Stop
	mu          sync.RWMutex
	running     map[string]*relayHandle
}

type relayHandle struct {
	relay   models.RelayBot
	api     *tgbotapi.BotAPI
	polling bool
}
