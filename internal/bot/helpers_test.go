package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"motherbot/internal/blocklist"
	"motherbot/internal/metrics"
	"motherbot/internal/models"
	"motherbot/internal/platform"
	pstubs "motherbot/internal/platform/stubs"
	"motherbot/internal/provision"
	"motherbot/internal/registry"
	"motherbot/internal/relay"
	"motherbot/internal/steps"
	"motherbot/internal/storage/stubs"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	masterToken = "1:mastersecrettoken"
	relayToken  = "100:relaysecret123"
	otherToken  = "200:othersecret456"
	brokenToken = "300:brokensecret789"

	webhookSecret = "hook-secret_1"

	ownerID  int64 = 10
	senderID int64 = 20
	adminID  int64 = 99
)

// fakeBotAPI answers every Bot API method with success and records the calls
type fakeBotAPI struct {
	srv     *httptest.Server
	mu      sync.Mutex
	calls   []string          // "method url" pairs
	secrets map[string]string // webhook url -> secret_token
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	t.Helper()
	f := &fakeBotAPI{secrets: make(map[string]string)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")

		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/bot"), "/")
		method := parts[len(parts)-1]

		f.mu.Lock()
		f.calls = append(f.calls, method+" "+r.FormValue("url"))
		if method == "setWebhook" {
			f.secrets[r.FormValue("url")] = r.FormValue("secret_token")
		}
		f.mu.Unlock()

		if method == "getMe" {
			fmt.Fprint(w, `{"ok":true,"result":{"id":100,"is_bot":true,"first_name":"Inbox","username":"inbox_bot"}}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBotAPI) secretFor(url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.secrets[url]
}

func (f *fakeBotAPI) called(method string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, method+" ") {
			out = append(out, strings.TrimPrefix(c, method+" "))
		}
	}
	return out
}

// fakeAPIs builds real BotAPI handles against the fake server
type fakeAPIs struct {
	endpoint string

	mu        sync.Mutex
	broken    map[string]bool
	forgotten []string
}

func (f *fakeAPIs) API(credential string) (*tgbotapi.BotAPI, error) {
	f.mu.Lock()
	broken := f.broken[credential]
	f.mu.Unlock()
	if broken {
		return nil, platform.ErrRelayUnavailable
	}
	return tgbotapi.NewBotAPIWithClient(credential, f.endpoint, &http.Client{Timeout: 5 * time.Second})
}

func (f *fakeAPIs) Forget(credential string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, credential)
}

type testEnv struct {
	bot     *Bot
	runner  *Runner
	db      *stubs.MockDB
	channel *pstubs.Channel
	reg     *registry.Registry
	steps   *steps.Tracker
	engine  *relay.Engine
	metrics *metrics.Metrics
	apis    *fakeAPIs
	server  *fakeBotAPI
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	db := stubs.NewMockDB()
	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	ch := pstubs.NewChannel()
	ch.AddIdentity(relayToken, platform.Identity{ID: 100, Handle: "inbox_bot", DisplayName: "Inbox"})
	ch.AddIdentity(otherToken, platform.Identity{ID: 200, Handle: "second_bot", DisplayName: "Second"})

	m := metrics.New()
	reg := registry.New(db, 2, registry.DefaultSettings(), logger)
	tracker := steps.New(db, 0, logger)

	engine, err := relay.NewEngine(relay.Deps{
		Store:    db,
		Registry: reg,
		Blocks:   blocklist.New(db),
		Steps:    tracker,
		Channel:  ch,
		Limiter:  relay.NewLimiter(time.Minute, 64),
		Metrics:  m,
		NodeID:   1,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	server := newFakeBotAPI(t)
	apis := &fakeAPIs{endpoint: server.srv.URL + "/bot%s/%s", broken: map[string]bool{brokenToken: true}}

	runner := NewRunner(RunnerOptions{
		APIs:          apis,
		Channel:       ch,
		Engine:        engine,
		Registry:      reg,
		Steps:         tracker,
		Store:         db,
		Metrics:       m,
		WebhookURL:    "https://bots.example.com",
		WebhookSecret: webhookSecret,
		Logger:        logger,
	})

	bot := NewBot(Options{
		Token:     masterToken,
		Channel:   ch,
		Store:     db,
		Provision: provision.NewEngine(reg, db, ch, runner, logger),
		Registry:  reg,
		Relays:    engine,
		Steps:     tracker,
		Runner:    runner,
		Metrics:   m,
		AdminIDs:  []int64{adminID},
		Logger:    logger,
	})

	return &testEnv{
		bot:     bot,
		runner:  runner,
		db:      db,
		channel: ch,
		reg:     reg,
		steps:   tracker,
		engine:  engine,
		metrics: m,
		apis:    apis,
		server:  server,
	}
}

// launchRelay registers, activates and launches a relay bot for ownerID
func (e *testEnv) launchRelay(t *testing.T, credential string) *models.RelayBot {
	t.Helper()
	return e.launchNamedRelay(t, credential, "inbox_bot")
}

func (e *testEnv) launchNamedRelay(t *testing.T, credential, handle string) *models.RelayBot {
	t.Helper()
	ctx := context.Background()

	rb, err := e.reg.Register(ctx, credential, ownerID, handle, "Inbox")
	if err != nil {
		t.Fatalf("Failed to register relay bot: %v", err)
	}
	if err := e.reg.Activate(ctx, rb.ID); err != nil {
		t.Fatalf("Failed to activate relay bot: %v", err)
	}
	rb.Status = models.StatusActive
	if err := e.runner.Launch(ctx, rb); err != nil {
		t.Fatalf("Failed to launch relay bot: %v", err)
	}
	return rb
}

func (e *testEnv) lastTo(chatID int64) string {
	msgs := e.channel.SentTo(chatID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

func privateChat(id int64) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: id, Type: "private"}
}

func textMessage(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, FirstName: "Test", UserName: "tester"},
		Chat:      privateChat(from),
		Text:      text,
	}
}

func commandMessage(from int64, text string) *tgbotapi.Message {
	message := textMessage(from, text)
	length := len(text)
	if i := strings.IndexByte(text, ' '); i > 0 {
		length = i
	}
	message.Entities = []tgbotapi.MessageEntity{
		{Type: "bot_command", Offset: 0, Length: length},
	}
	return message
}

func callbackQuery(from int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{
			MessageID: 7,
			Chat:      privateChat(from),
		},
		Data: data,
	}
}
