package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"motherbot/internal/blocklist"
	"motherbot/internal/metrics"
	"motherbot/internal/models"
	"motherbot/internal/platform"
	pstubs "motherbot/internal/platform/stubs"
	"motherbot/internal/registry"
	"motherbot/internal/steps"
	"motherbot/internal/storage/stubs"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	sender     int64 = 1
	owner      int64 = 2
	stranger   int64 = 3
	credential       = "100:relaysecret123"
)

type memArchive struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (a *memArchive) ArchiveMessage(ctx context.Context, msg *models.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, *msg)
	return nil
}

func (a *memArchive) CountMessagesByDay(ctx context.Context, relayID string, since time.Time) (map[string]int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int64)
	for _, m := range a.msgs {
		if m.RelayID == relayID && !m.IsReply() && !m.Timestamp.Before(since) {
			out[models.DayKey(m.Timestamp)]++
		}
	}
	return out, nil
}

func (a *memArchive) Close() error { return nil }

type fixture struct {
	engine  *Engine
	db      *stubs.MockDB
	channel *pstubs.Channel
	reg     *registry.Registry
	archive *memArchive
	metrics *metrics.Metrics
	relay   *models.RelayBot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := stubs.NewMockDB()
	ch := pstubs.NewChannel()
	reg := registry.New(db, 3, registry.DefaultSettings(), zap.NewNop())
	archive := &memArchive{}
	m := metrics.New()

	engine, err := NewEngine(Deps{
		Store:    db,
		Registry: reg,
		Blocks:   blocklist.New(db),
		Steps:    steps.New(db, 0, zap.NewNop()),
		Channel:  ch,
		Limiter:  NewLimiter(time.Minute, 128),
		Archive:  archive,
		Metrics:  m,
		NodeID:   1,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	relay, err := reg.Register(ctx, credential, owner, "secret_inbox_bot", "Secret Inbox")
	require.NoError(t, err)
	require.NoError(t, reg.Activate(ctx, relay.ID))

	return &fixture{engine: engine, db: db, channel: ch, reg: reg, archive: archive, metrics: m, relay: relay}
}

func (f *fixture) send(t *testing.T, text string) (*models.Message, error) {
	t.Helper()
	return f.engine.Forward(context.Background(), Inbound{
		RelayID:    f.relay.ID,
		SenderID:   sender,
		SenderName: "Alice",
		Content:    Content{Text: text, Kind: models.KindText},
	})
}

func (f *fixture) reload(t *testing.T) *models.RelayBot {
	t.Helper()
	r, err := f.reg.Get(context.Background(), f.relay.ID)
	require.NoError(t, err)
	return r
}

func lastText(msgs []platform.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

func TestForwardDeliversToOwner(t *testing.T) {
	f := newFixture(t)

	msg, err := f.send(t, "hello")
	require.NoError(t, err)

	toOwner := f.channel.SentTo(owner)
	require.Len(t, toOwner, 1)
	note := toOwner[0]
	assert.Contains(t, note.Text, "hello")
	assert.Contains(t, note.Text, "id 1")
	assert.Contains(t, note.Text, "@secret_inbox_bot")
	assert.Contains(t, note.Text, "Alice")
	assert.False(t, note.Silent)

	require.Len(t, note.Buttons, 2)
	assert.Equal(t, ProfileURL(sender), note.Buttons[0][0].URL)
	assert.Equal(t, Reply(sender, f.relay.ID).Encode(), note.Buttons[1][0].Data)
	assert.Equal(t, Block(sender, f.relay.ID).Encode(), note.Buttons[1][1].Data)

	assert.Equal(t, textReceived, lastText(f.channel.SentTo(sender)))

	r := f.reload(t)
	assert.Equal(t, int64(1), r.TotalMessages)
	assert.Equal(t, int64(1), r.TotalUsers)
	assert.NotNil(t, r.LastActivity)

	stored, err := f.db.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, sender, stored.FromUserID)
	assert.Equal(t, owner, stored.ToUserID)
	assert.False(t, stored.IsReply())

	assert.Len(t, f.archive.msgs, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MessagesRelayed.WithLabelValues("delivered")))

	stats, err := f.db.GetDailyStats(context.Background(), f.relay.ID, "0000-00-00")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Messages)
	assert.Equal(t, int64(1), stats[0].Senders)
}

func TestForwardCountsUsersOnce(t *testing.T) {
	f := newFixture(t)

	_, err := f.send(t, "one")
	require.NoError(t, err)
	_, err = f.send(t, "two")
	require.NoError(t, err)

	r := f.reload(t)
	assert.Equal(t, int64(2), r.TotalMessages)
	assert.Equal(t, int64(1), r.TotalUsers)
}

func TestForwardAnonymousName(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Forward(context.Background(), Inbound{
		RelayID:  f.relay.ID,
		SenderID: sender,
		Content:  Content{Text: "psst"},
	})
	require.NoError(t, err)
	assert.Contains(t, lastText(f.channel.SentTo(owner)), "anonymous (id 1)")
}

func TestReplyRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.send(t, "hello")
	require.NoError(t, err)

	res, err := f.engine.HandleAction(ctx, owner, Reply(sender, f.relay.ID))
	require.NoError(t, err)
	assert.Equal(t, textReplyStarted, res.Notice)

	tag, err := f.engine.steps.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, models.StepAwaitingReply, tag)

	reply, err := f.engine.CompleteReply(ctx, owner, Content{Text: "hi back", Kind: models.KindText})
	require.NoError(t, err)

	assert.Equal(t, replyPrefix+"hi back", lastText(f.channel.SentTo(sender)))
	assert.Equal(t, textReplySent, lastText(f.channel.SentTo(owner)))

	require.True(t, reply.IsReply())
	assert.Equal(t, first.ID, reply.ReplyTo)
	original, err := f.db.GetMessage(ctx, reply.ReplyTo)
	require.NoError(t, err)
	assert.Equal(t, reply.FromUserID, original.ToUserID)
	assert.Equal(t, reply.ToUserID, original.FromUserID)

	tag, err = f.engine.steps.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, models.StepNone, tag)

	r := f.reload(t)
	assert.Equal(t, int64(1), r.TotalMessages, "replies do not count as inbound messages")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Replies.WithLabelValues("sent")))

	stats, err := f.db.GetDailyStats(ctx, f.relay.ID, "0000-00-00")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Replies)
}

func TestBlockedSenderIsNotDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.send(t, "hello")
	require.NoError(t, err)

	res, err := f.engine.HandleAction(ctx, owner, Block(sender, f.relay.ID))
	require.NoError(t, err)
	assert.Equal(t, textUserBlocked, res.Notice)
	assert.Equal(t, Unblock(sender, f.relay.ID).Encode(), res.Buttons[1][1].Data)

	f.channel.Reset()
	_, err = f.send(t, "are you there?")
	assert.ErrorIs(t, err, ErrRecipientBlocked)

	assert.Equal(t, textSenderBlocked, lastText(f.channel.SentTo(sender)))
	assert.Empty(t, f.channel.SentTo(owner))
	assert.Equal(t, int64(1), f.reload(t).TotalMessages)

	msgs, err := f.db.ListMessages(ctx, f.relay.ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	res, err = f.engine.HandleAction(ctx, owner, Unblock(sender, f.relay.ID))
	require.NoError(t, err)
	assert.Equal(t, textUserUnblocked, res.Notice)

	_, err = f.send(t, "back again")
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BlockChanges.WithLabelValues("block")))
}

func TestBlockIsOwnerOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.HandleAction(context.Background(), stranger, Block(sender, f.relay.ID))
	assert.ErrorIs(t, err, ErrNotOwner)

	blocked, err := f.db.IsBlocked(context.Background(), models.BlockEntry{SenderID: sender, RelayID: f.relay.ID})
	require.NoError(t, err)
	assert.False(t, blocked)

	_, err = f.engine.HandleAction(context.Background(), stranger, Reply(sender, f.relay.ID))
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestReplyToBlockedUserIsAborted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.send(t, "hello")
	require.NoError(t, err)
	_, err = f.engine.HandleAction(ctx, owner, Reply(sender, f.relay.ID))
	require.NoError(t, err)
	_, err = f.engine.HandleAction(ctx, owner, Block(sender, f.relay.ID))
	require.NoError(t, err)

	f.channel.Reset()
	_, err = f.engine.CompleteReply(ctx, owner, Content{Text: "sneaky"})
	assert.ErrorIs(t, err, ErrRecipientBlocked)

	assert.Empty(t, f.channel.SentTo(sender))
	assert.Equal(t, textReplyBlocked, lastText(f.channel.SentTo(owner)))

	tag, err := f.engine.steps.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, models.StepNone, tag)
}

func TestReplyFailureClassification(t *testing.T) {
	tests := []struct {
		name       string
		sendErr    error
		wantNotice string
		wantStatus models.RelayStatus
	}{
		{"unreachable", platform.ErrRecipientUnreachable, textReplyUnreachable, models.StatusActive},
		{"relay unavailable", platform.ErrRelayUnavailable, textReplyUnavailable, models.StatusError},
		{"generic", errors.New("timeout"), textReplyFailed, models.StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.send(t, "hello")
			require.NoError(t, err)
			_, err = f.engine.HandleAction(ctx, owner, Reply(sender, f.relay.ID))
			require.NoError(t, err)

			f.channel.FailSendTo(sender, tt.sendErr)
			_, err = f.engine.CompleteReply(ctx, owner, Content{Text: "hi back"})
			assert.ErrorIs(t, err, tt.sendErr)

			assert.Equal(t, tt.wantNotice, lastText(f.channel.SentTo(owner)))
			assert.Equal(t, tt.wantStatus, f.reload(t).Status)

			tag, err := f.engine.steps.Get(ctx, owner)
			require.NoError(t, err)
			assert.Equal(t, models.StepNone, tag, "a failed reply never leaves the owner mid-flow")

			msgs, err := f.db.ListMessages(ctx, f.relay.ID, 0)
			require.NoError(t, err)
			assert.Len(t, msgs, 1, "failed replies are not recorded")
		})
	}
}

func TestCompleteReplyWithoutStep(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CompleteReply(context.Background(), owner, Content{Text: "hello?"})
	assert.ErrorIs(t, err, ErrStepStateMissing)
	assert.Empty(t, f.channel.All())
}

func TestReplyTargetsMostRecentReplyClick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.send(t, "from one")
	require.NoError(t, err)
	_, err = f.engine.Forward(ctx, Inbound{RelayID: f.relay.ID, SenderID: stranger, Content: Content{Text: "from three"}})
	require.NoError(t, err)

	_, err = f.engine.HandleAction(ctx, owner, Reply(sender, f.relay.ID))
	require.NoError(t, err)
	_, err = f.engine.HandleAction(ctx, owner, Reply(stranger, f.relay.ID))
	require.NoError(t, err)

	reply, err := f.engine.CompleteReply(ctx, owner, Content{Text: "to three"})
	require.NoError(t, err)
	assert.Equal(t, stranger, reply.ToUserID)

	original, err := f.db.GetMessage(ctx, reply.ReplyTo)
	require.NoError(t, err)
	assert.Equal(t, stranger, original.FromUserID)
}

func TestOwnerDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.channel.FailSendTo(owner, platform.ErrRecipientUnreachable)

	_, err := f.send(t, "hello")
	assert.ErrorIs(t, err, platform.ErrRecipientUnreachable)

	assert.Equal(t, textDeliveryFailed, lastText(f.channel.SentTo(sender)))
	assert.Equal(t, int64(0), f.reload(t).TotalMessages)

	msgs, err := f.db.ListMessages(context.Background(), f.relay.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestOwnerDeliveryRelayRevoked(t *testing.T) {
	f := newFixture(t)
	f.channel.FailSendTo(owner, platform.ErrRelayUnavailable)

	_, err := f.send(t, "hello")
	assert.ErrorIs(t, err, platform.ErrRelayUnavailable)
	assert.Equal(t, models.StatusError, f.reload(t).Status)
}

func TestForwardInactiveRelay(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.Deactivate(context.Background(), f.relay.ID))

	_, err := f.send(t, "hello")
	assert.ErrorIs(t, err, platform.ErrRelayUnavailable)
	assert.Equal(t, textRelayPaused, lastText(f.channel.SentTo(sender)))
	assert.Empty(t, f.channel.SentTo(owner))
}

func TestForwardUnknownRelay(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Forward(context.Background(), Inbound{RelayID: "missing", SenderID: sender, Content: Content{Text: "x"}})
	assert.ErrorIs(t, err, platform.ErrRelayUnavailable)
}

func TestForwardSettingsPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.send(t, strings.Repeat("a", registry.DefaultSettings().MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrRejectedContent)

	_, err = f.engine.Forward(ctx, Inbound{
		RelayID:  f.relay.ID,
		SenderID: sender,
		Content: Content{
			Text:       "look",
			Kind:       models.KindPhoto,
			Attachment: &platform.Attachment{FromChatID: sender, MessageID: 11},
		},
	})
	require.NoError(t, err)

	note := f.channel.SentTo(owner)[0]
	assert.Contains(t, note.Text, "[photo] look")
	require.NotNil(t, note.Attachment)
	assert.Equal(t, 11, note.Attachment.MessageID)
}

func TestForwardMediaDisallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.reload(t)
	r.Settings.AllowMedia = false
	r.Settings.NotifyOwner = false
	require.NoError(t, f.db.DeleteRelayBot(ctx, r.ID))
	require.NoError(t, f.db.CreateRelayBot(ctx, r, 0))

	_, err := f.engine.Forward(ctx, Inbound{RelayID: r.ID, SenderID: sender, Content: Content{Kind: models.KindSticker}})
	assert.ErrorIs(t, err, ErrRejectedContent)
	assert.Equal(t, textMediaRejected, lastText(f.channel.SentTo(sender)))

	_, err = f.send(t, "quiet please")
	require.NoError(t, err)
	assert.True(t, f.channel.SentTo(owner)[0].Silent)
}

func TestForwardRateLimited(t *testing.T) {
	f := newFixture(t)
	limit := registry.DefaultSettings().RateLimitPerWindow

	for i := 0; i < limit; i++ {
		_, err := f.send(t, "spam")
		require.NoError(t, err)
	}

	_, err := f.send(t, "one too many")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, textRateLimited, lastText(f.channel.SentTo(sender)))
	assert.Equal(t, int64(limit), f.reload(t).TotalMessages)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	notice, err := f.engine.Cancel(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, textNothingToCancel, notice)

	_, err = f.engine.HandleAction(ctx, owner, Reply(sender, f.relay.ID))
	require.NoError(t, err)

	notice, err = f.engine.Cancel(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, textStepCancelled, notice)

	_, err = f.engine.CompleteReply(ctx, owner, Content{Text: "late"})
	assert.ErrorIs(t, err, ErrStepStateMissing)
}

func TestInboxMarksRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.send(t, text)
		require.NoError(t, err)
	}

	inbox, err := f.engine.Inbox(ctx, owner, f.relay.ID, 2)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, "three", inbox[0].Content)
	assert.False(t, inbox[0].IsRead)

	again, err := f.engine.Inbox(ctx, owner, f.relay.ID, 3)
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.True(t, again[0].IsRead)
	assert.False(t, again[2].IsRead)

	_, err = f.engine.Inbox(ctx, stranger, f.relay.ID, 3)
	assert.ErrorIs(t, err, ErrNotOwner)

	assert.Contains(t, RenderInbox(again), "three")
	assert.Equal(t, "Your inbox is empty.", RenderInbox(nil))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.send(t, "hello")
	require.NoError(t, err)

	stats, err := f.engine.Stats(ctx, owner, f.relay.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Relay.TotalMessages)
	require.Len(t, stats.Daily, 1)
	assert.Equal(t, int64(1), stats.Daily[0].Messages)
	assert.Equal(t, int64(1), stats.Archived[models.DayKey(time.Now())])

	_, err = f.engine.Stats(ctx, stranger, f.relay.ID, 7)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestConcurrentForwardCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(0); i < 10; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _ = f.engine.Forward(ctx, Inbound{RelayID: f.relay.ID, SenderID: 100 + id, Content: Content{Text: "hi"}})
		}(i)
	}
	wg.Wait()

	r := f.reload(t)
	assert.Equal(t, int64(10), r.TotalMessages)
	assert.Equal(t, int64(10), r.TotalUsers)
}

func TestMessageIDsAreOrdered(t *testing.T) {
	f := newFixture(t)

	a, err := f.send(t, "a")
	require.NoError(t, err)
	b, err := f.send(t, "b")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, len(a.ID) < len(b.ID) || (len(a.ID) == len(b.ID) && a.ID < b.ID))
}

func TestRepeatedBlockIsCountedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := f.engine.HandleAction(ctx, owner, Block(sender, f.relay.ID))
		require.NoError(t, err)
		assert.Equal(t, textUserBlocked, res.Notice)
	}

	stats, err := f.db.GetDailyStats(ctx, f.relay.ID, "0000-00-00")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Blocked)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BlockChanges.WithLabelValues("block")))

	for i := 0; i < 2; i++ {
		_, err := f.engine.HandleAction(ctx, owner, Unblock(sender, f.relay.ID))
		require.NoError(t, err)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BlockChanges.WithLabelValues("unblock")))

	// blocking again after an unblock is a new change
	_, err = f.engine.HandleAction(ctx, owner, Block(sender, f.relay.ID))
	require.NoError(t, err)
	stats, err = f.db.GetDailyStats(ctx, f.relay.ID, "0000-00-00")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[0].Blocked)
}

func TestReplyToIsLatestMessageFromSender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.send(t, "older")
	require.NoError(t, err)
	newer, err := f.send(t, "newer")
	require.NoError(t, err)

	// both notifications carry the same Reply control
	notes := f.channel.SentTo(owner)
	require.Len(t, notes, 2)
	assert.Equal(t, notes[0].Buttons[1][0].Data, notes[1].Buttons[1][0].Data)

	_, err = f.engine.HandleAction(ctx, owner, Reply(sender, f.relay.ID))
	require.NoError(t, err)
	reply, err := f.engine.CompleteReply(ctx, owner, Content{Text: "answer"})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, reply.ReplyTo)
}

func TestClearHistoryKeepsCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.send(t, "one")
	require.NoError(t, err)
	_, err = f.send(t, "two")
	require.NoError(t, err)

	_, err = f.engine.ClearHistory(ctx, stranger, f.relay.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	removed, err := f.engine.ClearHistory(ctx, owner, f.relay.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	msgs, err := f.db.ListMessages(ctx, f.relay.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	r := f.reload(t)
	assert.Equal(t, int64(2), r.TotalMessages)
	assert.Equal(t, int64(1), r.TotalUsers)

	stats, err := f.db.GetDailyStats(ctx, f.relay.ID, "0000-00-00")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].Messages)

	// counters keep growing after a clear
	_, err = f.send(t, "three")
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.reload(t).TotalMessages)

	removed, err = f.engine.ClearHistory(ctx, owner, f.relay.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.send(t, "first")
	require.NoError(t, err)
	_, err = f.engine.HandleAction(ctx, owner, Reply(sender, f.relay.ID))
	require.NoError(t, err)
	reply, err := f.engine.CompleteReply(ctx, owner, Content{Text: "answer"})
	require.NoError(t, err)

	_, err = f.engine.Export(ctx, stranger, f.relay.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	data, err := f.engine.Export(ctx, owner, f.relay.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(data), credential)

	var export Export
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, f.relay.ID, export.RelayID)
	assert.Equal(t, "secret_inbox_bot", export.Handle)
	assert.Equal(t, models.MaskCredential(credential), export.Credential)
	assert.Equal(t, string(models.StatusActive), export.Status)
	assert.Equal(t, int64(1), export.TotalMessages)

	require.Len(t, export.Messages, 2)
	assert.Equal(t, first.ID, export.Messages[0].ID)
	assert.Equal(t, "first", export.Messages[0].Content)
	assert.Empty(t, export.Messages[0].ReplyTo)
	assert.Equal(t, reply.ID, export.Messages[1].ID)
	assert.Equal(t, first.ID, export.Messages[1].ReplyTo)
	assert.Equal(t, owner, export.Messages[1].FromUserID)
}

func TestExportEmptyRelay(t *testing.T) {
	f := newFixture(t)

	data, err := f.engine.Export(context.Background(), owner, f.relay.ID)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"messages": []`)
}
