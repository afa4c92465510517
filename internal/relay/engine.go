package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"motherbot/internal/blocklist"
	"motherbot/internal/metrics"
	"motherbot/internal/models"
	"motherbot/internal/platform"
	"motherbot/internal/registry"
	"motherbot/internal/steps"
	"motherbot/internal/storage"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

var (
	ErrRecipientBlocked = errors.New("recipient is blocked")
	ErrStepStateMissing = errors.New("no pending step for this action")
	ErrRateLimited      = errors.New("rate limited")
	ErrRejectedContent  = errors.New("content rejected by relay settings")
	ErrNotOwner         = errors.New("actor does not own the relay bot")
)

// Deps are the collaborators of the engine. Archive and Metrics are optional.
type Deps struct {
	Store    storage.Storage
	Registry *registry.Registry
	Blocks   *blocklist.BlockList
	Steps    *steps.Tracker
	Channel  platform.Channel
	Limiter  *Limiter
	Archive  storage.Archive
	Metrics  *metrics.Metrics
	NodeID   int64
	Logger   *zap.Logger
}

// Engine routes anonymous messages to owners and owner replies back to senders
type Engine struct {
	store    storage.Storage
	registry *registry.Registry
	blocks   *blocklist.BlockList
	steps    *steps.Tracker
	channel  platform.Channel
	limiter  *Limiter
	archive  storage.Archive
	metrics  *metrics.Metrics
	ids      *snowflake.Node
	logger   *zap.Logger
	now      func() time.Time
}

// ActionResult is what the caller shows after an inline control was used.
// Buttons is non-nil when the notification keyboard should be replaced.
type ActionResult struct {
	Notice  string
	Buttons [][]platform.Button
}

func NewEngine(d Deps) (*Engine, error) {
	node, err := snowflake.NewNode(d.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	limiter := d.Limiter
	if limiter == nil {
		limiter = NewLimiter(0, 1)
	}
	return &Engine{
		store:    d.Store,
		registry: d.Registry,
		blocks:   d.Blocks,
		steps:    d.Steps,
		channel:  d.Channel,
		limiter:  limiter,
		archive:  d.Archive,
		metrics:  d.Metrics,
		ids:      node,
		logger:   d.Logger,
		now:      time.Now,
	}, nil
}

// Forward delivers an inbound message to the relay owner.
// Order: relay status, block list, rate limit, content policy, owner delivery, bookkeeping.
func (e *Engine) Forward(ctx context.Context, in Inbound) (*models.Message, error) {
	relay, err := e.registry.Get(ctx, in.RelayID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", platform.ErrRelayUnavailable, in.RelayID)
		}
		return nil, fmt.Errorf("failed to load relay bot: %w", err)
	}

	if relay.Status != models.StatusActive {
		e.notify(ctx, relay, in.SenderID, textRelayPaused)
		e.countRelayed("inactive")
		return nil, platform.ErrRelayUnavailable
	}

	blocked, err := e.blocks.IsBlocked(ctx, in.SenderID, relay.ID)
	if err != nil {
		e.notify(ctx, relay, in.SenderID, textTryAgainLater)
		return nil, err
	}
	if blocked {
		e.notify(ctx, relay, in.SenderID, textSenderBlocked)
		e.countRelayed("blocked")
		return nil, ErrRecipientBlocked
	}

	if !e.limiter.Allow(relay.ID, in.SenderID, relay.Settings.RateLimitPerWindow) {
		e.notify(ctx, relay, in.SenderID, textRateLimited)
		e.countRelayed("rate_limited")
		return nil, ErrRateLimited
	}

	if notice := checkPolicy(relay.Settings, in.Content); notice != "" {
		e.notify(ctx, relay, in.SenderID, notice)
		e.countRelayed("rejected")
		return nil, ErrRejectedContent
	}

	now := e.now()
	msg := &models.Message{
		ID:         e.ids.Generate().String(),
		RelayID:    relay.ID,
		FromUserID: in.SenderID,
		ToUserID:   relay.OwnerID,
		Content:    summarize(in.Kind, in.Text),
		Kind:       kindOrText(in.Kind),
		Timestamp:  now,
	}

	notification := platform.Message{
		Text:       renderNotification(relay, in, now),
		Buttons:    NotificationButtons(in.SenderID, relay.ID, false),
		Silent:     !relay.Settings.NotifyOwner,
		Attachment: in.Attachment,
	}

	if err := e.channel.Send(ctx, relay.Credential, relay.OwnerID, notification); err != nil {
		e.logger.Warn("Owner delivery failed",
			zap.String("relay_id", relay.ID),
			zap.Int64("sender_id", in.SenderID),
			zap.Error(err))
		if errors.Is(err, platform.ErrRelayUnavailable) {
			e.markError(ctx, relay.ID)
		}
		e.notify(ctx, relay, in.SenderID, textDeliveryFailed)
		e.countRelayed("failed")
		return nil, fmt.Errorf("failed to deliver to owner: %w", err)
	}

	recordErr := e.recordInbound(ctx, relay, msg)
	e.notify(ctx, relay, in.SenderID, textReceived)
	e.countRelayed("delivered")
	return msg, recordErr
}

func (e *Engine) recordInbound(ctx context.Context, relay *models.RelayBot, msg *models.Message) error {
	if err := e.store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}

	first, err := e.store.TouchRelaySender(ctx, relay.ID, msg.FromUserID)
	if err != nil {
		e.logger.Error("Failed to track sender", zap.String("relay_id", relay.ID), zap.Error(err))
	}
	var users int64
	if first {
		users = 1
	}

	if err := e.registry.RecordActivity(ctx, relay.ID, 1, users); err != nil {
		return err
	}

	day := models.DayKey(msg.Timestamp)
	if err := e.store.IncrementDailyStat(ctx, relay.ID, day, models.StatMessages, 1); err != nil {
		e.logger.Error("Failed to update daily stats", zap.String("relay_id", relay.ID), zap.Error(err))
	}
	if first {
		if err := e.store.IncrementDailyStat(ctx, relay.ID, day, models.StatSenders, 1); err != nil {
			e.logger.Error("Failed to update daily stats", zap.String("relay_id", relay.ID), zap.Error(err))
		}
	}

	e.archiveMessage(ctx, msg)
	return nil
}

// HandleAction executes Reply, Block and Unblock controls pressed by actorID
func (e *Engine) HandleAction(ctx context.Context, actorID int64, action CallbackAction) (*ActionResult, error) {
	switch action.Kind {
	case ActionReply:
		return e.BeginReply(ctx, actorID, action.SenderID, action.RelayID)
	case ActionBlock:
		return e.SetBlocked(ctx, actorID, action.SenderID, action.RelayID, true)
	case ActionUnblock:
		return e.SetBlocked(ctx, actorID, action.SenderID, action.RelayID, false)
	default:
		return nil, fmt.Errorf("%w: %s is not a relay action", ErrBadCallback, action.Kind)
	}
}

// BeginReply puts the owner into awaiting_reply for senderID
func (e *Engine) BeginReply(ctx context.Context, ownerID, senderID int64, relayID string) (*ActionResult, error) {
	relay, err := e.authorize(ctx, ownerID, relayID)
	if err != nil {
		return nil, err
	}

	// every key is written so a merge never keeps a previous target's reply_to
	data := map[string]string{
		models.StepKeyTargetUserID: strconv.FormatInt(senderID, 10),
		models.StepKeyRelayID:      relay.ID,
		models.StepKeyReplyTo:      "",
	}
	if last, err := e.store.LastMessageFrom(ctx, relay.ID, senderID, relay.OwnerID); err == nil {
		data[models.StepKeyReplyTo] = last.ID
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to find message to reply to: %w", err)
	}

	if err := e.steps.Set(ctx, ownerID, models.StepAwaitingReply, data); err != nil {
		return nil, err
	}

	e.notify(ctx, relay, ownerID, fmt.Sprintf(textReplyPrompt, fmt.Sprintf("id %d", senderID)))
	return &ActionResult{Notice: textReplyStarted}, nil
}

// CompleteReply sends the owner's next message to the tracked sender.
// The step is cleared whatever the outcome.
func (e *Engine) CompleteReply(ctx context.Context, ownerID int64, content Content) (*models.Message, error) {
	st, err := e.steps.State(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if st == nil || st.Tag != models.StepAwaitingReply {
		return nil, ErrStepStateMissing
	}
	defer func() {
		if err := e.steps.Clear(ctx, ownerID); err != nil {
			e.logger.Error("Failed to clear reply step", zap.Int64("owner_id", ownerID), zap.Error(err))
		}
	}()

	targetID, err := strconv.ParseInt(st.Data[models.StepKeyTargetUserID], 10, 64)
	if err != nil || st.Data[models.StepKeyRelayID] == "" {
		return nil, ErrStepStateMissing
	}

	relay, err := e.authorize(ctx, ownerID, st.Data[models.StepKeyRelayID])
	if err != nil {
		e.countReply("unavailable")
		return nil, err
	}

	blocked, err := e.blocks.IsBlocked(ctx, targetID, relay.ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		e.notify(ctx, relay, ownerID, textReplyBlocked)
		e.countReply("blocked")
		return nil, ErrRecipientBlocked
	}

	if relay.Status != models.StatusActive {
		e.notify(ctx, relay, ownerID, textReplyUnavailable)
		e.countReply("unavailable")
		return nil, platform.ErrRelayUnavailable
	}

	out := platform.Message{
		Text:       replyPrefix + content.Text,
		Attachment: content.Attachment,
	}
	if err := e.channel.Send(ctx, relay.Credential, targetID, out); err != nil {
		e.logger.Warn("Reply delivery failed",
			zap.String("relay_id", relay.ID),
			zap.Int64("target_id", targetID),
			zap.Error(err))
		switch {
		case errors.Is(err, platform.ErrRecipientUnreachable):
			e.notify(ctx, relay, ownerID, textReplyUnreachable)
			e.countReply("unreachable")
		case errors.Is(err, platform.ErrRelayUnavailable):
			e.markError(ctx, relay.ID)
			e.notify(ctx, relay, ownerID, textReplyUnavailable)
			e.countReply("unavailable")
		default:
			e.notify(ctx, relay, ownerID, textReplyFailed)
			e.countReply("failed")
		}
		return nil, fmt.Errorf("failed to deliver reply: %w", err)
	}

	replyTo := st.Data[models.StepKeyReplyTo]
	if replyTo == "" {
		if last, err := e.store.LastMessageFrom(ctx, relay.ID, targetID, ownerID); err == nil {
			replyTo = last.ID
		}
	}

	now := e.now()
	msg := &models.Message{
		ID:         e.ids.Generate().String(),
		RelayID:    relay.ID,
		FromUserID: ownerID,
		ToUserID:   targetID,
		Content:    summarize(content.Kind, content.Text),
		Kind:       kindOrText(content.Kind),
		Timestamp:  now,
		IsRead:     true,
		ReplyTo:    replyTo,
	}

	recordErr := e.recordReply(ctx, relay, msg)
	e.notify(ctx, relay, ownerID, textReplySent)
	e.countReply("sent")
	return msg, recordErr
}

func (e *Engine) recordReply(ctx context.Context, relay *models.RelayBot, msg *models.Message) error {
	if err := e.store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to record reply: %w", err)
	}
	if err := e.registry.RecordActivity(ctx, relay.ID, 0, 0); err != nil {
		e.logger.Error("Failed to stamp relay activity", zap.String("relay_id", relay.ID), zap.Error(err))
	}
	if err := e.store.IncrementDailyStat(ctx, relay.ID, models.DayKey(msg.Timestamp), models.StatReplies, 1); err != nil {
		e.logger.Error("Failed to update daily stats", zap.String("relay_id", relay.ID), zap.Error(err))
	}
	e.archiveMessage(ctx, msg)
	return nil
}

// SetBlocked blocks or unblocks senderID on the relay. Only the owner may do this.
func (e *Engine) SetBlocked(ctx context.Context, actorID, senderID int64, relayID string, blocked bool) (*ActionResult, error) {
	relay, err := e.authorize(ctx, actorID, relayID)
	if err != nil {
		return nil, err
	}

	notice := textUserUnblocked
	action := "unblock"
	var changed bool
	if blocked {
		notice = textUserBlocked
		action = "block"
		changed, err = e.blocks.Block(ctx, senderID, relay.ID)
	} else {
		changed, err = e.blocks.Unblock(ctx, senderID, relay.ID)
	}
	if err != nil {
		return nil, err
	}

	// repeated clicks leave the list as it was and are not counted
	if changed {
		if blocked {
			if err := e.store.IncrementDailyStat(ctx, relay.ID, models.DayKey(e.now()), models.StatBlocked, 1); err != nil {
				e.logger.Error("Failed to update daily stats", zap.String("relay_id", relay.ID), zap.Error(err))
			}
		}
		if e.metrics != nil {
			e.metrics.BlockChanges.WithLabelValues(action).Inc()
		}
		e.logger.Info("Block list changed",
			zap.String("relay_id", relay.ID),
			zap.Int64("sender_id", senderID),
			zap.String("action", action))
	}

	return &ActionResult{
		Notice:  notice,
		Buttons: NotificationButtons(senderID, relay.ID, blocked),
	}, nil
}

// Cancel clears any pending step of the actor and reports the notice to show
func (e *Engine) Cancel(ctx context.Context, actorID int64) (string, error) {
	tag, err := e.steps.Get(ctx, actorID)
	if err != nil {
		return "", err
	}
	if err := e.steps.Clear(ctx, actorID); err != nil {
		return "", err
	}
	if tag == models.StepNone {
		return textNothingToCancel, nil
	}
	return textStepCancelled, nil
}

// Inbox returns the owner's latest inbound messages on a relay and marks them read
func (e *Engine) Inbox(ctx context.Context, ownerID int64, relayID string, limit int) ([]models.Message, error) {
	relay, err := e.authorize(ctx, ownerID, relayID)
	if err != nil {
		return nil, err
	}

	all, err := e.store.ListMessages(ctx, relay.ID, limit*2)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var inbox []models.Message
	var unread []string
	for _, m := range all {
		if m.ToUserID != ownerID {
			continue
		}
		inbox = append(inbox, m)
		if !m.IsRead {
			unread = append(unread, m.ID)
		}
		if len(inbox) == limit {
			break
		}
	}

	if err := e.store.MarkRead(ctx, unread); err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return inbox, nil
}

// RelayStats is the per relay summary shown by /stats
type RelayStats struct {
	Relay    models.RelayBot
	Daily    []models.DailyStat
	Archived map[string]int64
}

// Stats returns counters and the last days of aggregates for an owned relay
func (e *Engine) Stats(ctx context.Context, ownerID int64, relayID string, days int) (*RelayStats, error) {
	relay, err := e.authorize(ctx, ownerID, relayID)
	if err != nil {
		return nil, err
	}

	if days < 1 {
		days = 1
	}
	since := e.now().AddDate(0, 0, -(days - 1))
	daily, err := e.store.GetDailyStats(ctx, relay.ID, models.DayKey(since))
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}

	stats := &RelayStats{Relay: *relay, Daily: daily}
	if e.archive != nil {
		archived, err := e.archive.CountMessagesByDay(ctx, relay.ID, since.UTC().Truncate(24*time.Hour))
		if err != nil {
			e.logger.Warn("Archive query failed", zap.String("relay_id", relay.ID), zap.Error(err))
		} else {
			stats.Archived = archived
		}
	}
	return stats, nil
}

// Owns reports whether actorID owns the relay
func (e *Engine) Owns(ctx context.Context, actorID int64, relayID string) bool {
	_, err := e.authorize(ctx, actorID, relayID)
	return err == nil
}

func (e *Engine) authorize(ctx context.Context, actorID int64, relayID string) (*models.RelayBot, error) {
	relay, err := e.registry.Get(ctx, relayID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", platform.ErrRelayUnavailable, relayID)
		}
		return nil, fmt.Errorf("failed to load relay bot: %w", err)
	}
	if relay.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	return relay, nil
}

// notify sends a plain notice through the relay bot. Failures are only logged.
func (e *Engine) notify(ctx context.Context, relay *models.RelayBot, recipientID int64, text string) {
	if err := e.channel.Send(ctx, relay.Credential, recipientID, platform.Message{Text: text}); err != nil {
		e.logger.Debug("Notice not delivered",
			zap.String("relay_id", relay.ID),
			zap.Int64("recipient_id", recipientID),
			zap.Error(err))
	}
}

func (e *Engine) markError(ctx context.Context, relayID string) {
	if err := e.registry.MarkError(ctx, relayID); err != nil {
		e.logger.Error("Failed to mark relay bot as error", zap.String("relay_id", relayID), zap.Error(err))
	}
}

func (e *Engine) archiveMessage(ctx context.Context, msg *models.Message) {
	if e.archive == nil {
		return
	}
	if err := e.archive.ArchiveMessage(ctx, msg); err != nil {
		e.logger.Warn("Failed to archive message", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (e *Engine) countRelayed(result string) {
	if e.metrics != nil {
		e.metrics.MessagesRelayed.WithLabelValues(result).Inc()
	}
}

func (e *Engine) countReply(result string) {
	if e.metrics != nil {
		e.metrics.Replies.WithLabelValues(result).Inc()
	}
}

// checkPolicy returns a notice for content the relay settings reject
func checkPolicy(s models.RelaySettings, c Content) string {
	kind := kindOrText(c.Kind)
	if kind != models.KindText && !s.AllowMedia {
		return textMediaRejected
	}
	if s.MaxMessageLength > 0 && utf8.RuneCountInString(c.Text) > s.MaxMessageLength {
		return fmt.Sprintf(textTooLong, s.MaxMessageLength)
	}
	return ""
}

func kindOrText(k models.MessageKind) models.MessageKind {
	if k == "" {
		return models.KindText
	}
	return k
}
