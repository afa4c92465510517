package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// ExportFileName is the name of the document produced by Export
const ExportFileName = "export.json"

// Export is the owner's copy of a relay's history
type Export struct {
	RelayID       string            `json:"relay_id"`
	Handle        string            `json:"handle"`
	Credential    string            `json:"credential"`
	Status        string            `json:"status"`
	TotalMessages int64             `json:"total_messages"`
	TotalUsers    int64             `json:"total_users"`
	ExportedAt    time.Time         `json:"exported_at"`
	Messages      []ExportedMessage `json:"messages"`
}

// ExportedMessage is one stored message in an Export
type ExportedMessage struct {
	ID         string    `json:"id"`
	FromUserID int64     `json:"from_user_id"`
	ToUserID   int64     `json:"to_user_id"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
	ReplyTo    string    `json:"reply_to,omitempty"`
}

// Export renders every stored message of an owned relay as JSON, oldest first.
// The credential only appears masked.
func (e *Engine) Export(ctx context.Context, ownerID int64, relayID string) ([]byte, error) {
	relay, err := e.authorize(ctx, ownerID, relayID)
	if err != nil {
		return nil, err
	}

	msgs, err := e.store.ListMessages(ctx, relay.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	slices.Reverse(msgs)

	out := Export{
		RelayID:       relay.ID,
		Handle:        relay.PublicHandle,
		Credential:    relay.MaskedCredential(),
		Status:        string(relay.Status),
		TotalMessages: relay.TotalMessages,
		TotalUsers:    relay.TotalUsers,
		ExportedAt:    e.now().UTC(),
		Messages:      make([]ExportedMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, ExportedMessage{
			ID:         m.ID,
			FromUserID: m.FromUserID,
			ToUserID:   m.ToUserID,
			Kind:       string(m.Kind),
			Content:    m.Content,
			Timestamp:  m.Timestamp.UTC(),
			IsRead:     m.IsRead,
			ReplyTo:    m.ReplyTo,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	e.logger.Info("Relay history exported",
		zap.String("relay_id", relay.ID),
		zap.Int("messages", len(out.Messages)))
	return data, nil
}

// ClearHistory deletes the stored messages of an owned relay.
// Lifetime counters and daily stats are kept.
func (e *Engine) ClearHistory(ctx context.Context, ownerID int64, relayID string) (int, error) {
	relay, err := e.authorize(ctx, ownerID, relayID)
	if err != nil {
		return 0, err
	}

	removed, err := e.store.DeleteMessages(ctx, relay.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear messages: %w", err)
	}
	e.logger.Info("Relay history cleared",
		zap.String("relay_id", relay.ID),
		zap.Int("messages", removed))
	return removed, nil
}
