package blocklist

import (
	"context"
	"fmt"

	"motherbot/internal/models"
	"motherbot/internal/storage"
)

// BlockList is the set of (sender, relay) pairs denied from sending.
// It performs no authorization; callers check ownership first.
type BlockList struct {
	store storage.Storage
}

func New(store storage.Storage) *BlockList {
	return &BlockList{store: store}
}

// IsBlocked reports whether sender may not write through relay
func (b *BlockList) IsBlocked(ctx context.Context, senderID int64, relayID string) (bool, error) {
	blocked, err := b.store.IsBlocked(ctx, models.BlockEntry{SenderID: senderID, RelayID: relayID})
	if err != nil {
		return false, fmt.Errorf("failed to check block list: %w", err)
	}
	return blocked, nil
}

// Block is idempotent. It reports false when the sender was already blocked.
func (b *BlockList) Block(ctx context.Context, senderID int64, relayID string) (bool, error) {
	added, err := b.store.AddBlock(ctx, models.BlockEntry{SenderID: senderID, RelayID: relayID})
	if err != nil {
		return false, fmt.Errorf("failed to block sender: %w", err)
	}
	return added, nil
}

// Unblock is idempotent. It reports false when the sender was not blocked.
func (b *BlockList) Unblock(ctx context.Context, senderID int64, relayID string) (bool, error) {
	removed, err := b.store.RemoveBlock(ctx, models.BlockEntry{SenderID: senderID, RelayID: relayID})
	if err != nil {
		return false, fmt.Errorf("failed to unblock sender: %w", err)
	}
	return removed, nil
}
