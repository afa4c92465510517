package storage

import (
	"context"
	"errors"
	"time"

	"motherbot/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateCredential is returned when a relay credential is already registered
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrQuotaExceeded is returned when an owner already owns the maximum number of relay bots
	ErrQuotaExceeded = errors.New("relay bot quota exceeded")
)

// Storage defines the interface for record store operations
type Storage interface {
	// User operations
	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	AddUserRelay(ctx context.Context, userID int64, relayID string) error

	// Relay bot operations

	// CreateRelayBot inserts the relay bot only if the credential is unused and the owner
	// holds fewer than maxPerOwner relay bots. Both checks and the insert are one atomic step.
	CreateRelayBot(ctx context.Context, bot *models.RelayBot, maxPerOwner int) error
	GetRelayBot(ctx context.Context, id string) (*models.RelayBot, error)
	GetRelayBotByCredential(ctx context.Context, credential string) (*models.RelayBot, error)
	ListRelayBotsByOwner(ctx context.Context, ownerID int64) ([]models.RelayBot, error)
	ListRelayBotsByStatus(ctx context.Context, status models.RelayStatus) ([]models.RelayBot, error)
	CountRelayBotsByOwner(ctx context.Context, ownerID int64) (int, error)
	SetRelayBotStatus(ctx context.Context, id string, status models.RelayStatus) error
	DeleteRelayBot(ctx context.Context, id string) error

	// RecordRelayActivity atomically increments counters and stamps last_activity
	RecordRelayActivity(ctx context.Context, id string, messagesDelta, usersDelta int64, at time.Time) error

	// TouchRelaySender records that senderID wrote to the relay and reports whether it is the first time
	TouchRelaySender(ctx context.Context, relayID string, senderID int64) (bool, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// LastMessageFrom returns the newest message sent by fromID to toID through the relay
	LastMessageFrom(ctx context.Context, relayID string, fromID, toID int64) (*models.Message, error)
	ListMessages(ctx context.Context, relayID string, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, ids []string) error
	// DeleteMessages removes every stored message of the relay. Relay counters are untouched.
	DeleteMessages(ctx context.Context, relayID string) (int, error)

	// Block list operations. AddBlock and RemoveBlock report whether the entry changed.
	AddBlock(ctx context.Context, entry models.BlockEntry) (bool, error)
	RemoveBlock(ctx context.Context, entry models.BlockEntry) (bool, error)
	IsBlocked(ctx context.Context, entry models.BlockEntry) (bool, error)

	// Step state operations

	// SetStep replaces the tag. Data is merged into the existing bag when the tag is
	// unchanged and replaces it otherwise.
	SetStep(ctx context.Context, state *models.StepState) error
	// GetStep returns ErrNotFound when the actor has no unexpired step
	GetStep(ctx context.Context, actorID int64, now time.Time) (*models.StepState, error)
	ClearStep(ctx context.Context, actorID int64) error
	DeleteExpiredSteps(ctx context.Context, now time.Time) (int, error)

	// Statistics operations
	IncrementDailyStat(ctx context.Context, relayID, day, field string, delta int64) error
	// GetDailyStats returns aggregates for days >= sinceDay, newest first
	GetDailyStats(ctx context.Context, relayID, sinceDay string) ([]models.DailyStat, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// Archive is an append-only sink for relayed messages used for analytics
type Archive interface {
	ArchiveMessage(ctx context.Context, msg *models.Message) error
	// CountMessagesByDay returns message counts per day for the relay since the given time
	CountMessagesByDay(ctx context.Context, relayID string, since time.Time) (map[string]int64, error)
	Close() error
}
