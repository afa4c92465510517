package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"motherbot/internal/models"
	"motherbot/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// relayNamespace scopes relay ids derived with uuid.NewSHA1
var relayNamespace = uuid.MustParse("6f0c3d4e-9a47-4a8c-8d8b-2f5b1e7c9a10")

// DefaultSettings returns the settings applied to newly registered relay bots
func DefaultSettings() models.RelaySettings {
	return models.RelaySettings{
		WelcomeText:        "Hi! Send a message and it will be delivered anonymously.",
		MaxMessageLength:   4000,
		AllowMedia:         true,
		NotifyOwner:        true,
		RateLimitPerWindow: 20,
	}
}

// RelayID derives a stable relay id from the credential, owner and creation time
func RelayID(credential string, ownerID int64, created time.Time) string {
	seed := credential + "|" + strconv.FormatInt(ownerID, 10) + "|" + strconv.FormatInt(created.UnixNano(), 10)
	return uuid.NewSHA1(relayNamespace, []byte(seed)).String()
}

// Registry owns the set of provisioned relay bots
type Registry struct {
	store       storage.Storage
	maxPerOwner int
	defaults    models.RelaySettings
	logger      *zap.Logger
	now         func() time.Time
}

func New(store storage.Storage, maxPerOwner int, defaults models.RelaySettings, logger *zap.Logger) *Registry {
	return &Registry{
		store:       store,
		maxPerOwner: maxPerOwner,
		defaults:    defaults,
		logger:      logger,
		now:         time.Now,
	}
}

// MaxPerOwner is the configured quota
func (r *Registry) MaxPerOwner() int {
	return r.maxPerOwner
}

// Register stores a pending relay bot. The quota and credential checks are part of the insert.
func (r *Registry) Register(ctx context.Context, credential string, ownerID int64, handle, displayName string) (*models.RelayBot, error) {
	created := r.now()
	bot := &models.RelayBot{
		ID:           RelayID(credential, ownerID, created),
		Credential:   credential,
		OwnerID:      ownerID,
		PublicHandle: handle,
		DisplayName:  displayName,
		CreatedAt:    created,
		Status:       models.StatusPending,
		Settings:     r.defaults,
	}

	if err := r.store.CreateRelayBot(ctx, bot, r.maxPerOwner); err != nil {
		return nil, err
	}

	if err := r.attachToOwner(ctx, ownerID, bot.ID); err != nil {
		if delErr := r.store.DeleteRelayBot(ctx, bot.ID); delErr != nil {
			r.logger.Error("Failed to roll back relay bot", zap.String("relay_id", bot.ID), zap.Error(delErr))
		}
		return nil, err
	}

	r.logger.Info("Relay bot registered",
		zap.String("relay_id", bot.ID),
		zap.Int64("owner_id", ownerID),
		zap.String("credential", bot.MaskedCredential()))
	return bot, nil
}

func (r *Registry) attachToOwner(ctx context.Context, ownerID int64, relayID string) error {
	err := r.store.AddUserRelay(ctx, ownerID, relayID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := r.store.UpsertUser(ctx, &models.User{ID: ownerID}); err != nil {
			return fmt.Errorf("failed to create owner: %w", err)
		}
		err = r.store.AddUserRelay(ctx, ownerID, relayID)
	}
	if err != nil {
		return fmt.Errorf("failed to attach relay bot to owner: %w", err)
	}
	return nil
}

func (r *Registry) setStatus(ctx context.Context, id string, status models.RelayStatus) error {
	if err := r.store.SetRelayBotStatus(ctx, id, status); err != nil {
		return fmt.Errorf("failed to set relay bot %s: %w", status, err)
	}
	r.logger.Info("Relay bot status changed", zap.String("relay_id", id), zap.String("status", string(status)))
	return nil
}

func (r *Registry) Activate(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.StatusActive)
}

// Deactivate is safe to call on an inactive relay bot
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.StatusInactive)
}

func (r *Registry) MarkError(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.StatusError)
}

func (r *Registry) Suspend(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.StatusSuspended)
}

// Get returns storage.ErrNotFound for unknown ids
func (r *Registry) Get(ctx context.Context, id string) (*models.RelayBot, error) {
	return r.store.GetRelayBot(ctx, id)
}

// ListByOwner returns the owner's relay bots newest first, ties broken by id
func (r *Registry) ListByOwner(ctx context.Context, ownerID int64) ([]models.RelayBot, error) {
	relays, err := r.store.ListRelayBotsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relay bots: %w", err)
	}
	return relays, nil
}

// ListActive returns every relay bot that should be running
func (r *Registry) ListActive(ctx context.Context) ([]models.RelayBot, error) {
	relays, err := r.store.ListRelayBotsByStatus(ctx, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active relay bots: %w", err)
	}
	return relays, nil
}

// RecordActivity increments counters and stamps last activity in one store update
func (r *Registry) RecordActivity(ctx context.Context, id string, messagesDelta, usersDelta int64) error {
	if err := r.store.RecordRelayActivity(ctx, id, messagesDelta, usersDelta, r.now()); err != nil {
		return fmt.Errorf("failed to record relay activity: %w", err)
	}
	return nil
}

// Delete removes the relay bot and frees its quota slot
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteRelayBot(ctx, id); err != nil {
		return fmt.Errorf("failed to delete relay bot: %w", err)
	}
	r.logger.Info("Relay bot deleted", zap.String("relay_id", id))
	return nil
}
