package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"motherbot/internal/models"
	"motherbot/internal/platform"
	"motherbot/internal/registry"
	"motherbot/internal/storage"

	"go.uber.org/zap"
)

// Kind classifies a failed provisioning attempt
type Kind string

const (
	KindInvalidFormat    Kind = "invalid_format"
	KindPlatformRejected Kind = "platform_rejected"
	KindDuplicate        Kind = "duplicate"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindInternal         Kind = "internal"
)

// Error is returned by Provision for every expected failure
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provisioning failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("provisioning failed (%s)", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a provisioning error, KindInternal for anything else
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Launcher starts the update loop of a relay bot
type Launcher interface {
	Launch(ctx context.Context, relay *models.RelayBot) error
}

const minSecretLength = 10

// ValidateFormat is a syntactic pre-filter: "<digits>:<secret>" where the secret
// is at least ten characters of letters, digits, '_' or '-'.
func ValidateFormat(credential string) bool {
	parts := strings.Split(credential, ":")
	if len(parts) != 2 {
		return false
	}
	id, secret := parts[0], parts[1]
	if id == "" || len(secret) < minSecretLength {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	for _, c := range secret {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// Engine turns a candidate credential into an active relay bot
type Engine struct {
	registry *registry.Registry
	store    storage.Storage
	channel  platform.Channel
	launcher Launcher
	logger   *zap.Logger
}

func NewEngine(reg *registry.Registry, store storage.Storage, channel platform.Channel, launcher Launcher, logger *zap.Logger) *Engine {
	return &Engine{
		registry: reg,
		store:    store,
		channel:  channel,
		launcher: launcher,
		logger:   logger,
	}
}

// VerifyWithPlatform returns the bot identity, or nil for any rejection, timeout or transport error
func (e *Engine) VerifyWithPlatform(ctx context.Context, credential string) *platform.Identity {
	identity, err := e.channel.VerifyCredential(ctx, credential)
	if err != nil {
		e.logger.Info("Credential not verified",
			zap.String("credential", models.MaskCredential(credential)),
			zap.Error(err))
		return nil
	}
	return identity
}

// Provision runs format, duplicate and quota checks before the platform call,
// then registers and activates the relay bot. A failed activation removes the record.
func (e *Engine) Provision(ctx context.Context, credential string, ownerID int64) (*models.RelayBot, error) {
	credential = strings.TrimSpace(credential)

	if !ValidateFormat(credential) {
		return nil, &Error{Kind: KindInvalidFormat}
	}

	if _, err := e.store.GetRelayBotByCredential(ctx, credential); err == nil {
		return nil, &Error{Kind: KindDuplicate, Err: storage.ErrDuplicateCredential}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, &Error{Kind: KindInternal, Err: err}
	}

	if limit := e.registry.MaxPerOwner(); limit > 0 {
		count, err := e.store.CountRelayBotsByOwner(ctx, ownerID)
		if err != nil {
			return nil, &Error{Kind: KindInternal, Err: err}
		}
		if count >= limit {
			return nil, &Error{Kind: KindQuotaExceeded, Err: storage.ErrQuotaExceeded}
		}
	}

	identity := e.VerifyWithPlatform(ctx, credential)
	if identity == nil {
		return nil, &Error{Kind: KindPlatformRejected, Err: platform.ErrPlatformRejected}
	}

	bot, err := e.registry.Register(ctx, credential, ownerID, identity.Handle, identity.DisplayName)
	switch {
	case errors.Is(err, storage.ErrDuplicateCredential):
		return nil, &Error{Kind: KindDuplicate, Err: err}
	case errors.Is(err, storage.ErrQuotaExceeded):
		return nil, &Error{Kind: KindQuotaExceeded, Err: err}
	case err != nil:
		return nil, &Error{Kind: KindInternal, Err: err}
	}

	if err := e.activate(ctx, bot); err != nil {
		e.logger.Error("Relay bot activation failed, rolling back",
			zap.String("relay_id", bot.ID),
			zap.Error(err))
		if delErr := e.registry.Delete(ctx, bot.ID); delErr != nil {
			e.logger.Error("Failed to roll back relay bot", zap.String("relay_id", bot.ID), zap.Error(delErr))
		}
		return nil, &Error{Kind: KindInternal, Err: err}
	}

	bot.Status = models.StatusActive
	return bot, nil
}

func (e *Engine) activate(ctx context.Context, bot *models.RelayBot) error {
	if err := e.registry.Activate(ctx, bot.ID); err != nil {
		return err
	}
	if e.launcher == nil {
		return nil
	}
	active := *bot
	active.Status = models.StatusActive
	if err := e.launcher.Launch(ctx, &active); err != nil {
		return fmt.Errorf("failed to launch relay bot: %w", err)
	}
	return nil
}
