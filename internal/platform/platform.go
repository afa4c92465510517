package platform

import (
	"context"
	"errors"
)

var (
	// ErrRecipientUnreachable is returned when the recipient blocked the bot or never started it
	ErrRecipientUnreachable = errors.New("recipient unreachable")

	// ErrRelayUnavailable is returned when the sending bot itself is revoked or missing
	ErrRelayUnavailable = errors.New("relay unavailable")

	// ErrPlatformRejected is returned when a credential is not accepted by the platform
	ErrPlatformRejected = errors.New("credential rejected by platform")
)

// Button is one inline control. Exactly one of URL or Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

// Attachment references media already held by the platform in the sender's chat
type Attachment struct {
	FromChatID int64
	MessageID  int
}

// Document is a file generated by the service and uploaded with the message
type Document struct {
	Name string
	Data []byte
}

// Message is an outbound message with optional inline controls.
// When Document is set, Text becomes its caption.
type Message struct {
	Text       string
	Buttons    [][]Button
	Silent     bool
	Attachment *Attachment
	Document   *Document
}

// Identity is the public identity of a bot as reported by the platform
type Identity struct {
	ID          int64
	Handle      string
	DisplayName string
}

// Channel is the outbound side of the bot platform
type Channel interface {
	// Send delivers msg to recipientID through the bot that owns credential
	Send(ctx context.Context, credential string, recipientID int64, msg Message) error

	// VerifyCredential confirms the credential is live and returns the bot identity
	VerifyCredential(ctx context.Context, credential string) (*Identity, error)
}
