package stubs

import (
	"context"
	"sync"

	"motherbot/internal/platform"
)

// Sent is one message captured by Channel
type Sent struct {
	Credential  string
	RecipientID int64
	Message     platform.Message
}

// Channel is an in-memory platform.Channel for tests
type Channel struct {
	mu         sync.Mutex
	sent       []Sent
	identities map[string]platform.Identity
	sendErrors map[int64]error
	verifyErr  error
	verifies   int
}

// NewChannel creates an empty fake channel
func NewChannel() *Channel {
	return &Channel{
		identities: make(map[string]platform.Identity),
		sendErrors: make(map[int64]error),
	}
}

// AddIdentity makes credential verify as identity
func (c *Channel) AddIdentity(credential string, identity platform.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identities[credential] = identity
}

// FailVerify makes every VerifyCredential call fail with err
func (c *Channel) FailVerify(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifyErr = err
}

// FailSendTo makes Send to recipientID fail with err. A nil err clears it.
func (c *Channel) FailSendTo(recipientID int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.sendErrors, recipientID)
		return
	}
	c.sendErrors[recipientID] = err
}

// Send records msg unless a failure is configured for the recipient
func (c *Channel) Send(ctx context.Context, credential string, recipientID int64, msg platform.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.sendErrors[recipientID]; ok {
		return err
	}
	c.sent = append(c.sent, Sent{Credential: credential, RecipientID: recipientID, Message: msg})
	return nil
}

// VerifyCredential returns the registered identity or ErrPlatformRejected
func (c *Channel) VerifyCredential(ctx context.Context, credential string) (*platform.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.verifies++
	if c.verifyErr != nil {
		return nil, c.verifyErr
	}
	id, ok := c.identities[credential]
	if !ok {
		return nil, platform.ErrPlatformRejected
	}
	return &id, nil
}

// SentTo returns the messages delivered to recipientID in order
func (c *Channel) SentTo(recipientID int64) []platform.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []platform.Message
	for _, s := range c.sent {
		if s.RecipientID == recipientID {
			out = append(out, s.Message)
		}
	}
	return out
}

// All returns every captured message
func (c *Channel) All() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Verifies reports how many VerifyCredential calls were made
func (c *Channel) Verifies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifies
}

// Reset forgets captured messages
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}
