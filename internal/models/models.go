package models

import (
	"strings"
	"time"
)

// Role is the platform-wide role of a user
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleBanned Role = "banned"
)

// User is anyone who has contacted the mother bot or a relay bot
type User struct {
	ID          int64
	DisplayName string
	Username    string
	Role        Role
	CreatedAt   time.Time
	RelayIDs    []string
}

// RelayStatus is the lifecycle status of a provisioned relay bot
type RelayStatus string

const (
	StatusPending   RelayStatus = "pending"
	StatusActive    RelayStatus = "active"
	StatusInactive  RelayStatus = "inactive"
	StatusSuspended RelayStatus = "suspended"
	StatusError     RelayStatus = "error"
)

// RelaySettings holds per-relay delivery policy
type RelaySettings struct {
	WelcomeText        string
	MaxMessageLength   int
	AllowMedia         bool
	NotifyOwner        bool
	RateLimitPerWindow int
}

// RelayBot is a provisioned relay bot bound to one owner
type RelayBot struct {
	ID            string
	Credential    string
	OwnerID       int64
	PublicHandle  string
	DisplayName   string
	CreatedAt     time.Time
	Status        RelayStatus
	Settings      RelaySettings
	TotalMessages int64
	TotalUsers    int64
	LastActivity  *time.Time
}

// MaskedCredential returns the credential in a form safe to display or log
func (r *RelayBot) MaskedCredential() string {
	return MaskCredential(r.Credential)
}

// MaskCredential keeps the numeric bot id and two characters from each end of the secret.
func MaskCredential(credential string) string {
	id, secret, ok := strings.Cut(credential, ":")
	if !ok {
		return "***"
	}
	if len(secret) <= 4 {
		return id + ":***"
	}
	return id + ":" + secret[:2] + "…" + secret[len(secret)-2:]
}

// MessageKind classifies the payload of a relayed message
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindPhoto    MessageKind = "photo"
	KindDocument MessageKind = "document"
	KindVoice    MessageKind = "voice"
	KindAudio    MessageKind = "audio"
	KindSticker  MessageKind = "sticker"
	KindOther    MessageKind = "other"
)

// Message is one relayed message, either inbound from a sender or an owner reply
type Message struct {
	ID         string
	RelayID    string
	FromUserID int64
	ToUserID   int64
	Content    string
	Kind       MessageKind
	Timestamp  time.Time
	IsRead     bool
	ReplyTo    string // empty unless this is an owner reply
}

// IsReply reports whether the message was sent by the owner in reply to a sender
func (m *Message) IsReply() bool {
	return m.ReplyTo != ""
}

// BlockEntry denies a sender from reaching the owner through one relay
type BlockEntry struct {
	SenderID int64
	RelayID  string
}

// StepTag identifies a multi-turn interaction
type StepTag string

const (
	StepNone          StepTag = ""
	StepAwaitingToken StepTag = "awaiting_token"
	StepAwaitingReply StepTag = "awaiting_reply"
)

// Well-known step data keys
const (
	StepKeyTargetUserID = "target_user_id"
	StepKeyRelayID      = "relay_id"
	StepKeyReplyTo      = "reply_to"
)

// StepState is the single active step of an actor
type StepState struct {
	ActorID   int64
	Tag       StepTag
	Data      map[string]string
	ExpiresAt *time.Time
}

// Expired reports whether the step has passed its expiry at the given time
func (s *StepState) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Daily aggregate fields
const (
	StatMessages = "messages"
	StatReplies  = "replies"
	StatBlocked  = "blocked"
	StatSenders  = "senders"
)

// DailyStat is the per-relay aggregate for one calendar day (UTC)
type DailyStat struct {
	RelayID  string
	Day      string // YYYY-MM-DD
	Messages int64
	Replies  int64
	Blocked  int64
	Senders  int64
}

// DayKey formats a timestamp as a daily aggregate key
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
