package relay

import (
	"fmt"
	"strings"
	"time"

	"motherbot/internal/models"
	"motherbot/internal/platform"
)

// Content is the payload of a message in either direction
type Content struct {
	Text       string
	Kind       models.MessageKind
	Attachment *platform.Attachment
}

// Inbound is a message from an anonymous sender to a relay bot
type Inbound struct {
	RelayID        string
	SenderID       int64
	SenderName     string
	SenderUsername string
	Content
}

// NotificationButtons returns the owner controls for one sender
func NotificationButtons(senderID int64, relayID string, blocked bool) [][]platform.Button {
	toggle := platform.Button{Text: buttonBlock, Data: Block(senderID, relayID).Encode()}
	if blocked {
		toggle = platform.Button{Text: buttonUnblock, Data: Unblock(senderID, relayID).Encode()}
	}
	return [][]platform.Button{
		{{Text: buttonProfile, URL: ProfileURL(senderID)}},
		{{Text: buttonReply, Data: Reply(senderID, relayID).Encode()}, toggle},
	}
}

// ProfileURL links to a user without exposing anything beyond the id
func ProfileURL(userID int64) string {
	return fmt.Sprintf("tg://user?id=%d", userID)
}

func senderLabel(name, username string, id int64) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = anonymousName
	}
	if username != "" {
		return fmt.Sprintf("%s (@%s, id %d)", name, username, id)
	}
	return fmt.Sprintf("%s (id %d)", name, id)
}

func renderNotification(relay *models.RelayBot, in Inbound, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New anonymous message via @%s\n", relay.PublicHandle)
	fmt.Fprintf(&b, "From: %s\n", senderLabel(in.SenderName, in.SenderUsername, in.SenderID))
	fmt.Fprintf(&b, "Time: %s\n\n", at.UTC().Format(notificationTimeLayout))
	b.WriteString(summarize(in.Kind, in.Text))
	return b.String()
}

// summarize keeps text as is and reduces media to a kind marker plus caption
func summarize(kind models.MessageKind, text string) string {
	if kind == "" || kind == models.KindText {
		return text
	}
	if text == "" {
		return "[" + string(kind) + "]"
	}
	return "[" + string(kind) + "] " + text
}

// RenderInbox lists messages newest first
func RenderInbox(messages []models.Message) string {
	if len(messages) == 0 {
		return "Your inbox is empty."
	}
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		marker := ""
		if !m.IsRead {
			marker = " (new)"
		}
		fmt.Fprintf(&b, "%s from id %d%s\n%s", m.Timestamp.UTC().Format(notificationTimeLayout), m.FromUserID, marker, m.Content)
	}
	return b.String()
}

// Welcome returns the greeting a sender receives on /start
func Welcome(relay *models.RelayBot) string {
	if strings.TrimSpace(relay.Settings.WelcomeText) != "" {
		return relay.Settings.WelcomeText
	}
	return defaultWelcome
}
