package bot

import (
	"fmt"
	"strings"

	"motherbot/internal/models"
	"motherbot/internal/platform"
	"motherbot/internal/relay"
)

const timeLayout = "2006-01-02 15:04 MST"

func renderRelayList(relays []models.RelayBot) string {
	var b strings.Builder
	b.WriteString("Your relay bots:\n")
	for i, r := range relays {
		fmt.Fprintf(&b, "\n%d. @%s (%s), %d messages", i+1, r.PublicHandle, r.Status, r.TotalMessages)
	}
	return b.String()
}

func relayListButtons(relays []models.RelayBot) [][]platform.Button {
	rows := make([][]platform.Button, 0, len(relays))
	for _, r := range relays {
		rows = append(rows, []platform.Button{{
			Text: buttonManage + " @" + r.PublicHandle,
			Data: relay.Manage(r.ID).Encode(),
		}})
	}
	return rows
}

// renderRelayCard never shows the raw credential
func renderRelayCard(rb *models.RelayBot) string {
	lastActivity := "never"
	if rb.LastActivity != nil {
		lastActivity = rb.LastActivity.UTC().Format(timeLayout)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "@%s", rb.PublicHandle)
	if rb.DisplayName != "" {
		fmt.Fprintf(&b, " (%s)", rb.DisplayName)
	}
	fmt.Fprintf(&b, "\nID: %s", rb.ID)
	fmt.Fprintf(&b, "\nStatus: %s", rb.Status)
	fmt.Fprintf(&b, "\nToken: %s", rb.MaskedCredential())
	fmt.Fprintf(&b, "\nMessages: %d", rb.TotalMessages)
	fmt.Fprintf(&b, "\nUsers: %d", rb.TotalUsers)
	fmt.Fprintf(&b, "\nLast activity: %s", lastActivity)
	return b.String()
}

func relayCardButtons(rb *models.RelayBot) [][]platform.Button {
	toggle := platform.Button{Text: buttonStart, Data: relay.Activate(rb.ID).Encode()}
	if rb.Status == models.StatusActive {
		toggle = platform.Button{Text: buttonStop, Data: relay.Deactivate(rb.ID).Encode()}
	}
	return [][]platform.Button{
		{toggle, {Text: buttonStats, Data: relay.Stats(rb.ID).Encode()}},
		{{Text: buttonDelete, Data: relay.Delete(rb.ID).Encode()}},
	}
}

func renderStats(s *relay.RelayStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 @%s: %d messages from %d users", s.Relay.PublicHandle, s.Relay.TotalMessages, s.Relay.TotalUsers)

	if len(s.Daily) == 0 {
		fmt.Fprintf(&b, "\nNo activity in the last %d days.", statsDays)
	}
	for _, d := range s.Daily {
		fmt.Fprintf(&b, "\n%s: %d messages, %d replies, %d blocks, %d new senders",
			d.Day, d.Messages, d.Replies, d.Blocked, d.Senders)
	}

	if s.Archived != nil {
		var total int64
		for _, n := range s.Archived {
			total += n
		}
		fmt.Fprintf(&b, "\nArchived in the last %d days: %d messages", statsDays, total)
	}
	return b.String()
}
