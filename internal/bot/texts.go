package bot

const (
	textHelp = `Welcome to the Mother Bot! 📬

I connect your own bots as anonymous inboxes. People write to your bot, you get their messages here and can reply without revealing anything about yourself.

Available commands:
/newbot - Connect a bot token from @BotFather
/mybots - List and manage your relay bots
/stats - Message counters for the last 7 days
/cancel - Abort the current action
/help - Show this message`

	textAskToken       = "Send me the token of your bot from @BotFather.\nIt looks like 123456789:AAE... Send /cancel to abort."
	textQuotaReached   = "You already have %d relay bots. Delete one in /mybots first."
	textNoRelays       = "You have no relay bots yet. Use /newbot to connect one."
	textUseCommands    = "Use /newbot to connect a bot or /help to see all commands."
	textUnknownCommand = "Unknown command. Use /help to see available commands."
	textGenericError   = "An error occurred while processing your request. Please try again."
	textNotYours       = "Only the owner of this bot can do that."
	textAdminsOnly     = "This command is for administrators."
	textSuspendUsage   = "Usage: /suspend <relay id>"
	textSuspended      = "Relay bot %s suspended."
	textUnsupported    = "This button is no longer supported."

	textProvisioned      = "✅ Your relay bot @%s is live!\n\nShare t.me/%s and people can write to you anonymously. Their messages will arrive in your chat with @%s."
	textInvalidFormat    = "That does not look like a bot token. It should look like 123456789:AAE... Try again or send /cancel."
	textPlatformRejected = "The token was rejected. Check it with @BotFather and send it again, or send /cancel."
	textDuplicate        = "This bot is already connected."
	textProvisionFailed  = "Could not connect the bot. Please try again later."

	textRelayStopped    = "Relay bot stopped. Senders will be told it is not accepting messages."
	textRelayStarted    = "Relay bot started."
	textRelayDeleted    = "Relay bot deleted."
	textRelaySuspended  = "This bot was suspended by an administrator."
	textRelayStartError = "Could not start the relay bot: the token no longer works."

	textRelayUnavailable = "This relay bot no longer exists."

	buttonManage = "Manage"
	buttonStop   = "⏸ Stop"
	buttonStart  = "▶️ Start"
	buttonStats  = "📊 Stats"
	buttonDelete = "🗑 Delete"

	textOwnerStart = "This is your anonymous inbox. New messages arrive here with Reply and Block buttons.\n\n/inbox - Show the latest messages\n/export - Download the stored messages\n/clear - Delete the stored messages\n/cancel - Abort a pending reply"
	textOwnerHint  = "Tap Reply under a message to answer its sender."

	textHistoryCleared = "Deleted %d stored message(s). Counters are kept."
	textExportCaption  = "Messages stored for @%s."
	textReplyElsewhere = "Your pending reply belongs to @%s. Send it there, or /cancel it first."

	statsDays  = 7
	inboxLimit = 10
)
