package relay

// Sender facing notices
const (
	textReceived       = "Your message was delivered anonymously."
	textSenderBlocked  = "You are blocked and cannot send messages through this bot."
	textDeliveryFailed = "Sorry, your message could not be delivered. Please try again later."
	textRateLimited    = "You are sending messages too fast. Please wait a moment."
	textMediaRejected  = "This bot only accepts text messages."
	textTooLong        = "Your message is too long. The limit is %d characters."
	textRelayPaused    = "This bot is not accepting messages right now."
	textTryAgainLater  = "Something went wrong. Please try again later."

	replyPrefix = "Reply from the owner:\n\n"
)

// Owner facing notices
const (
	textReplyPrompt        = "Write your reply to %s. Send /cancel to abort."
	textReplySent          = "Reply sent."
	textReplyBlocked       = "This user is blocked; unblock them first."
	textReplyUnreachable   = "Reply not delivered: the recipient is unreachable (they may have blocked the bot)."
	textReplyUnavailable   = "Reply not delivered: the relay bot is unavailable."
	textReplyFailed        = "Reply not delivered. Tap Reply again to retry."
	textUserBlocked        = "User blocked."
	textUserUnblocked      = "User unblocked."
	textReplyStarted       = "Waiting for your reply."
	textStepCancelled      = "Cancelled."
	textNothingToCancel    = "Nothing to cancel."
	anonymousName          = "anonymous"
	buttonProfile          = "View profile"
	buttonReply            = "Reply"
	buttonBlock            = "Block"
	buttonUnblock          = "Unblock"
	defaultWelcome         = "Hi! Send a message and it will be delivered anonymously."
	notificationTimeLayout = "2006-01-02 15:04 MST"
)
