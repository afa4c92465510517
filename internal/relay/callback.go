package relay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ActionKind tags a CallbackAction
type ActionKind string

const (
	ActionReply      ActionKind = "r"
	ActionBlock      ActionKind = "b"
	ActionUnblock    ActionKind = "u"
	ActionManage     ActionKind = "m"
	ActionActivate   ActionKind = "a"
	ActionDeactivate ActionKind = "d"
	ActionDelete     ActionKind = "x"
	ActionStats      ActionKind = "s"
)

// maxCallbackData is the platform limit for callback payloads
const maxCallbackData = 64

var ErrBadCallback = errors.New("malformed callback data")

// CallbackAction is the payload of an inline control.
// Reply, Block and Unblock carry a sender; the relay management actions only a relay id.
type CallbackAction struct {
	Kind     ActionKind
	SenderID int64
	RelayID  string
}

func Reply(senderID int64, relayID string) CallbackAction {
	return CallbackAction{Kind: ActionReply, SenderID: senderID, RelayID: relayID}
}

func Block(senderID int64, relayID string) CallbackAction {
	return CallbackAction{Kind: ActionBlock, SenderID: senderID, RelayID: relayID}
}

func Unblock(senderID int64, relayID string) CallbackAction {
	return CallbackAction{Kind: ActionUnblock, SenderID: senderID, RelayID: relayID}
}

func Manage(relayID string) CallbackAction {
	return CallbackAction{Kind: ActionManage, RelayID: relayID}
}

func Activate(relayID string) CallbackAction {
	return CallbackAction{Kind: ActionActivate, RelayID: relayID}
}

func Deactivate(relayID string) CallbackAction {
	return CallbackAction{Kind: ActionDeactivate, RelayID: relayID}
}

func Delete(relayID string) CallbackAction {
	return CallbackAction{Kind: ActionDelete, RelayID: relayID}
}

func Stats(relayID string) CallbackAction {
	return CallbackAction{Kind: ActionStats, RelayID: relayID}
}

func (a CallbackAction) hasSender() bool {
	switch a.Kind {
	case ActionReply, ActionBlock, ActionUnblock:
		return true
	}
	return false
}

// Encode renders the action as "k:relay" or "k:sender:relay"
func (a CallbackAction) Encode() string {
	if a.hasSender() {
		return string(a.Kind) + ":" + strconv.FormatInt(a.SenderID, 10) + ":" + a.RelayID
	}
	return string(a.Kind) + ":" + a.RelayID
}

// DecodeCallback parses data produced by Encode
func DecodeCallback(data string) (CallbackAction, error) {
	if len(data) > maxCallbackData {
		return CallbackAction{}, fmt.Errorf("%w: too long", ErrBadCallback)
	}

	kind, rest, ok := strings.Cut(data, ":")
	if !ok || rest == "" {
		return CallbackAction{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
	}

	a := CallbackAction{Kind: ActionKind(kind)}
	switch a.Kind {
	case ActionReply, ActionBlock, ActionUnblock:
		sender, relayID, ok := strings.Cut(rest, ":")
		if !ok || relayID == "" {
			return CallbackAction{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		id, err := strconv.ParseInt(sender, 10, 64)
		if err != nil {
			return CallbackAction{}, fmt.Errorf("%w: bad sender in %q", ErrBadCallback, data)
		}
		a.SenderID = id
		a.RelayID = relayID
	case ActionManage, ActionActivate, ActionDeactivate, ActionDelete, ActionStats:
		if strings.Contains(rest, ":") {
			return CallbackAction{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		a.RelayID = rest
	default:
		return CallbackAction{}, fmt.Errorf("%w: unknown action %q", ErrBadCallback, kind)
	}
	return a, nil
}
