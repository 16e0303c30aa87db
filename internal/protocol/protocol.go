// Package protocol defines the line-oriented wire vocabulary spoken between
// chat clients and the server: command prefixes, outbound frame encoding,
// inbound line classification, and handle validation.
package protocol

import (
	"fmt"
	"strings"
)

// Command prefixes. Every frame is a single newline-terminated UTF-8 line
// starting with one of these words.
const (
	CmdSubmitName   = "SUBMIT_NAME"
	CmdNameAccepted = "NAME_ACCEPTED"
	CmdForceExit    = "FORCE_EXIT"
	CmdUserList     = "USER_LIST"
	CmdMessage      = "MESSAGE"
	CmdError        = "ERROR"

	CmdBroadcast = "BROADCAST"
	CmdP2P       = "P2P"
	CmdDirect    = "DIRECT"
)

// ServerSender is the sender label used for system notices.
const ServerSender = "[Server]"

// NullHandle is what the reference desktop client submits when the user
// cancels the name dialog. The server answers it with FORCE_EXIT.
const NullHandle = "null"

// Frame is a server-to-client message that knows its own line encoding.
type Frame interface {
	Encode() string
}

// Control is a bare command without payload (SUBMIT_NAME, NAME_ACCEPTED,
// FORCE_EXIT).
type Control string

// Encode implements Frame.
func (c Control) Encode() string { return string(c) }

var (
	SubmitName   Frame = Control(CmdSubmitName)
	NameAccepted Frame = Control(CmdNameAccepted)
	ForceExit    Frame = Control(CmdForceExit)
)

// Broadcast is a message from one handle to every active session.
type Broadcast struct {
	Sender string
	Body   string
}

// Encode implements Frame.
func (b Broadcast) Encode() string {
	return fmt.Sprintf("%s %s: %s", CmdMessage, b.Sender, b.Body)
}

// Directed is a message addressed to an explicit recipient list. When
// encoded for a single recipient the list only names that recipient.
type Directed struct {
	Sender     string
	Recipients []string
	Body       string
}

// Encode implements Frame.
func (d Directed) Encode() string {
	return fmt.Sprintf("%s %s>>%s: %s", CmdMessage, d.Sender, strings.Join(d.Recipients, ","), d.Body)
}

// SystemNotice is a server-originated message, rendered as a MESSAGE from
// ServerSender.
type SystemNotice struct {
	Body string
}

// Encode implements Frame.
func (n SystemNotice) Encode() string {
	return fmt.Sprintf("%s %s: %s", CmdMessage, ServerSender, n.Body)
}

// JoinNotice announces that handle became active.
func JoinNotice(handle string) SystemNotice {
	return SystemNotice{Body: handle + " has joined the chat."}
}

// LeaveNotice announces that handle left.
func LeaveNotice(handle string) SystemNotice {
	return SystemNotice{Body: handle + " has left the chat."}
}

// UserListSnapshot carries the full set of active handles.
type UserListSnapshot struct {
	Handles []string
}

// Encode implements Frame.
func (u UserListSnapshot) Encode() string {
	if len(u.Handles) == 0 {
		return CmdUserList
	}
	return CmdUserList + " " + strings.Join(u.Handles, ",")
}

// Error reports a problem to the sender only.
type Error struct {
	Text string
}

// Encode implements Frame.
func (e Error) Encode() string {
	return CmdError + " " + e.Text
}

// RecipientNotFound builds the ERROR frame naming a missing recipient.
func RecipientNotFound(handle string) Error {
	return Error{Text: fmt.Sprintf("User '%s' not found.", handle)}
}

// MalformedDirected is the ERROR frame sent for a directed message without
// a recipient segment or separator.
var MalformedDirected = Error{Text: "Invalid P2P message format."}

// RateLimited is the ERROR frame sent when a line is discarded by the
// per-session rate limiter.
var RateLimited = Error{Text: "Rate limit exceeded."}
