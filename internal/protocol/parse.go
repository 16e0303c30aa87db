package protocol

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Request is a classified inbound line from an ACTIVE session.
type Request interface {
	request()
}

// BroadcastRequest asks for Body to be sent to every active session.
type BroadcastRequest struct {
	Body string
}

// DirectRequest asks for Body to be sent to each handle in Recipients.
// Recipients is trimmed, free of empty entries and duplicates, and keeps
// the order in which the sender listed them.
type DirectRequest struct {
	Recipients []string
	Body       string
}

// UnknownRequest is a line whose prefix is not part of the protocol.
type UnknownRequest struct {
	Line string
}

func (BroadcastRequest) request() {}
func (DirectRequest) request()    {}
func (UnknownRequest) request()   {}

// RecipientSeparator ends the recipient segment of a directed message.
const RecipientSeparator = ":"

// Parse classifies one inbound line.
//
// Directed messages use a single framing regardless of recipient count:
//
//	P2P alice,bob:body
//	DIRECT alice:body
//
// A missing separator or an empty recipient segment yields
// ErrMalformedDirected.
func Parse(line string) (Request, error) {
	switch {
	case strings.HasPrefix(line, CmdBroadcast):
		return BroadcastRequest{Body: strings.TrimSpace(line[len(CmdBroadcast):])}, nil
	case strings.HasPrefix(line, CmdP2P):
		return parseDirected(line[len(CmdP2P):])
	case strings.HasPrefix(line, CmdDirect):
		return parseDirected(line[len(CmdDirect):])
	default:
		return UnknownRequest{Line: line}, nil
	}
}

func parseDirected(rest string) (Request, error) {
	segment, body, ok := strings.Cut(rest, RecipientSeparator)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q separator", ErrMalformedDirected, RecipientSeparator)
	}

	recipients := lo.Uniq(lo.Compact(lo.Map(strings.Split(segment, ","), func(r string, _ int) string {
		return strings.TrimSpace(r)
	})))
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: empty recipient list", ErrMalformedDirected)
	}

	return DirectRequest{Recipients: recipients, Body: strings.TrimSpace(body)}, nil
}
