package server

import (
	"errors"
	"log/slog"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// Router classifies inbound lines from ACTIVE sessions and delivers them
// through the Registry. It holds no state of its own.
type Router struct {
	registry *Registry
	log      *slog.Logger
}

// NewRouter creates a Router delivering through registry.
func NewRouter(registry *Registry, log *slog.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// Route handles one line sent by sender. Errors meant for the sender are
// enqueued on reply; the returned error describes what was not delivered
// and is for logging only.
//
// Lines with an unrecognized prefix are ignored.
func (r *Router) Route(sender string, reply Mailbox, line string) error {
	req, err := protocol.Parse(line)
	if err != nil {
		reply.Enqueue(protocol.MalformedDirected.Encode())
		return err
	}

	switch req := req.(type) {
	case protocol.BroadcastRequest:
		n := r.registry.Broadcast(protocol.Broadcast{Sender: sender, Body: req.Body})
		r.log.Debug("Broadcast routed", "sender", sender, "recipients", n)
		return nil
	case protocol.DirectRequest:
		return r.routeDirect(sender, reply, req)
	case protocol.UnknownRequest:
		r.log.Debug("Ignoring unrecognized line", "sender", sender, "line", req.Line)
		return protocol.ErrUnknownCommand
	default:
		return protocol.ErrUnknownCommand
	}
}

// routeDirect delivers to each recipient independently. Missing recipients
// produce one ERROR each for the sender; the sender also receives one echo
// naming the recipients that were reached, unless it was one of them.
func (r *Router) routeDirect(sender string, reply Mailbox, req protocol.DirectRequest) error {
	var (
		errs       []error
		reached    []string
		senderSelf bool
	)

	for _, recipient := range req.Recipients {
		frame := protocol.Directed{Sender: sender, Recipients: []string{recipient}, Body: req.Body}
		if err := r.registry.Deliver(recipient, frame); err != nil {
			reply.Enqueue(protocol.RecipientNotFound(recipient).Encode())
			errs = append(errs, err)
			continue
		}
		reached = append(reached, recipient)
		if recipient == sender {
			senderSelf = true
		}
	}

	if len(reached) > 0 && !senderSelf {
		reply.Enqueue(protocol.Directed{Sender: sender, Recipients: reached, Body: req.Body}.Encode())
	}

	r.log.Debug("Directed message routed", "sender", sender, "reached", len(reached), "missing", len(errs))
	return errors.Join(errs...)
}
