package protocol

import "errors"

var (
	ErrMalformedDirected = errors.New("malformed directed message")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrInvalidHandle     = errors.New("invalid handle")
	ErrNameCollision     = errors.New("handle already in use")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrRateLimited       = errors.New("rate limit exceeded")
)
