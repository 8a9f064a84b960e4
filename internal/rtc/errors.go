package rtc

import "errors"

var (
	// ErrConfiguration reports a missing or invalid relay, remote id or
	// engine configuration at construction time.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrNotReady reports a send before the data channel is open.
	ErrNotReady = errors.New("transport not yet open")
	// ErrClosed reports a send after the data channel started closing.
	ErrClosed = errors.New("transport closing or closed")
	// ErrNegotiation reports a malformed or rejected description or
	// candidate. It only reaches the application as an error event.
	ErrNegotiation = errors.New("negotiation failed")
)
