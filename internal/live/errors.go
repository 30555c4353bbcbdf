package live

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("connection send queue full")
	ErrNoConnection     = errors.New("user has no live connection")
)
