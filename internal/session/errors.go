package session

import "errors"

var (
	ErrSessionFull    = errors.New("session is at maximum capacity")
	ErrNotParticipant = errors.New("no active participant record for user")
	ErrNotCreator     = errors.New("only the session creator may do this")
	ErrCursorDisabled = errors.New("cursor sharing is disabled for this session")
)
