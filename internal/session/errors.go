package session

import "errors"

var (
	// ErrNotConnected is returned when a send is attempted while the session is not connected.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionInit wraps failures while bringing the socket up.
	ErrConnectionInit = errors.New("connection init failed")
	// ErrInvalidRequest marks missing or malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDelivery wraps a send the network rejected.
	ErrDelivery = errors.New("delivery failed")
	// ErrPersistence wraps a ledger write failure.
	ErrPersistence = errors.New("persistence failed")
	// ErrExternalService wraps reply source or notification failures.
	ErrExternalService = errors.New("external service failed")
	// ErrLoggedOut is returned by Connect once the session was logged out.
	ErrLoggedOut = errors.New("logged out")
	// ErrClosed is returned by Connect after the session was closed or destroyed.
	ErrClosed = errors.New("session closed")
	// ErrUnknownConnection is returned for ids no session is registered under.
	ErrUnknownConnection = errors.New("unknown connection")
)
