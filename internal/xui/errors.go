package xui

import (
	"errors"
	"fmt"
)

// Sentinel errors for the panel error taxonomy. Callers match with
// errors.Is; the wrapped message carries the failing endpoint.
var (
	// ErrConnection covers transport-level failures: unreachable panel,
	// timeouts, TLS errors.
	ErrConnection = errors.New("cannot connect to 3x-ui panel")

	// ErrAuthentication covers rejected logins and missing/expired
	// session cookies.
	ErrAuthentication = errors.New("3x-ui authentication failed")

	// ErrClientNotFound is returned by operations addressing a client
	// that does not exist in the inbound.
	ErrClientNotFound = errors.New("client not found")
)

// ClientCreationError reports an addClient call the panel rejected,
// carrying the remote diagnostic message.
type ClientCreationError struct {
	Msg string
}

func (e *ClientCreationError) Error() string {
	if e.Msg == "" {
		return "failed to create VPN client"
	}
	return "failed to create VPN client: " + e.Msg
}

// APIError reports a call that reached the panel but came back with
// success=false.
type APIError struct {
	Op  string
	Msg string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("xui %s rejected", e.Op)
	}
	return fmt.Sprintf("xui %s rejected: %s", e.Op, e.Msg)
}
