// Package fleet publishes telemetry about the gateway's currently
// active sessions to etcd, so an operator (or a future load balancer
// in front of several gateways) can see which boards are attached and
// where without polling every gateway process directly.
//
// It is the same shape as a service registry -- register on connect,
// keep a lease alive, deregister on disconnect, watch for changes --
// generalized from "service instance" to "active gateway session":
// there is exactly one gateway process per deployment in this spec, so
// List/Watch serve an operator dashboard rather than client-side
// load balancing.
package fleet

import "time"

// SessionInfo describes one active session for telemetry purposes.
type SessionInfo struct {
	SessionID   string
	RemoteAddr  string
	BoardID     string
	ConnectedAt time.Time
}

// Registry publishes and queries active session telemetry.
type Registry interface {
	// Register publishes info under gatewayID with a TTL lease; the
	// lease is kept alive in the background for as long as the
	// process runs, and once the process dies etcd expires the entry
	// on its own.
	Register(gatewayID string, info SessionInfo, ttlSeconds int64) error
	// Deregister removes one session's entry ahead of a graceful
	// disconnect. It does not revoke the lease or stop its keep-alive.
	Deregister(gatewayID string, sessionID string) error
	// List returns every session currently registered under gatewayID.
	List(gatewayID string) ([]SessionInfo, error)
	// Watch emits the full session list under gatewayID whenever it
	// changes.
	Watch(gatewayID string) <-chan []SessionInfo
}
