// Package network carries driftsync frames over websockets. Delivery
// classes map onto one socket: reliable messages go through an ordered
// per-peer queue that is never dropped, unreliable messages go through
// a latest-wins mailbox keyed by logical channel, so a congested or
// slow peer sheds stale samples instead of building a backlog.
//
// Inbound traffic and connection changes are surfaced as events the
// host tick loop drains, keeping the replication core single-threaded.
package network

import (
	"errors"

	"github.com/luminal-games/driftsync/replica"
)

// ErrNotConnected is returned when sending without an established peer.
var ErrNotConnected = errors.New("network: not connected")

// ErrBackpressure is returned when a peer's reliable queue is full. The
// peer is about to be dropped; callers only log it.
var ErrBackpressure = errors.New("network: reliable queue overflow")

// ErrUnknownPeer is returned when unicasting to a peer that left.
var ErrUnknownPeer = errors.New("network: unknown peer")

// Event is one item drained from a transport by the tick loop.
type Event any

// PeerJoined reports a new transport-level connection.
type PeerJoined struct {
	Peer replica.PeerID
}

// PeerLeft reports a closed connection. Err is nil on clean shutdown.
type PeerLeft struct {
	Peer replica.PeerID
	Err  error
}

// Message carries one decoded inbound message.
type Message struct {
	From replica.PeerID
	Msg  any
}

// drainChan empties a channel without blocking.
func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
