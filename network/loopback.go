package network

import (
	"fmt"
	"sync"

	"github.com/luminal-games/driftsync/replica"
	"github.com/luminal-games/driftsync/shared/protocol"
)

// Loopback is an in-memory transport for tests and single-process
// demos. It implements replica.Sender on the host side and hands each
// observer a drainable mailbox. Messages still round-trip through the
// wire codec so encoding bugs surface in loopback tests too.
//
// DropUnreliable, when set, is consulted for every unreliable delivery
// and lets tests simulate loss.
type Loopback struct {
	mu        sync.Mutex
	observers map[replica.PeerID]*LoopbackObserver

	DropUnreliable func(to replica.PeerID, msg any) bool
}

// LoopbackObserver is one observer endpoint of a Loopback.
type LoopbackObserver struct {
	peer   replica.PeerID
	queue  []any
	mu     sync.Mutex
	parent *Loopback
}

// NewLoopback creates a loopback hub with no observers.
func NewLoopback() *Loopback {
	return &Loopback{observers: make(map[replica.PeerID]*LoopbackObserver)}
}

// Join attaches a new observer endpoint under the given peer ID.
func (l *Loopback) Join(peer replica.PeerID) *LoopbackObserver {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := &LoopbackObserver{peer: peer, parent: l}
	l.observers[peer] = o
	return o
}

// Leave detaches an observer.
func (l *Loopback) Leave(peer replica.PeerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.observers, peer)
}

// SendToAll delivers msg to every attached observer.
func (l *Loopback) SendToAll(rel protocol.Reliability, msg any) error {
	l.mu.Lock()
	obs := make([]*LoopbackObserver, 0, len(l.observers))
	for _, o := range l.observers {
		obs = append(obs, o)
	}
	l.mu.Unlock()

	for _, o := range obs {
		if err := l.deliver(o, rel, msg); err != nil {
			return err
		}
	}
	return nil
}

// SendTo delivers msg to one observer.
func (l *Loopback) SendTo(peer replica.PeerID, rel protocol.Reliability, msg any) error {
	l.mu.Lock()
	o, ok := l.observers[peer]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, peer)
	}
	return l.deliver(o, rel, msg)
}

func (l *Loopback) deliver(o *LoopbackObserver, rel protocol.Reliability, msg any) error {
	if rel == protocol.Unreliable && l.DropUnreliable != nil && l.DropUnreliable(o.peer, msg) {
		return nil
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	decoded, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.queue = append(o.queue, decoded)
	o.mu.Unlock()
	return nil
}

// Drain returns and clears everything delivered since the last call.
func (o *LoopbackObserver) Drain() []any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	return out
}

var _ replica.Sender = (*Loopback)(nil)
