// Package protocol fixes the wire format shared by host and observers:
// a one-byte type ID followed by a msgpack-encoded body. Both sides must
// agree on the IDs below before any network operation.
package protocol

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/luminal-games/driftsync/shared/messages"
)

// Reliability selects the delivery class for an outbound message.
type Reliability uint8

const (
	// Unreliable delivery may drop or reorder messages; stale payloads
	// for the same channel are coalesced away under congestion.
	Unreliable Reliability = iota
	// Reliable delivery is ordered and never dropped.
	Reliable
)

func (r Reliability) String() string {
	if r == Reliable {
		return "reliable"
	}
	return "unreliable"
}

// Wire type IDs. ID 0 is reserved so a zeroed frame never decodes.
const (
	TypeHello   uint8 = 1
	TypeWelcome uint8 = 2
	TypeGoodbye uint8 = 3

	TypeUpdatePosition uint8 = 10
	TypeUpdateRotation uint8 = 11
	TypeForcePosition  uint8 = 12
	TypeForceRotation  uint8 = 13
)

// ErrUnknownType is returned when a frame carries an unregistered type ID.
var ErrUnknownType = errors.New("protocol: unknown message type")

// ErrShortFrame is returned when a frame is too small to carry a type ID.
var ErrShortFrame = errors.New("protocol: short frame")

var handle codec.MsgpackHandle

// Encode serializes msg into a wire frame.
func Encode(msg any) ([]byte, error) {
	id, ok := typeID(msg)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	var body []byte
	enc := codec.NewEncoderBytes(&body, &handle)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, id)
	return append(frame, body...), nil
}

// Decode parses a wire frame into its concrete message value.
func Decode(frame []byte) (any, error) {
	if len(frame) < 1 {
		return nil, ErrShortFrame
	}
	msg, ok := newMessage(frame[0])
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownType, frame[0])
	}
	dec := codec.NewDecoderBytes(frame[1:], &handle)
	if err := dec.Decode(msg); err != nil {
		return nil, fmt.Errorf("decode id %d: %w", frame[0], err)
	}
	return deref(msg), nil
}

func typeID(msg any) (uint8, bool) {
	switch msg.(type) {
	case messages.Hello:
		return TypeHello, true
	case messages.Welcome:
		return TypeWelcome, true
	case messages.Goodbye:
		return TypeGoodbye, true
	case messages.UpdatePosition:
		return TypeUpdatePosition, true
	case messages.UpdateRotation:
		return TypeUpdateRotation, true
	case messages.ForcePosition:
		return TypeForcePosition, true
	case messages.ForceRotation:
		return TypeForceRotation, true
	}
	return 0, false
}

func newMessage(id uint8) (any, bool) {
	switch id {
	case TypeHello:
		return &messages.Hello{}, true
	case TypeWelcome:
		return &messages.Welcome{}, true
	case TypeGoodbye:
		return &messages.Goodbye{}, true
	case TypeUpdatePosition:
		return &messages.UpdatePosition{}, true
	case TypeUpdateRotation:
		return &messages.UpdateRotation{}, true
	case TypeForcePosition:
		return &messages.ForcePosition{}, true
	case TypeForceRotation:
		return &messages.ForceRotation{}, true
	}
	return nil, false
}

func deref(msg any) any {
	switch m := msg.(type) {
	case *messages.Hello:
		return *m
	case *messages.Welcome:
		return *m
	case *messages.Goodbye:
		return *m
	case *messages.UpdatePosition:
		return *m
	case *messages.UpdateRotation:
		return *m
	case *messages.ForcePosition:
		return *m
	case *messages.ForceRotation:
		return *m
	}
	return msg
}

// CoalesceKey identifies the logical channel an unreliable message
// belongs to. Under congestion only the newest payload per key is kept;
// older ones are dropped, which is the unreliable contract.
type CoalesceKey struct {
	Type   uint8
	Entity uint32
}

// Coalesce returns the coalescing key for msg. ok is false for messages
// that must never be dropped (handshake and force messages).
func Coalesce(msg any) (CoalesceKey, bool) {
	switch m := msg.(type) {
	case messages.UpdatePosition:
		return CoalesceKey{TypeUpdatePosition, m.Entity}, true
	case messages.UpdateRotation:
		return CoalesceKey{TypeUpdateRotation, m.Entity}, true
	}
	return CoalesceKey{}, false
}
