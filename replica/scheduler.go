package replica

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/luminal-games/driftsync/shared/messages"
	"github.com/luminal-games/driftsync/shared/protocol"
	"github.com/luminal-games/driftsync/shared/syncmath"
)

// PeerID identifies one connected observer.
type PeerID uint32

// Sender is the transport surface the replication core needs: broadcast
// and unicast, each in both delivery classes. Implementations live in
// the network package; tests use in-memory fakes.
type Sender interface {
	SendToAll(rel protocol.Reliability, msg any) error
	SendTo(peer PeerID, rel protocol.Reliability, msg any) error
}

// Scheduler is the authority-side change detector. Each cadence tick it
// samples the live transform, compares against the last value it
// broadcast, and emits an unreliable update only on change. Unchanged
// ticks send nothing; that is the bandwidth saving over naive periodic
// replication.
type Scheduler struct {
	entity    uint32
	cfg       Config
	transform Transform
	send      Sender
	tolerance float64

	lastPos    mgl64.Vec3
	lastPosSet bool
	lastRot    mgl64.Quat
	lastRotSet bool
}

// NewScheduler creates a change detector for one entity's transform.
func NewScheduler(entity uint32, transform Transform, send Sender, cfg Config) *Scheduler {
	tol := cfg.Tolerance
	if tol == 0 {
		tol = syncmath.DefaultTolerance
	}
	return &Scheduler{
		entity:    entity,
		cfg:       cfg,
		transform: transform,
		send:      send,
		tolerance: tol,
	}
}

// Tick runs one change-detection pass. It must be invoked once per
// cadence-defined occasion and never sends anything for properties that
// are within tolerance of the last broadcast.
func (s *Scheduler) Tick() error {
	var errs []error

	if s.cfg.SyncPosition {
		pos := s.transform.Position()
		if !s.lastPosSet || !PositionKind.Equal(s.lastPos, pos, s.tolerance) {
			err := s.send.SendToAll(protocol.Unreliable, messages.UpdatePosition{
				Entity: s.entity,
				Value:  [3]float64{pos.X(), pos.Y(), pos.Z()},
			})
			if err != nil {
				errs = append(errs, err)
			} else {
				s.lastPos = pos
				s.lastPosSet = true
			}
		}
	}

	if s.cfg.SyncRotation {
		rot := s.transform.Rotation()
		if !s.lastRotSet || !RotationKind.Equal(s.lastRot, rot, s.tolerance) {
			err := s.send.SendToAll(protocol.Unreliable, messages.UpdateRotation{
				Entity: s.entity,
				Value:  syncmath.EncodeRotation(rot),
			})
			if err != nil {
				errs = append(errs, err)
			} else {
				s.lastRot = rot
				s.lastRotSet = true
			}
		}
	}

	return errors.Join(errs...)
}

// ForceUpdate unconditionally broadcasts both enabled properties over
// the reliable channel. It exists for discontinuous moves (teleports)
// and is never called from the periodic tick; the caller decides when a
// move is discontinuous.
func (s *Scheduler) ForceUpdate() error {
	var errs []error

	if s.cfg.SyncPosition {
		pos := s.transform.Position()
		err := s.send.SendToAll(protocol.Reliable, messages.ForcePosition{
			Entity: s.entity,
			Value:  [3]float64{pos.X(), pos.Y(), pos.Z()},
		})
		if err != nil {
			errs = append(errs, err)
		} else {
			s.lastPos = pos
			s.lastPosSet = true
		}
	}

	if s.cfg.SyncRotation {
		rot := s.transform.Rotation()
		err := s.send.SendToAll(protocol.Reliable, messages.ForceRotation{
			Entity: s.entity,
			Value:  syncmath.EncodeRotation(rot),
		})
		if err != nil {
			errs = append(errs, err)
		} else {
			s.lastRot = rot
			s.lastRotSet = true
		}
	}

	return errors.Join(errs...)
}

// ForceUpdateTo unicasts both enabled properties reliably to one peer,
// seeding a newly joined observer before any periodic update can race
// it. The broadcast cache is left alone: other observers still need the
// next change even if this peer just received the current value.
func (s *Scheduler) ForceUpdateTo(peer PeerID) error {
	var errs []error

	if s.cfg.SyncPosition {
		pos := s.transform.Position()
		err := s.send.SendTo(peer, protocol.Reliable, messages.ForcePosition{
			Entity: s.entity,
			Value:  [3]float64{pos.X(), pos.Y(), pos.Z()},
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if s.cfg.SyncRotation {
		rot := s.transform.Rotation()
		err := s.send.SendTo(peer, protocol.Reliable, messages.ForceRotation{
			Entity: s.entity,
			Value:  syncmath.EncodeRotation(rot),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
