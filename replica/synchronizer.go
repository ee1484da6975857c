// Package replica implements smoothed transform replication: a
// change-detecting scheduler on the authority side and a buffering
// predictor on observers, with interpolation, bounded extrapolation and
// reliable force-sync overrides in between.
//
// The package is single-threaded by design. All entry points are meant
// to be driven from a host tick loop; nothing here spawns goroutines,
// blocks, or locks. The live transform is written by exactly one role
// at a time: the authority's simulation, or the observer's render step.
package replica

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/luminal-games/driftsync/shared/messages"
	"github.com/luminal-games/driftsync/shared/syncmath"
)

// Transform is the accessor contract for the replicated entity's
// transform, owned by the host environment.
type Transform interface {
	Position() mgl64.Vec3
	SetPosition(mgl64.Vec3)
	Rotation() mgl64.Quat
	SetRotation(mgl64.Quat)
}

// ErrNotAuthority is returned when an authority-only operation is
// invoked on an observer instance.
var ErrNotAuthority = errors.New("replica: not the authority")

// Synchronizer replicates one entity's transform. With the authority
// role it detects changes and emits updates; with the observer role it
// ingests samples and writes predicted values back to its local
// transform each render tick.
//
// The role is runtime-mutable. Switching roles does not reset channel
// state or the broadcast cache; that mirrors the handover semantics the
// protocol is built around.
type Synchronizer struct {
	entity    uint32
	cfg       Config
	transform Transform

	authority bool
	sched     *Scheduler

	pos *Channel[mgl64.Vec3]
	rot *Channel[mgl64.Quat]

	// accumulator drives the interval cadence; it re-arms by keeping
	// the remainder after each firing.
	accumulator float64
}

// NewSynchronizer wires a synchronizer for one entity. send may be nil
// for a pure observer that is never handed the authority role.
func NewSynchronizer(entity uint32, transform Transform, send Sender, cfg Config, authority bool) (*Synchronizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transform == nil {
		return nil, fmt.Errorf("replica: nil transform for entity %d", entity)
	}
	s := &Synchronizer{
		entity:    entity,
		cfg:       cfg,
		transform: transform,
		authority: authority,
		pos:       NewChannel(PositionKind, cfg),
		rot:       NewChannel(RotationKind, cfg),
	}
	if send != nil {
		s.sched = NewScheduler(entity, transform, send, cfg)
	}
	return s, nil
}

// Entity returns the routing ID this synchronizer answers to.
func (s *Synchronizer) Entity() uint32 { return s.entity }

// IsAuthority reports the current role.
func (s *Synchronizer) IsAuthority() bool { return s.authority }

// SetAuthority flips the role flag. Channel state and the broadcast
// cache survive the switch.
func (s *Synchronizer) SetAuthority(authority bool) { s.authority = authority }

// Config returns the configuration this synchronizer was built with.
func (s *Synchronizer) Config() Config { return s.cfg }

// Tick advances the synchronizer by one render frame of dt seconds.
// On the authority it drives the frame and interval cadences; on an
// observer it runs the render step, writing the predicted transform.
func (s *Synchronizer) Tick(dt float64) error {
	if s.authority {
		return s.authorityTick(dt)
	}
	s.render(dt)
	return nil
}

// PhysicsTick must be called once per fixed simulation step. It only
// has an effect on the authority under the physics cadence.
func (s *Synchronizer) PhysicsTick() error {
	if !s.authority || s.cfg.CadenceMode != CadencePhysics {
		return nil
	}
	return s.scheduler().Tick()
}

func (s *Synchronizer) authorityTick(dt float64) error {
	switch s.cfg.CadenceMode {
	case CadenceFrame:
		return s.scheduler().Tick()
	case CadenceInterval:
		s.accumulator += dt
		var errs []error
		for s.accumulator >= s.cfg.FixedInterval {
			s.accumulator -= s.cfg.FixedInterval
			if err := s.scheduler().Tick(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return nil
}

func (s *Synchronizer) render(dt float64) {
	if s.cfg.SyncPosition {
		if v, ok := s.pos.Advance(dt); ok {
			s.transform.SetPosition(v)
		}
	}
	if s.cfg.SyncRotation {
		if v, ok := s.rot.Advance(dt); ok {
			s.transform.SetRotation(v)
		}
	}
}

// ForceUpdate reliably broadcasts the current transform regardless of
// change. Authority only; callers use it for teleports so observers
// snap instead of sweeping across the gap.
func (s *Synchronizer) ForceUpdate() error {
	if !s.authority {
		return ErrNotAuthority
	}
	return s.scheduler().ForceUpdate()
}

// SeedPeer reliably unicasts the current transform to one peer. The
// session layer calls this when a peer joins, before any periodic
// update can race the new observer's empty channels.
func (s *Synchronizer) SeedPeer(peer PeerID) error {
	if !s.authority {
		return ErrNotAuthority
	}
	return s.scheduler().ForceUpdateTo(peer)
}

func (s *Synchronizer) scheduler() *Scheduler {
	if s.sched == nil {
		panic("replica: synchronizer has no sender wired")
	}
	return s.sched
}

// HandleBatch feeds one processing batch of inbound messages into the
// channels. Updates are applied first and forces last, so a force
// always wins over any unreliable sample that arrived alongside it,
// whatever order the transport delivered them in.
func (s *Synchronizer) HandleBatch(batch []any) {
	for _, msg := range batch {
		switch msg.(type) {
		case messages.ForcePosition, messages.ForceRotation:
		default:
			s.Handle(msg)
		}
	}
	for _, msg := range batch {
		switch msg.(type) {
		case messages.ForcePosition, messages.ForceRotation:
			s.Handle(msg)
		}
	}
}

// Handle ingests a single inbound message. Messages for other entities
// or disabled properties are ignored, as is everything while this
// instance holds the authority role: the authority's transform is
// ground truth and never written from the network.
func (s *Synchronizer) Handle(msg any) {
	if s.authority {
		return
	}
	switch m := msg.(type) {
	case messages.UpdatePosition:
		if m.Entity == s.entity && s.cfg.SyncPosition {
			s.pos.Ingest(mgl64.Vec3{m.Value[0], m.Value[1], m.Value[2]})
		}
	case messages.UpdateRotation:
		if m.Entity == s.entity && s.cfg.SyncRotation {
			s.rot.Ingest(syncmath.DecodeRotation(m.Value))
		}
	case messages.ForcePosition:
		if m.Entity == s.entity && s.cfg.SyncPosition {
			s.pos.Force(mgl64.Vec3{m.Value[0], m.Value[1], m.Value[2]})
		}
	case messages.ForceRotation:
		if m.Entity == s.entity && s.cfg.SyncRotation {
			s.rot.Force(syncmath.DecodeRotation(m.Value))
		}
	}
}
