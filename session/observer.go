package session

import (
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"
	"github.com/yohamta/donburi"

	"github.com/luminal-games/driftsync/network"
	"github.com/luminal-games/driftsync/replica"
	"github.com/luminal-games/driftsync/shared/messages"
	"github.com/luminal-games/driftsync/shared/netcomponents"
	"github.com/luminal-games/driftsync/shared/protocol"
)

// ObserverTransport is what an Observer needs from its transport.
type ObserverTransport interface {
	Send(rel protocol.Reliability, msg any) error
	Drain() []network.Event
}

// Prefs are the observer-local half of the configuration: which
// properties to apply and how to smooth them. Cadence and intervals
// come from the host's Welcome; smoothing is each observer's own
// business.
type Prefs struct {
	SyncPosition     bool
	SyncRotation     bool
	Interpolate      bool
	Extrapolate      bool
	MaxExtrapolation float64
}

// DefaultPrefs applies both properties with interpolation only.
func DefaultPrefs() Prefs {
	return Prefs{SyncPosition: true, SyncRotation: true, Interpolate: true}
}

// Observer mirrors a host's replicated entities into a local world.
// Drive Tick once per render frame from the host application's loop.
type Observer struct {
	transport ObserverTransport
	prefs     Prefs

	world   donburi.World
	syncs   map[uint32]*replica.Synchronizer
	entries map[uint32]*donburi.Entry

	welcomed bool
	welcome  messages.Welcome
	rejected error
}

// NewObserver creates an observer session over an established
// transport.
func NewObserver(transport ObserverTransport, prefs Prefs) *Observer {
	return &Observer{
		transport: transport,
		prefs:     prefs,
		world:     donburi.NewWorld(),
		syncs:     make(map[uint32]*replica.Synchronizer),
		entries:   make(map[uint32]*donburi.Entry),
	}
}

// Hello requests a session from the host.
func (o *Observer) Hello(version, name string) error {
	return o.transport.Send(protocol.Reliable, messages.Hello{Version: version, ClientName: name})
}

// Joined reports whether the host's Welcome has arrived.
func (o *Observer) Joined() bool { return o.welcomed }

// Rejected returns the host's rejection, if any.
func (o *Observer) Rejected() error { return o.rejected }

// World exposes the local mirrored world.
func (o *Observer) World() donburi.World { return o.world }

// Entry returns the local entry mirroring one replicated entity.
func (o *Observer) Entry(entity uint32) (*donburi.Entry, bool) {
	e, ok := o.entries[entity]
	return e, ok
}

// Entities lists the replicated entity IDs announced by the host, in
// ascending order.
func (o *Observer) Entities() []uint32 {
	ids := make([]uint32, 0, len(o.entries))
	for id := range o.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Tick drains inbound traffic and advances every predictor by dt
// seconds, writing the smoothed transforms into the local world.
// The drained batch is applied per entity with forces last, so a force
// beats any unreliable sample it raced.
func (o *Observer) Tick(dt float64) {
	var batch []any
	for _, ev := range o.transport.Drain() {
		switch e := ev.(type) {
		case network.Message:
			switch m := e.Msg.(type) {
			case messages.Welcome:
				o.applyWelcome(m)
			case messages.Goodbye:
				o.rejected = fmt.Errorf("session: rejected by host: %s", m.Reason)
				log.WithField("reason", m.Reason).Warn("[observer] rejected")
			default:
				batch = append(batch, e.Msg)
			}
		case network.PeerLeft:
			log.WithError(e.Err).Info("[observer] connection closed")
		}
	}

	for _, syn := range o.syncs {
		syn.HandleBatch(batch)
		_ = syn.Tick(dt) // observers never send; Tick cannot fail
	}
}

func (o *Observer) applyWelcome(w messages.Welcome) {
	if o.welcomed {
		return
	}
	o.welcomed = true
	o.welcome = w

	cfg := replica.Config{
		SyncPosition:     o.prefs.SyncPosition,
		SyncRotation:     o.prefs.SyncRotation,
		CadenceMode:      replica.CadenceMode(w.CadenceMode),
		FixedInterval:    w.FixedInterval,
		PhysicsRate:      w.PhysicsRate,
		Interpolate:      o.prefs.Interpolate,
		Extrapolate:      o.prefs.Extrapolate,
		MaxExtrapolation: o.prefs.MaxExtrapolation,
	}

	for _, id := range w.Entities {
		entity := o.world.Create(netcomponents.Transform)
		entry := o.world.Entry(entity)
		syn, err := replica.NewSynchronizer(id, netcomponents.EntryTransform{Entry: entry}, nil, cfg, false)
		if err != nil {
			log.WithField("entity", id).WithError(err).Error("[observer] bad entity config")
			continue
		}
		o.syncs[id] = syn
		o.entries[id] = entry
	}

	log.WithFields(log.Fields{
		"server":   w.ServerName,
		"entities": len(w.Entities),
		"cadence":  replica.CadenceMode(w.CadenceMode).String(),
	}).Info("[observer] joined")
}
