// Package session wires transport and replication together: a Host
// owns the authoritative world and seeds joining observers; an Observer
// mirrors the replicated transforms into its own local world.
package session

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/yohamta/donburi"

	"github.com/luminal-games/driftsync/network"
	"github.com/luminal-games/driftsync/replica"
	"github.com/luminal-games/driftsync/shared/messages"
	"github.com/luminal-games/driftsync/shared/netcomponents"
	"github.com/luminal-games/driftsync/shared/protocol"
)

// HostTransport is what a Host needs from its transport: the send
// surface plus a drainable event feed.
type HostTransport interface {
	replica.Sender
	Drain() []network.Event
}

// Host runs the authority role for a set of replicated entities. All
// methods are driven from one tick loop; the transport hands events
// over through Drain, so nothing here needs locking beyond the entity
// registry (Spawn may be called before the loop starts).
type Host struct {
	name      string
	version   string
	cfg       replica.Config
	transport HostTransport

	world donburi.World

	mu      sync.Mutex
	syncs   map[uint32]*replica.Synchronizer
	entries map[uint32]*donburi.Entry
	nextID  uint32

	// peers that completed the Hello handshake
	joined map[replica.PeerID]bool
}

// NewHost creates a host session. version is matched against each
// observer's Hello; an empty version accepts any client.
func NewHost(name, version string, cfg replica.Config, transport HostTransport) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Host{
		name:      name,
		version:   version,
		cfg:       cfg,
		transport: transport,
		world:     donburi.NewWorld(),
		syncs:     make(map[uint32]*replica.Synchronizer),
		entries:   make(map[uint32]*donburi.Entry),
		joined:    make(map[replica.PeerID]bool),
	}, nil
}

// Spawn creates a replicated entity and returns its routing ID and the
// world entry whose Transform the simulation writes.
func (h *Host) Spawn() (uint32, *donburi.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID

	entity := h.world.Create(netcomponents.Transform)
	entry := h.world.Entry(entity)

	syn, err := replica.NewSynchronizer(id, netcomponents.EntryTransform{Entry: entry}, h.transport, h.cfg, true)
	if err != nil {
		h.world.Remove(entity)
		return 0, nil, fmt.Errorf("spawn entity %d: %w", id, err)
	}
	h.syncs[id] = syn
	h.entries[id] = entry

	log.WithField("entity", id).Info("[host] entity spawned")
	return id, entry, nil
}

// Synchronizer returns the synchronizer of one entity, for explicit
// force updates around teleports.
func (h *Host) Synchronizer(entity uint32) (*replica.Synchronizer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.syncs[entity]
	return s, ok
}

// Teleport moves an entity discontinuously and reliably forces the new
// transform out, so observers snap instead of sweeping across the gap.
func (h *Host) Teleport(entity uint32, apply func(*netcomponents.TransformData)) error {
	h.mu.Lock()
	entry, ok := h.entries[entity]
	syn := h.syncs[entity]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("teleport: unknown entity %d", entity)
	}
	apply(netcomponents.Transform.Get(entry))
	return syn.ForceUpdate()
}

// PlayerCount returns the number of observers past the handshake.
func (h *Host) PlayerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.joined)
}

// World exposes the authoritative ECS world.
func (h *Host) World() donburi.World { return h.world }

// Tick processes transport events and runs one frame of dt seconds for
// every synchronizer. Call it once per render frame.
func (h *Host) Tick(dt float64) {
	for _, ev := range h.transport.Drain() {
		switch e := ev.(type) {
		case network.PeerJoined:
			log.WithField("peer", e.Peer).Info("[host] peer connected, awaiting hello")
		case network.PeerLeft:
			h.mu.Lock()
			delete(h.joined, e.Peer)
			h.mu.Unlock()
			log.WithField("peer", e.Peer).Info("[host] peer left")
		case network.Message:
			h.handleMessage(e)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, syn := range h.syncs {
		if err := syn.Tick(dt); err != nil {
			log.WithField("entity", id).WithError(err).Warn("[host] tick send failed")
		}
	}
}

// PhysicsTick runs one fixed simulation step for every synchronizer.
// Only meaningful under the physics cadence.
func (h *Host) PhysicsTick() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, syn := range h.syncs {
		if err := syn.PhysicsTick(); err != nil {
			log.WithField("entity", id).WithError(err).Warn("[host] physics send failed")
		}
	}
}

func (h *Host) handleMessage(m network.Message) {
	hello, ok := m.Msg.(messages.Hello)
	if !ok {
		// The authority's transform is ground truth; inbound samples
		// are ignored wholesale.
		return
	}

	if h.version != "" && hello.Version != h.version {
		log.WithFields(log.Fields{"peer": m.From, "version": hello.Version}).
			Warn("[host] rejecting version mismatch")
		if err := h.transport.SendTo(m.From, protocol.Reliable, messages.Goodbye{
			Reason: fmt.Sprintf("version %q required", h.version),
		}); err != nil {
			log.WithError(err).Warn("[host] goodbye send failed")
		}
		return
	}

	h.mu.Lock()
	entities := make([]uint32, 0, len(h.syncs))
	for id := range h.syncs {
		entities = append(entities, id)
	}
	syncs := make([]*replica.Synchronizer, 0, len(h.syncs))
	for _, s := range h.syncs {
		syncs = append(syncs, s)
	}
	h.joined[m.From] = true
	h.mu.Unlock()

	welcome := messages.Welcome{
		PeerID:        uint32(m.From),
		ServerName:    h.name,
		Entities:      entities,
		CadenceMode:   uint8(h.cfg.CadenceMode),
		FixedInterval: h.cfg.FixedInterval,
		PhysicsRate:   h.cfg.PhysicsRate,
	}
	if err := h.transport.SendTo(m.From, protocol.Reliable, welcome); err != nil {
		log.WithField("peer", m.From).WithError(err).Warn("[host] welcome send failed")
		return
	}

	// Seed the new observer with exact current values over the
	// reliable path, before any periodic update can race it.
	for _, syn := range syncs {
		if err := syn.SeedPeer(m.From); err != nil {
			log.WithField("peer", m.From).WithError(err).Warn("[host] seed failed")
		}
	}

	log.WithFields(log.Fields{"peer": m.From, "client": hello.ClientName}).
		Info("[host] observer joined")
}
