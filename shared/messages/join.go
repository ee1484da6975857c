package messages

// Hello is sent by an observer after connecting to request a session.
type Hello struct {
	Version    string
	ClientName string
}

// Welcome is sent by the host when an observer's Hello is accepted. It
// carries everything the observer needs to size its interpolation
// weights. The frame-driven cadence deliberately reports no interval;
// observers substitute an assumed constant rate instead.
type Welcome struct {
	PeerID        uint32
	ServerName    string
	Entities      []uint32
	CadenceMode   uint8
	FixedInterval float64 // seconds; only meaningful for interval cadence
	PhysicsRate   int     // fixed simulation steps per second
}

// Goodbye is sent by the host when a Hello is rejected.
type Goodbye struct {
	Reason string
}
