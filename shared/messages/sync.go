package messages

// The four replication messages. Position values are raw XYZ; rotation
// values are the scaled axis-angle encoding from shared/syncmath, so
// both properties fit in three floats on the wire.

// UpdatePosition is the periodic, droppable position sample. Stale
// samples may be coalesced away in transit; only the newest matters.
type UpdatePosition struct {
	Entity uint32
	Value  [3]float64
}

// UpdateRotation is the periodic, droppable rotation sample.
type UpdateRotation struct {
	Entity uint32
	Value  [3]float64
}

// ForcePosition is the reliable override for discontinuous moves.
// Observers snap to it and discard interpolation state.
type ForcePosition struct {
	Entity uint32
	Value  [3]float64
}

// ForceRotation is the reliable rotation override.
type ForceRotation struct {
	Entity uint32
	Value  [3]float64
}
