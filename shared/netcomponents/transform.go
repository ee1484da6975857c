package netcomponents

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"
)

// TransformData is the replicated transform of a networked entity: the
// authority's simulation writes it, observers' render steps write their
// local copy.
type TransformData struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

var Transform = donburi.NewComponentType[TransformData](TransformData{Rotation: mgl64.QuatIdent()})

// EntryTransform adapts a donburi entry holding a Transform component to
// the accessor interface the replication core works against.
type EntryTransform struct {
	Entry *donburi.Entry
}

func (e EntryTransform) Position() mgl64.Vec3 {
	return Transform.Get(e.Entry).Position
}

func (e EntryTransform) SetPosition(p mgl64.Vec3) {
	Transform.Get(e.Entry).Position = p
}

func (e EntryTransform) Rotation() mgl64.Quat {
	return Transform.Get(e.Entry).Rotation
}

func (e EntryTransform) SetRotation(q mgl64.Quat) {
	Transform.Get(e.Entry).Rotation = q
}
