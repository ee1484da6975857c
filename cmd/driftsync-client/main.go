// Demo observer: connects to a driftsync server and renders the
// replicated entity. The smoothed prediction is drawn as a filled
// circle with a heading line; the raw latest sample positions arrive
// far less often than frames, which is exactly the jitter the
// predictor hides.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	log "github.com/sirupsen/logrus"

	"github.com/luminal-games/driftsync/network"
	"github.com/luminal-games/driftsync/session"
	"github.com/luminal-games/driftsync/shared/netcomponents"
)

const version = "1.0"

const (
	screenW = 640
	screenH = 480
	frameDT = 1.0 / 60.0
)

var (
	entityColor  = color.RGBA{0x3c, 0xb4, 0x4b, 0xff}
	headingColor = color.RGBA{0xff, 0xff, 0xff, 0xff}
)

type game struct {
	client   *network.Client
	observer *session.Observer
}

func (g *game) Update() error {
	g.observer.Tick(frameDT)
	if err := g.observer.Rejected(); err != nil {
		return err
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	if !g.observer.Joined() {
		ebitenutil.DebugPrint(screen, "connecting...")
		return
	}

	ids := g.observer.Entities()
	for _, id := range ids {
		entry, ok := g.observer.Entry(id)
		if !ok {
			continue
		}
		tr := netcomponents.Transform.Get(entry)
		x := float32(tr.Position.X())
		y := float32(tr.Position.Y())
		vector.DrawFilledCircle(screen, x, y, 10, entityColor, true)

		// Heading line from the replicated rotation.
		dir := tr.Rotation.Rotate(mgl64.Vec3{1, 0, 0})
		vector.StrokeLine(screen, x, y, x+float32(dir.X())*18, y+float32(dir.Y())*18, 2, headingColor, true)
	}

	ebitenutil.DebugPrint(screen, fmt.Sprintf("driftsync observer - entities: %d", len(ids)))
}

func (g *game) Layout(_, _ int) (int, int) {
	return screenW, screenH
}

func main() {
	addr := flag.String("addr", "127.0.0.1:7373", "server address")
	name := flag.String("name", "observer", "client name")
	interpolate := flag.Bool("interpolate", true, "blend between samples")
	extrapolate := flag.Bool("extrapolate", false, "predict past the newest sample")
	maxExtrap := flag.Float64("max-extrapolation", 2, "extra intervals to extrapolate at most")
	flag.Parse()

	client := network.NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Dial(ctx, *addr); err != nil {
		log.WithError(err).Fatal("connect failed")
	}
	defer client.Close()

	prefs := session.DefaultPrefs()
	prefs.Interpolate = *interpolate
	prefs.Extrapolate = *extrapolate
	prefs.MaxExtrapolation = *maxExtrap

	observer := session.NewObserver(client, prefs)
	if err := observer.Hello(version, *name); err != nil {
		log.WithError(err).Fatal("hello failed")
	}

	ebiten.SetWindowSize(screenW, screenH)
	ebiten.SetWindowTitle("driftsync observer")
	if err := ebiten.RunGame(&game{client: client, observer: observer}); err != nil {
		log.WithError(err).Fatal("game exited")
	}
}
