// Demo authority: hosts one replicated entity that wanders the world on
// eased tweens, spins slowly, and teleports every few seconds so the
// force-sync path gets exercised too.
package main

import (
	"flag"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/go-gl/mathgl/mgl64"
	log "github.com/sirupsen/logrus"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/luminal-games/driftsync/network"
	"github.com/luminal-games/driftsync/replica"
	"github.com/luminal-games/driftsync/session"
	"github.com/luminal-games/driftsync/shared/netcomponents"
)

const version = "1.0"

const (
	worldW = 640
	worldH = 480

	teleportEvery = 10.0 // seconds
)

type envConfig struct {
	Addr     string `env:"DRIFTSYNC_ADDR" envDefault:":7373"`
	Name     string `env:"DRIFTSYNC_NAME" envDefault:"driftsync demo"`
	TickRate int    `env:"DRIFTSYNC_TICKRATE" envDefault:"30"`
}

// wanderer drives the entity between random waypoints with eased
// tweens and keeps it spinning about Z.
type wanderer struct {
	entry    *netcomponents.TransformData
	x, y     *gween.Tween
	angle    float64
	sinceTel float64
	host     *session.Host
	entity   uint32
}

func newWanderer(host *session.Host, entity uint32, tr *netcomponents.TransformData) *wanderer {
	w := &wanderer{entry: tr, host: host, entity: entity}
	w.retarget(float32(tr.Position.X()), float32(tr.Position.Y()))
	return w
}

func (w *wanderer) retarget(fromX, fromY float32) {
	toX := rand.Float32() * worldW
	toY := rand.Float32() * worldH
	dur := 2 + rand.Float32()*3
	w.x = gween.New(fromX, toX, dur, ease.InOutQuad)
	w.y = gween.New(fromY, toY, dur, ease.InOutQuad)
}

func (w *wanderer) step(dt float64) {
	x, doneX := w.x.Update(float32(dt))
	y, _ := w.y.Update(float32(dt))
	w.entry.Position = mgl64.Vec3{float64(x), float64(y), 0}

	w.angle = math.Mod(w.angle+0.8*dt, 2*math.Pi)
	w.entry.Rotation = mgl64.QuatRotate(w.angle, mgl64.Vec3{0, 0, 1})

	if doneX {
		w.retarget(x, y)
	}

	w.sinceTel += dt
	if w.sinceTel >= teleportEvery {
		w.sinceTel = 0
		err := w.host.Teleport(w.entity, func(tr *netcomponents.TransformData) {
			tr.Position = mgl64.Vec3{float64(rand.Float32() * worldW), float64(rand.Float32() * worldH), 0}
		})
		if err != nil {
			log.WithError(err).Warn("teleport failed")
		} else {
			log.WithField("pos", w.entry.Position).Info("teleported")
		}
		w.retarget(float32(w.entry.Position.X()), float32(w.entry.Position.Y()))
	}
}

func main() {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		log.WithError(err).Fatal("bad environment")
	}

	addr := flag.String("addr", cfg.Addr, "listen address")
	name := flag.String("name", cfg.Name, "server display name")
	tickRate := flag.Int("tickrate", cfg.TickRate, "simulation ticks per second")
	flag.Parse()

	repCfg := replica.DefaultConfig()
	repCfg.PhysicsRate = *tickRate

	transport := network.NewServer()
	if err := transport.Listen(*addr); err != nil {
		log.WithError(err).Fatal("listen failed")
	}

	host, err := session.NewHost(*name, version, repCfg, transport)
	if err != nil {
		log.WithError(err).Fatal("host setup failed")
	}

	entity, entry, err := host.Spawn()
	if err != nil {
		log.WithError(err).Fatal("spawn failed")
	}
	tr := netcomponents.Transform.Get(entry)
	tr.Position = mgl64.Vec3{worldW / 2, worldH / 2, 0}

	mover := newWanderer(host, entity, tr)
	loop := session.NewLoop(host, *tickRate, mover.step)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		loop.Stop()
		_ = transport.Close()
		os.Exit(0)
	}()

	log.WithFields(log.Fields{
		"addr": transport.Addr(),
		"name": *name,
		"rate": *tickRate,
	}).Info("driftsync server up")
	loop.Run()
}
