package session

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Loop drives a Host at a fixed tick rate. Each tick runs one fixed
// simulation step followed by one frame, so both the physics and the
// frame cadences fire; a dedicated host has no separate render clock.
type Loop struct {
	host     *Host
	tickRate int
	simulate func(dt float64)
	stopChan chan struct{}
}

// NewLoop creates a loop around host. simulate, if non-nil, runs first
// every tick and is where the hosting application moves its entities.
func NewLoop(host *Host, tickRate int, simulate func(dt float64)) *Loop {
	return &Loop{
		host:     host,
		tickRate: tickRate,
		simulate: simulate,
		stopChan: make(chan struct{}),
	}
}

// Run blocks, ticking until Stop is called.
func (l *Loop) Run() {
	ticker := time.NewTicker(time.Second / time.Duration(l.tickRate))
	defer ticker.Stop()

	dt := 1.0 / float64(l.tickRate)
	log.WithField("rate", l.tickRate).Info("[loop] started")

	for {
		select {
		case <-l.stopChan:
			log.Info("[loop] stopped")
			return
		case <-ticker.C:
			if l.simulate != nil {
				l.simulate(dt)
			}
			l.host.PhysicsTick()
			l.host.Tick(dt)
		}
	}
}

// Stop ends the loop after the current tick.
func (l *Loop) Stop() {
	close(l.stopChan)
}
