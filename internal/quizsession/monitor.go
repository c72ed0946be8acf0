package quizsession

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// monitor is the scope that exists while a session is past the readiness
// gate: the one-second tick source and the attached integrity sensors.
// release tears both down and is idempotent, so every exit path can call it.
type monitor struct {
	ticker  clockwork.Ticker
	detach  func()
	stop    chan struct{}
	release func()
}

func startMonitor(clock clockwork.Clock, sensors Sensors, onTick func(*monitor)) (*monitor, error) {
	detach, err := sensors.Attach()
	if err != nil {
		return nil, err
	}

	m := &monitor{
		ticker: clock.NewTicker(time.Second),
		detach: detach,
		stop:   make(chan struct{}),
	}

	var once sync.Once
	m.release = func() {
		once.Do(func() {
			m.ticker.Stop()
			close(m.stop)
			if m.detach != nil {
				m.detach()
			}
		})
	}

	go func() {
		for {
			select {
			case <-m.stop:
				return
			case <-m.ticker.Chan():
				onTick(m)
			}
		}
	}()

	return m, nil
}

// restartTicks puts the next tick a full second out and drops a tick that
// fired while the countdown was paused.
func (m *monitor) restartTicks() {
	m.ticker.Reset(time.Second)
	select {
	case <-m.ticker.Chan():
	default:
	}
}
