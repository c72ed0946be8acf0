package quizsession

import "fmt"

// StartSession is the readiness-gate intent. It asks the screen for full
// screen; the session starts when FullScreenEntered confirms it.
func (c *Controller) StartSession() error {
	c.mu.Lock()
	if c.state != StateAwaitingReady {
		c.mu.Unlock()
		return ErrNotAwaitingStart
	}
	c.startPending = true
	c.mu.Unlock()

	if err := c.cfg.Screen.RequestFullScreen(); err != nil {
		c.mu.Lock()
		c.startPending = false
		c.mu.Unlock()

		c.log.Warn().Err(err).Msg("Full screen request rejected")
		c.notify(newNotice(NoticeError, NoticeFullScreenFailed))
		return fmt.Errorf("request full screen: %w", err)
	}
	return nil
}

// ReEnterFullScreen is the warning modal's intent.
func (c *Controller) ReEnterFullScreen() error {
	c.mu.Lock()
	if c.state != StateWarned {
		c.mu.Unlock()
		return ErrNotWarned
	}
	c.mu.Unlock()

	if err := c.cfg.Screen.RequestFullScreen(); err != nil {
		c.log.Warn().Err(err).Msg("Full screen re-entry rejected")
		c.notify(newNotice(NoticeError, NoticeFullScreenFailed))
		return fmt.Errorf("request full screen: %w", err)
	}
	return nil
}

// FullScreenEntered reports that the screen is now full screen. It passes
// the readiness gate after StartSession and clears the warning otherwise.
func (c *Controller) FullScreenEntered() {
	c.mu.Lock()
	var fx effects
	switch c.state {
	case StateAwaitingReady:
		if c.startPending {
			c.startPending = false
			fx = c.enterRunningLocked()
		}
	case StateWarned:
		if c.setStateLocked(StateRunning) {
			if c.monitor != nil {
				c.monitor.restartTicks()
			}
			c.countdown.resume()
			c.saveProgressLocked()
			c.renderLocked()
		}
	}
	c.mu.Unlock()
	c.dispatch(fx)
}

// FullScreenFailed reports an asynchronous rejection of a full screen
// request. The state stays where it was.
func (c *Controller) FullScreenFailed(reason string) {
	c.mu.Lock()
	relevant := c.state == StateWarned || (c.state == StateAwaitingReady && c.startPending)
	c.startPending = false
	c.mu.Unlock()

	if !relevant {
		return
	}
	c.log.Warn().Str("reason", reason).Msg("Full screen request failed")
	c.notify(newNotice(NoticeError, NoticeFullScreenFailed))
}

func (c *Controller) enterRunningLocked() effects {
	var fx effects

	m, err := startMonitor(c.clock, c.cfg.Sensors, c.onTick)
	if err != nil {
		c.log.Error().Err(err).Msg("Attaching integrity sensors failed")
		fx.notices = append(fx.notices, newNotice(NoticeError, NoticeFullScreenFailed))
		return fx
	}

	c.monitor = m
	c.setStateLocked(StateRunning)
	c.countdown.resume()
	c.log.Info().Int("remaining_seconds", c.countdown.remaining).Msg("Session started")

	if c.countdown.expired() {
		fx.notices = append(fx.notices, newNotice(NoticeWarning, NoticeTimeUp))
		fx.submission = c.beginSubmissionLocked(reasonTimeUp)
		return fx
	}

	c.saveProgressLocked()
	c.renderLocked()
	return fx
}

// onTick drives the countdown once per second while running.
func (c *Controller) onTick(m *monitor) {
	c.mu.Lock()
	if c.monitor != m || c.state != StateRunning {
		c.mu.Unlock()
		return
	}

	var fx effects
	changed, expired := c.countdown.tick()
	if expired {
		fx.notices = append(fx.notices, newNotice(NoticeWarning, NoticeTimeUp))
		fx.submission = c.beginSubmissionLocked(reasonTimeUp)
	} else if changed {
		c.markChangedLocked(false)
	}
	c.mu.Unlock()
	c.dispatch(fx)
}
