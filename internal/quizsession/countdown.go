package quizsession

// countdown tracks the remaining whole seconds of a session. It is advanced
// by exactly one tick source and ignores ticks while paused, so a pause
// never loses or double-counts a second.
type countdown struct {
	remaining int
	paused    bool
}

func newCountdown(seconds int) countdown {
	if seconds < 0 {
		seconds = 0
	}
	// Starts paused; the readiness gate resumes it.
	return countdown{remaining: seconds, paused: true}
}

// tick consumes one second. changed is false when paused or already at
// zero; expired is true on the tick that reaches zero.
func (c *countdown) tick() (changed, expired bool) {
	if c.paused || c.remaining <= 0 {
		return false, false
	}
	c.remaining--
	return true, c.remaining == 0
}

func (c *countdown) pause()  { c.paused = true }
func (c *countdown) resume() { c.paused = false }

func (c *countdown) expired() bool { return c.remaining <= 0 }
