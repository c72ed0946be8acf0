package quizsession

// VisibilityHidden counts a tab switch. Reaching the quiz's threshold
// submits the session.
func (c *Controller) VisibilityHidden() {
	c.mu.Lock()
	if !c.monitoringLocked() {
		c.mu.Unlock()
		return
	}

	c.tabSwitches++
	fx := effects{violations: []Violation{c.violationLocked(ViolationTabSwitch, c.tabSwitches, "")}}
	c.log.Warn().Int("tab_switches", c.tabSwitches).Int("threshold", c.quiz.TabSwitchThreshold).Msg("Tab switch detected")

	if c.tabSwitches >= c.quiz.TabSwitchThreshold {
		fx.notices = append(fx.notices, newNotice(NoticeWarning, NoticeTabSwitchLimit))
		c.saveProgressLocked()
		fx.submission = c.beginSubmissionLocked(reasonTabSwitches)
	} else {
		c.markChangedLocked(true)
	}
	c.mu.Unlock()
	c.dispatch(fx)
}

// FullScreenExited counts a full screen exit. The first exit pauses the
// session behind a warning; the second submits it.
func (c *Controller) FullScreenExited() {
	c.mu.Lock()
	if !c.monitoringLocked() || c.state != StateRunning {
		c.mu.Unlock()
		return
	}

	c.fullScreenExits++
	fx := effects{violations: []Violation{c.violationLocked(ViolationFullScreenExit, c.fullScreenExits, "")}}
	c.log.Warn().Int("full_screen_exits", c.fullScreenExits).Msg("Full screen exit detected")

	if c.fullScreenExits >= MaxFullScreenExits {
		fx.notices = append(fx.notices, newNotice(NoticeWarning, NoticeFullScreenLimit))
		c.saveProgressLocked()
		fx.submission = c.beginSubmissionLocked(reasonFullScreenExits)
	} else {
		c.setStateLocked(StateWarned)
		c.countdown.pause()
		fx.notices = append(fx.notices, newNotice(NoticeWarning, NoticeFullScreenWarning))
		c.markChangedLocked(true)
	}
	c.mu.Unlock()
	c.dispatch(fx)
}

// KeyDown suppresses the print screen key while monitoring.
func (c *Controller) KeyDown(key string) Verdict {
	if key != KeyPrintScreen {
		return Verdict{}
	}
	return c.block(ViolationPrintScreen, key, true)
}

// Clipboard suppresses copy, paste and cut while monitoring.
func (c *Controller) Clipboard(op ClipboardOp) Verdict {
	return c.block(ViolationClipboard, string(op), false)
}

// ContextMenu suppresses the context menu while monitoring.
func (c *Controller) ContextMenu() Verdict {
	return c.block(ViolationContextMenu, "", false)
}

// block records a suppressed action; warn also shows the print screen notice.
func (c *Controller) block(kind ViolationKind, detail string, warn bool) Verdict {
	c.mu.Lock()
	if !c.monitoringLocked() {
		c.mu.Unlock()
		return Verdict{}
	}
	fx := effects{violations: []Violation{c.violationLocked(kind, 0, detail)}}
	c.mu.Unlock()

	if warn {
		fx.notices = append(fx.notices, newNotice(NoticeWarning, NoticePrintScreen))
	}
	c.log.Debug().Str("kind", string(kind)).Str("detail", detail).Msg("Action suppressed")
	c.dispatch(fx)
	return Verdict{Suppress: true}
}

func (c *Controller) violationLocked(kind ViolationKind, count int, detail string) Violation {
	v := Violation{
		Kind:      kind,
		StudentID: c.cfg.StudentID,
		QuizID:    c.cfg.QuizID,
		Count:     count,
		Detail:    detail,
		At:        c.clock.Now(),
	}
	if c.attempt != nil {
		v.AttemptID = c.attempt.ID
	}
	return v
}

func (c *Controller) record(v Violation) {
	if c.cfg.Recorder == nil {
		return
	}
	ctx, cancel := c.ioContext()
	defer cancel()

	if err := c.cfg.Recorder.Record(ctx, v); err != nil {
		c.log.Warn().Err(err).Str("kind", string(v.Kind)).Msg("Recording integrity event failed")
	}
}
