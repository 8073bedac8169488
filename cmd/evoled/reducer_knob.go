package main

// ============================================================================
// Knob mode router
// ============================================================================
// In volume mode the knob adjusts volume and a short press toggles playback;
// a long press fetches playlists and, once they arrive, switches the knob to
// list browsing. In list browsing mode rotation moves the cursor and a press
// plays the selected playlist and returns to volume mode.
// ============================================================================

func (r *reduction) onRotate(e KnobRotated) {
	k := &r.s.Knob
	switch k.Mode {
	case KnobVolume:
		switch e.Direction {
		case Clockwise:
			r.submit(r.cfg.Commands.VolumeUp)
		case CounterClockwise:
			r.submit(r.cfg.Commands.VolumeDown)
		}

	case KnobListBrowsing:
		if k.Fetching || len(k.List.Items) == 0 {
			return
		}
		before := k.List.Selected
		if k.List.MoveSelection(int(e.Direction)) != before && r.s.Display.Mode == ModeListBrowser {
			r.requestFrame(false)
		}
	}
}

func (r *reduction) onPress(e KnobPressed) {
	k := &r.s.Knob
	switch k.Mode {
	case KnobVolume:
		if e.Long {
			r.startBrowse()
			return
		}
		r.submit(r.cfg.Commands.Toggle)

	case KnobListBrowsing:
		if k.Fetching {
			return
		}
		if item, ok := k.List.SelectedItem(); ok {
			r.submit(r.cfg.Commands.PlayListLine(item))
		}
		r.leaveBrowser()
	}
}

func (r *reduction) startBrowse() {
	r.s.Knob = KnobState{Mode: KnobListBrowsing, Fetching: true}
	r.cmd(CmdFetchList{})
}

func (r *reduction) onListFetched(e ListFetched) {
	k := &r.s.Knob
	if k.Mode != KnobListBrowsing || !k.Fetching {
		return
	}
	if e.Err != nil || len(e.Items) == 0 {
		r.s.Knob = KnobState{Mode: KnobVolume}
		return
	}
	k.Fetching = false
	k.List = NewSelectableList(e.Items)
	r.wakeTo(ModeListBrowser)
}

func (r *reduction) leaveBrowser() {
	r.s.Knob = KnobState{Mode: KnobVolume}
	if r.s.Display.Mode == ModeListBrowser {
		r.enterMode(ModePlayback)
	}
}

func (r *reduction) submit(line string) {
	if line == "" {
		return
	}
	r.cmd(CmdSubmitPlayerCommand{Line: line})
}
