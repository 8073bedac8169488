package main

import (
	"context"
	"log/slog"
)

// Effects executes reducer-emitted Commands (side effects) against the panel,
// timers, the dispatcher and the player backend, and reports observations as
// Events.
//
// Design rules:
//   - Run is called on the daemon goroutine only, and never calls Reduce.
//   - Anything that completes later (panel transfers, timers, fetches) reports
//     through post or offer from its own goroutine.
//   - Run never blocks on the device; panel drivers queue their transfers.
type Effects struct {
	ctx    context.Context
	logger *slog.Logger

	sched    Scheduler
	panel    Panel
	renderer *Renderer

	dispatcher CommandSubmitter
	lists      ListSource
	footer     FooterRequester

	// post delivers an event that must not be lost (panel completions, fetch
	// results, idle expiries). offer may drop the event (render ticks).
	post     func(Event)
	offer    func(Event) bool
	shutdown func()

	renderTimer Timer
	idleTimer   Timer
}

// EffectsDeps are the collaborators of Effects.
type EffectsDeps struct {
	Scheduler  Scheduler
	Panel      Panel
	Renderer   *Renderer
	Dispatcher CommandSubmitter
	Lists      ListSource
	Footer     FooterRequester
	Post       func(Event)
	Offer      func(Event) bool
	Shutdown   func()
}

// NewEffects validates deps and returns the effects executor.
func NewEffects(ctx context.Context, deps EffectsDeps, logger *slog.Logger) *Effects {
	if deps.Scheduler == nil {
		deps.Scheduler = realScheduler{}
	}
	if deps.Offer == nil {
		post := deps.Post
		deps.Offer = func(ev Event) bool { post(ev); return true }
	}
	if deps.Shutdown == nil {
		deps.Shutdown = func() {}
	}
	return &Effects{
		ctx:        ctx,
		logger:     logger,
		sched:      deps.Scheduler,
		panel:      deps.Panel,
		renderer:   deps.Renderer,
		dispatcher: deps.Dispatcher,
		lists:      deps.Lists,
		footer:     deps.Footer,
		post:       deps.Post,
		offer:      deps.Offer,
		shutdown:   deps.Shutdown,
	}
}

// Run executes a single command.
func (e *Effects) Run(cmd Command) {
	e.logger.Debug("effect", "cmd", cmd.String())

	switch c := cmd.(type) {
	case CmdStartRenderTimer:
		e.stopRenderTimer()
		e.renderTimer = e.sched.Every(c.Interval, func() {
			if !e.offer(RenderTick{Mode: c.Mode, Gen: c.Gen}) {
				framesTotal.WithLabelValues(string(c.Mode), "dropped").Inc()
			}
		})

	case CmdCancelRenderTimer:
		e.stopRenderTimer()

	case CmdStartIdleTimer:
		e.stopIdleTimer()
		e.idleTimer = e.sched.AfterFunc(c.After, func() {
			e.post(IdleTimerFired{Gen: c.Gen})
		})

	case CmdCancelIdleTimer:
		e.stopIdleTimer()

	case CmdRenderFrame:
		e.renderer.Render(c)
		e.panel.Present(false, func() { e.post(PanelReady{}) })
		framesTotal.WithLabelValues(string(c.Mode), "rendered").Inc()

	case CmdNoteFrameSkipped:
		framesTotal.WithLabelValues(string(c.Mode), "skipped").Inc()

	case CmdResetScroll:
		e.renderer.ResetScroll()

	case CmdResetAnimation:
		e.renderer.ResetAnimation()

	case CmdPowerOn:
		if err := e.panel.PowerOn(); err != nil {
			e.logger.Warn("panel power on failed", "error", err)
		}

	case CmdPowerOff:
		e.panel.ClearBuffer()
		if err := e.panel.PowerOff(); err != nil {
			e.logger.Warn("panel power off failed", "error", err)
		}

	case CmdSetContrast:
		e.logger.Info("setting contrast", "value", c.Value)
		e.panel.SetContrast(c.Value, func() { e.post(PanelReady{}) })

	case CmdSubmitPlayerCommand:
		if e.dispatcher == nil {
			e.logger.Warn("dropping player command", "error", errNoCollaborator{name: "dispatcher"}, "line", c.Line)
			return
		}
		e.dispatcher.Submit(c.Line)

	case CmdFetchList:
		e.fetchList()

	case CmdRequestFooter:
		if e.footer != nil {
			e.footer.RequestFooter()
		}

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			return
		}
		select {
		case c.Reply <- c.Snapshot:
		default:
		}

	case CmdShutdown:
		e.logger.Info("shutdown requested")
		e.shutdown()

	default:
		e.logger.Error("effect failed", "error", errUnknownCommand{cmd: cmd})
	}
}

func (e *Effects) fetchList() {
	if e.lists == nil {
		go e.post(ListFetched{Err: errNoCollaborator{name: "list source"}})
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, listFetchTimeout)
		defer cancel()

		items, err := e.lists.FetchLists(ctx)
		if err != nil {
			e.logger.Warn("playlist fetch failed", "error", err)
		} else {
			e.logger.Info("playlists fetched", "count", len(items))
		}
		e.post(ListFetched{Items: items, Err: err})
	}()
}

func (e *Effects) stopRenderTimer() {
	if e.renderTimer != nil {
		e.renderTimer.Stop()
		e.renderTimer = nil
	}
}

func (e *Effects) stopIdleTimer() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
}

// StopTimers cancels both timers; used when the daemon loop exits.
func (e *Effects) StopTimers() {
	e.stopRenderTimer()
	e.stopIdleTimer()
}

// errNoCollaborator indicates a command needed a collaborator that is not configured.
type errNoCollaborator struct{ name string }

func (e errNoCollaborator) Error() string { return "no " + e.name + " configured" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
