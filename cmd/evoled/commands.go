package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents a side effect to be executed by the daemon loop:
// timers, panel operations, player commands and fetches.
type Command interface {
	commandMarker()
	String() string
}

// CmdStartRenderTimer arms the periodic render timer for a mode.
// Any previous render timer must already be cancelled.
type CmdStartRenderTimer struct {
	Mode     DisplayMode
	Interval time.Duration
	Gen      uint64
}

func (CmdStartRenderTimer) commandMarker() {}
func (c CmdStartRenderTimer) String() string {
	return fmt.Sprintf("CmdStartRenderTimer(mode=%s, interval=%s, gen=%d)", c.Mode, c.Interval, c.Gen)
}

// CmdCancelRenderTimer stops the current render timer, if any.
type CmdCancelRenderTimer struct{}

func (CmdCancelRenderTimer) commandMarker() {}
func (CmdCancelRenderTimer) String() string { return "CmdCancelRenderTimer()" }

// CmdStartIdleTimer arms the one-shot idle timer.
type CmdStartIdleTimer struct {
	After time.Duration
	Gen   uint64
}

func (CmdStartIdleTimer) commandMarker() {}
func (c CmdStartIdleTimer) String() string {
	return fmt.Sprintf("CmdStartIdleTimer(after=%s, gen=%d)", c.After, c.Gen)
}

// CmdCancelIdleTimer stops the idle timer, if any.
type CmdCancelIdleTimer struct{}

func (CmdCancelIdleTimer) commandMarker() {}
func (CmdCancelIdleTimer) String() string { return "CmdCancelIdleTimer()" }

// CmdRenderFrame draws one frame of Mode and hands it to the panel.
// The panel reports completion with PanelReady.
type CmdRenderFrame struct {
	Mode   DisplayMode
	Player PlayerSnapshot
	List   SelectableList
}

func (CmdRenderFrame) commandMarker() {}
func (c CmdRenderFrame) String() string { return fmt.Sprintf("CmdRenderFrame(mode=%s)", c.Mode) }

// CmdNoteFrameSkipped records a render tick dropped because the panel was busy.
type CmdNoteFrameSkipped struct {
	Mode DisplayMode
}

func (CmdNoteFrameSkipped) commandMarker() {}
func (c CmdNoteFrameSkipped) String() string {
	return fmt.Sprintf("CmdNoteFrameSkipped(mode=%s)", c.Mode)
}

// CmdResetScroll restarts text scrolling (offsets and settle frames).
type CmdResetScroll struct{}

func (CmdResetScroll) commandMarker() {}
func (CmdResetScroll) String() string { return "CmdResetScroll()" }

// CmdResetAnimation restarts the screensaver animation.
type CmdResetAnimation struct{}

func (CmdResetAnimation) commandMarker() {}
func (CmdResetAnimation) String() string { return "CmdResetAnimation()" }

// CmdPowerOn turns the panel on.
type CmdPowerOn struct{}

func (CmdPowerOn) commandMarker() {}
func (CmdPowerOn) String() string { return "CmdPowerOn()" }

// CmdPowerOff turns the panel off.
type CmdPowerOff struct{}

func (CmdPowerOff) commandMarker() {}
func (CmdPowerOff) String() string { return "CmdPowerOff()" }

// CmdSetContrast applies contrast on the panel. Like a frame, it keeps the
// panel busy until PanelReady.
type CmdSetContrast struct {
	Value int
}

func (CmdSetContrast) commandMarker() {}
func (c CmdSetContrast) String() string { return fmt.Sprintf("CmdSetContrast(value=%d)", c.Value) }

// CmdSubmitPlayerCommand queues a command line on the dispatcher.
type CmdSubmitPlayerCommand struct {
	Line string
}

func (CmdSubmitPlayerCommand) commandMarker() {}
func (c CmdSubmitPlayerCommand) String() string {
	return fmt.Sprintf("CmdSubmitPlayerCommand(line=%q)", c.Line)
}

// CmdFetchList starts an asynchronous playlist fetch that ends in ListFetched.
type CmdFetchList struct{}

func (CmdFetchList) commandMarker() {}
func (CmdFetchList) String() string { return "CmdFetchList()" }

// CmdRequestFooter asks the backend for supplemental stream format details.
type CmdRequestFooter struct{}

func (CmdRequestFooter) commandMarker() {}
func (CmdRequestFooter) String() string { return "CmdRequestFooter()" }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// CmdShutdown stops the daemon.
type CmdShutdown struct{}

func (CmdShutdown) commandMarker() {}
func (CmdShutdown) String() string { return "CmdShutdown()" }

// ==============================
// Broadcasts (state notifications)
// ==============================

// StateBroadcast is a reducer-emitted notification for state websocket clients.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastModeChanged is emitted on every display mode entry.
type BroadcastModeChanged struct {
	From DisplayMode
	To   DisplayMode
	At   time.Time
}

func (BroadcastModeChanged) broadcastMarker() {}

// BroadcastSnapshot is emitted when the player snapshot changes.
type BroadcastSnapshot struct {
	Snapshot PlayerSnapshot
	At       time.Time
}

func (BroadcastSnapshot) broadcastMarker() {}
