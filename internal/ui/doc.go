// Package ui implements an interactive terminal task monitor using bubbletea's Elm architecture.
//
// The TUI connects to a running bridge daemon and provides two views:
//  1. [TaskListView] : Browse queued and finished transfer tasks
//  2. [DetailView] : Inspect a single task, including its result link
//
// The [Model] implements bubbletea's standard Init/Update/View pattern. Live
// task updates flow through a WebSocket subscription on the bridge, surfaced
// to the update loop as [taskEventMsg] values so the list refreshes without
// polling.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, c, q) with
// contextual help displayed via charmbracelet/bubbles/help.
package ui
