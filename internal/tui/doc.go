// Package tui implements the live watch dashboard for tuyatap.
//
// The dashboard is a full-screen Bubble Tea program with a single screen: a
// scrolling frame log on top, a data point table below it and a status bar
// at the bottom. It follows the Elm architecture with immutable state
// updates and a Model-Update-View pattern.
//
// # Feeding the Dashboard
//
// The model does not read serial ports or capture files itself. It is
// constructed over a channel of decoded events and converts each delivery
// into a Bubble Tea message:
//
//	events := make(chan protocol.Event, 64)
//	go feed(events) // live tap or paced replay; closes events when done
//
//	model := tui.New(events, &session, prof)
//	program := tea.NewProgram(model, tea.WithAltScreen())
//	if _, err := program.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// Closing the channel ends the stream: the dashboard stays up showing the
// final state until the user quits.
//
// # Framework Components
//
//   - bubbles/viewport: scrolling frame log
//   - bubbles/table: per-id data point registry
//   - bubbles/spinner: waiting indicator before the first frame
//   - bubbles/help: context-aware key binding help
//   - lipgloss: styling and layout
//
// # Key Bindings
//
//   - ↑/k, ↓/j, pgup, pgdn: scroll the frame log (pauses follow)
//   - f: toggle follow mode (auto-scroll to newest frame)
//   - ?: expand or collapse help
//   - q, ctrl+c: quit
//
// # Profiles
//
// When a device profile is supplied, data point lines and table rows show
// labels and scaled engineering values from it. The profile is advisory
// display metadata only; what was decoded from the wire is never altered.
package tui
