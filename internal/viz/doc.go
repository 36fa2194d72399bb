// Package viz renders a layer layout and its playback in the terminal.
//
//   - [Canvas]: Braille-based pixel canvas with per-cell tones
//   - [Camera]: perspective projection framed by the layout camera
//   - [Scene]: layers, primary edges, residual arcs and the flow marker
//   - [App]: Bubble Tea program driving a playback.Player
//
// # Key Bindings
//
//	Space - Play/Pause
//	←/→   - Step backward/forward
//	R     - Reset
//	+/-   - Speed
//	F     - Data-flow pulse over every edge
//	C     - Reset camera
//	T     - Cycle color themes
//	?     - Show help overlay
package viz
