package session

import "github.com/sweeney/study-station/internal/logic"

// Button names.
const (
	ButtonStart = "start"
	ButtonBreak = "break"
)

// Long-press tier names.
const (
	TierCancel     = "cancel"
	TierEndSession = "end_session"
)

// Command is a controller operation triggered by a gesture.
type Command string

const (
	CmdStartWork  Command = "START_WORK"
	CmdStartBreak Command = "START_BREAK"
	CmdCancel     Command = "CANCEL"
	CmdEndSession Command = "END_SESSION"
)

// Binding matches a gesture on a button. Tier is only set for long presses.
type Binding struct {
	Button string
	Kind   logic.GestureKind
	Tier   string
}

// Keymap maps gestures to commands.
type Keymap map[Binding]Command

// DefaultKeymap is the two-button layout of the station:
// start short = work, start double = storno, break short = break,
// break long (cancel tier) = storno, long end_session tier on either = end.
func DefaultKeymap() Keymap {
	return Keymap{
		{ButtonStart, logic.GestureShortPress, ""}:            CmdStartWork,
		{ButtonStart, logic.GestureDoubleClick, ""}:           CmdCancel,
		{ButtonStart, logic.GestureLongPress, TierCancel}:     CmdCancel,
		{ButtonStart, logic.GestureLongPress, TierEndSession}: CmdEndSession,
		{ButtonBreak, logic.GestureShortPress, ""}:            CmdStartBreak,
		{ButtonBreak, logic.GestureLongPress, TierCancel}:     CmdCancel,
		{ButtonBreak, logic.GestureLongPress, TierEndSession}: CmdEndSession,
	}
}

// Lookup returns the command bound to a gesture.
func (k Keymap) Lookup(button string, g logic.GestureEvent) (Command, bool) {
	tier := ""
	if g.Kind == logic.GestureLongPress {
		tier = g.Tier
	}
	cmd, ok := k[Binding{Button: button, Kind: g.Kind, Tier: tier}]
	return cmd, ok
}
