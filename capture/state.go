package capture

import (
	"fmt"

	"github.com/pkg/errors"
)

// State is the lifecycle state of a Session.
type State int

// Session states.
const (
	StateClosed State = iota
	StateOpening
	StateOpened
	StateSessionConfiguring
	StateStreaming
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpened:
		return "opened"
	case StateSessionConfiguring:
		return "session-configuring"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type eventKind int

const (
	evOpenRequested eventKind = iota
	evDeviceOpened
	evDeviceFailed
	evConfigureRequested
	evSessionConfigured
	evSessionFailed
	evDeviceLost
	evCloseRequested
	evClosed
)

var eventNames = [...]string{
	"open-requested",
	"device-opened",
	"device-failed",
	"configure-requested",
	"session-configured",
	"session-failed",
	"device-lost",
	"close-requested",
	"closed",
}

func (k eventKind) String() string { return eventNames[k] }

// event is one input to the session state machine.
type event struct {
	kind   eventKind
	device Device
	reader *Reader
	stream Stream
	err    error
}

var errInvalidTransition = errors.New("invalid session transition")

// transitions lists the allowed moves. Events missing from a state's row are
// rejected with errInvalidTransition.
var transitions = map[State]map[eventKind]State{
	StateClosed: {
		evOpenRequested:  StateOpening,
		evCloseRequested: StateClosed,
		evDeviceLost:     StateClosed,
	},
	StateOpening: {
		evDeviceOpened:   StateOpened,
		evDeviceFailed:   StateClosed,
		evDeviceLost:     StateClosed,
		evCloseRequested: StateClosing,
	},
	StateOpened: {
		evConfigureRequested: StateSessionConfiguring,
		evDeviceLost:         StateClosed,
		evCloseRequested:     StateClosing,
	},
	StateSessionConfiguring: {
		evSessionConfigured: StateStreaming,
		evSessionFailed:     StateClosed,
		evDeviceLost:        StateClosed,
		evCloseRequested:    StateClosing,
	},
	StateStreaming: {
		evDeviceLost:     StateClosed,
		evCloseRequested: StateClosing,
	},
	StateClosing: {
		evClosed:     StateClosed,
		evDeviceLost: StateClosing,
	},
}

func nextState(from State, kind eventKind) (State, error) {
	to, ok := transitions[from][kind]
	if !ok {
		return from, errors.Wrapf(errInvalidTransition, "%s on %s", kind, from)
	}
	return to, nil
}
