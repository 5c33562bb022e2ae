package domain

// ─────────────────────────────────────────────────────────────────
// Trigger mode
// ─────────────────────────────────────────────────────────────────

// Mode decides whether the trigger controller may fire on its own.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// ModeEvent is a request outcome the trigger controller reacts to.
type ModeEvent string

const (
	ModeEventDelivered     ModeEvent = "delivered"
	ModeEventLowConfidence ModeEvent = "low_confidence"
	ModeEventFailed        ModeEvent = "failed"
)

var modeTransitions = map[Mode]map[ModeEvent]Mode{
	ModeAuto: {
		ModeEventDelivered:     ModeManual,
		ModeEventLowConfidence: ModeAuto,
		ModeEventFailed:        ModeAuto,
	},
	ModeManual: {
		ModeEventDelivered:     ModeManual,
		ModeEventLowConfidence: ModeManual,
		ModeEventFailed:        ModeManual,
	},
}

// NextMode returns the mode after ev. Manual is absorbing.
func NextMode(m Mode, ev ModeEvent) Mode {
	if next, ok := modeTransitions[m][ev]; ok {
		return next
	}
	return m
}

// ─────────────────────────────────────────────────────────────────
// Session lifecycle
// ─────────────────────────────────────────────────────────────────

// SessionState is where an editing session sits in the request cycle.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateRequesting SessionState = "requesting"
	StatePending    SessionState = "pending"
)

// SessionEvent drives SessionState transitions.
type SessionEvent string

const (
	// EventTrigger starts a request. From Pending it is only legal for a
	// user initiated request, which supersedes the shown suggestion.
	EventTrigger SessionEvent = "trigger"
	// EventDelivered means assembly produced a suggestion.
	EventDelivered SessionEvent = "delivered"
	// EventNoSuggestion covers quota denial, low confidence and failures.
	EventNoSuggestion SessionEvent = "no_suggestion"
	// EventResolved is accept, dismiss or expiry of the pending suggestion.
	EventResolved SessionEvent = "resolved"
	// EventEnd tears the session down from any state.
	EventEnd SessionEvent = "end"
)

var sessionTransitions = map[SessionState]map[SessionEvent]SessionState{
	StateIdle: {
		EventTrigger: StateRequesting,
		EventEnd:     StateIdle,
	},
	StateRequesting: {
		EventDelivered:    StatePending,
		EventNoSuggestion: StateIdle,
		EventEnd:          StateIdle,
	},
	StatePending: {
		EventTrigger:  StateRequesting,
		EventResolved: StateIdle,
		EventEnd:      StateIdle,
	},
}

// NextState returns the state reached from s on ev, and false when the
// transition is not allowed.
func NextState(s SessionState, ev SessionEvent) (SessionState, bool) {
	next, ok := sessionTransitions[s][ev]
	return next, ok
}
