package models

// TickerState is the position of one ticker in an acquisition run.
type TickerState int

const (
	StateNeedsFullHistory TickerState = iota
	StateAwaitingFetch
	StateMerging
	StateDone
	StateFailed
)

var tickerStateNames = [...]string{
	StateNeedsFullHistory: "needs_full_history",
	StateAwaitingFetch:    "awaiting_fetch",
	StateMerging:          "merging",
	StateDone:             "done",
	StateFailed:           "failed",
}

func (s TickerState) String() string {
	if s < 0 || int(s) >= len(tickerStateNames) {
		return "unknown"
	}
	return tickerStateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s TickerState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to TickerState) bool {
	switch from {
	case StateNeedsFullHistory:
		return to == StateAwaitingFetch || to == StateMerging || to == StateDone || to == StateFailed
	case StateAwaitingFetch:
		return to == StateMerging || to == StateDone || to == StateFailed
	case StateMerging:
		return to == StateDone || to == StateFailed
	default:
		return false
	}
}
