package models

type LineStatus string

const (
	StatusInit                LineStatus = "init"
	StatusRequesting          LineStatus = "requesting"
	StatusWaitingConfirmation LineStatus = "waiting_confirmation"
	StatusRetry               LineStatus = "retry"
	StatusForceDone           LineStatus = "force_done"
	StatusDone                LineStatus = "done"
)

var lineTransitions = map[LineStatus][]LineStatus{
	StatusInit:                {StatusRequesting, StatusRetry},
	StatusRetry:               {StatusRequesting, StatusRetry, StatusDone},
	StatusRequesting:          {StatusWaitingConfirmation, StatusDone, StatusRetry, StatusForceDone},
	StatusWaitingConfirmation: {StatusDone, StatusRetry, StatusForceDone},
}

// IsTerminal reports whether no transition leaves the status.
func (s LineStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusForceDone
}

// IsInFlight reports whether a payment request is outstanding for the status.
func (s LineStatus) IsInFlight() bool {
	return s == StatusRequesting || s == StatusWaitingConfirmation
}

// CanTransition reports whether the state machine allows from -> to.
// retry -> done only happens when a cancelled wait is later settled by the terminal.
func CanTransition(from, to LineStatus) bool {
	for _, next := range lineTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesOf lists every status that may move to the given one.
func SourcesOf(to LineStatus) []LineStatus {
	var from []LineStatus
	for _, s := range []LineStatus{StatusInit, StatusRequesting, StatusWaitingConfirmation, StatusRetry} {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}
