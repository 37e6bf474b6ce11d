package session

import "github.com/abhishek622/evalengine/pkg/model"

// transitions lists the statuses reachable from each status. Statuses without
// an entry accept no further transitions.
var transitions = map[model.SessionStatus][]model.SessionStatus{
	model.SessionStatusInitiated: {
		model.SessionStatusInProgress,
		model.SessionStatusCompleted,
	},
	model.SessionStatusInProgress: {
		model.SessionStatusInProgress,
		model.SessionStatusCompleted,
		model.SessionStatusPaused,
		model.SessionStatusAbandoned,
		model.SessionStatusExpired,
	},
	model.SessionStatusPaused: {
		model.SessionStatusInProgress,
		model.SessionStatusCompleted,
		model.SessionStatusAbandoned,
		model.SessionStatusExpired,
	},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to model.SessionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
