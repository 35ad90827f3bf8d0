package jobs

import "ottie/internal/model"

// rank orders the non-error statuses. Status only ever moves to a
// higher rank, or to error.
var rank = map[model.Status]int{
	model.StatusQueued:    0,
	model.StatusScraping:  1,
	model.StatusPending:   2,
	model.StatusCompleted: 3,
}

// Valid reports whether s is one of the known statuses.
func Valid(s model.Status) bool {
	if s == model.StatusError {
		return true
	}
	_, ok := rank[s]
	return ok
}

// Terminal reports whether no further worker transition may leave s.
func Terminal(s model.Status) bool {
	return s == model.StatusCompleted || s == model.StatusError
}

// CanTransition reports whether the worker may move a record from one
// status to another. Forward moves are allowed; error is reachable from
// every non-terminal status; nothing leaves a terminal status.
func CanTransition(from, to model.Status) bool {
	if !Valid(from) || !Valid(to) || Terminal(from) {
		return false
	}
	if to == model.StatusError {
		return true
	}
	return rank[to] > rank[from]
}

// CanResume reports whether a manual stage re-run may move a record back
// to pending. Records still owned by the queue or scraper are excluded.
func CanResume(from, to model.Status) bool {
	if to != model.StatusPending {
		return false
	}
	switch from {
	case model.StatusPending, model.StatusCompleted, model.StatusError:
		return true
	}
	return false
}

// AllowedFrom lists every status from which CanTransition(from, to)
// holds. Stores use it to build conditional updates.
func AllowedFrom(to model.Status) []model.Status {
	all := []model.Status{
		model.StatusQueued,
		model.StatusScraping,
		model.StatusPending,
		model.StatusCompleted,
		model.StatusError,
	}
	out := make([]model.Status, 0, len(all))
	for _, from := range all {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// ResumableFrom lists every status from which CanResume(from, to) holds.
func ResumableFrom(to model.Status) []model.Status {
	out := make([]model.Status, 0, 3)
	for _, from := range []model.Status{model.StatusPending, model.StatusCompleted, model.StatusError} {
		if CanResume(from, to) {
			out = append(out, from)
		}
	}
	return out
}
