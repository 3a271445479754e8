package domain

import (
	"errors"
	"fmt"
)

// BroadcastStatus is the lifecycle state of a broadcast.
type BroadcastStatus string

// List of broadcast statuses
const (
	StatusCreated           BroadcastStatus = "CREATED"
	StatusBroadcasting      BroadcastStatus = "BROADCASTING"
	StatusAwaitingResponses BroadcastStatus = "AWAITING_RESPONSES"
	StatusPartiallyFilled   BroadcastStatus = "PARTIALLY_FILLED"
	StatusFullyFilled       BroadcastStatus = "FULLY_FILLED"
	StatusCancelled         BroadcastStatus = "CANCELLED"
	StatusExpired           BroadcastStatus = "EXPIRED"
	StatusClosed            BroadcastStatus = "CLOSED"
)

var allStatuses = [...]BroadcastStatus{
	StatusCreated, StatusBroadcasting, StatusAwaitingResponses, StatusPartiallyFilled,
	StatusFullyFilled, StatusCancelled, StatusExpired, StatusClosed,
}

// Valid checks if the status is one of the known states.
func (s BroadcastStatus) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Active reports whether the broadcast still holds the customer's single slot.
func (s BroadcastStatus) Active() bool {
	switch s {
	case StatusCreated, StatusBroadcasting, StatusAwaitingResponses, StatusPartiallyFilled:
		return true
	default:
		return false
	}
}

// Terminal reports whether dispatch is over. FULLY_FILLED is terminal for dispatch;
// the only edge out of it is the administrative Close, which never reopens slots.
func (s BroadcastStatus) Terminal() bool {
	return s.Valid() && !s.Active()
}

// Trigger is an input to the lifecycle state machine.
type Trigger int

// List of triggers
const (
	TriggerNotify Trigger = iota + 1
	TriggerOpenWindow
	TriggerAccept
	TriggerCancel
	TriggerExpire
	TriggerClose
)

func (t Trigger) String() string {
	switch t {
	case TriggerNotify:
		return "notify"
	case TriggerOpenWindow:
		return "open_window"
	case TriggerAccept:
		return "accept"
	case TriggerCancel:
		return "cancel"
	case TriggerExpire:
		return "expire"
	case TriggerClose:
		return "close"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// ErrInvalidTransition is returned for a trigger that is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid transition")

// Sources returns the states from which the trigger may fire. Conditional updates in the
// store use this set as their WHERE status = ANY(...) guard.
func Sources(t Trigger) []BroadcastStatus {
	switch t {
	case TriggerNotify:
		return []BroadcastStatus{StatusCreated}
	case TriggerOpenWindow:
		return []BroadcastStatus{StatusBroadcasting}
	case TriggerAccept:
		return []BroadcastStatus{StatusBroadcasting, StatusAwaitingResponses, StatusPartiallyFilled}
	case TriggerCancel:
		return []BroadcastStatus{StatusCreated, StatusBroadcasting, StatusAwaitingResponses, StatusPartiallyFilled}
	case TriggerExpire:
		return []BroadcastStatus{StatusCreated, StatusBroadcasting, StatusAwaitingResponses, StatusPartiallyFilled}
	case TriggerClose:
		return []BroadcastStatus{StatusBroadcasting, StatusAwaitingResponses, StatusPartiallyFilled, StatusFullyFilled}
	default:
		return nil
	}
}

// Next computes the next state. filledAfter and needed are only read for TriggerAccept,
// where filledAfter is the slot count once the accept has been applied.
func Next(from BroadcastStatus, t Trigger, filledAfter, needed int) (BroadcastStatus, error) {
	if !allowedFrom(from, t) {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, from)
	}
	switch t {
	case TriggerNotify:
		return StatusBroadcasting, nil
	case TriggerOpenWindow:
		return StatusAwaitingResponses, nil
	case TriggerAccept:
		if filledAfter <= 0 || filledAfter > needed {
			return from, fmt.Errorf("%w: accept would fill %d of %d", ErrInvalidTransition, filledAfter, needed)
		}
		if filledAfter == needed {
			return StatusFullyFilled, nil
		}
		return StatusPartiallyFilled, nil
	case TriggerCancel:
		return StatusCancelled, nil
	case TriggerExpire:
		return StatusExpired, nil
	case TriggerClose:
		return StatusClosed, nil
	default:
		return from, fmt.Errorf("%w: unknown %s", ErrInvalidTransition, t)
	}
}

// Allows reports whether t may fire from s.
func (s BroadcastStatus) Allows(t Trigger) bool {
	return allowedFrom(s, t)
}

func allowedFrom(from BroadcastStatus, t Trigger) bool {
	for _, s := range Sources(t) {
		if s == from {
			return true
		}
	}
	return false
}

// StatusStrings converts statuses for query parameters.
func StatusStrings(in []BroadcastStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
