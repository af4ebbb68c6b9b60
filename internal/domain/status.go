package domain

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the states shown on the staff dashboard.
var ActiveStatuses = []Status{StatusPending, StatusAccepted, StatusPreparing, StatusReady}

// AllowedTransitions is the order state flow as code. Cancellation is
// reachable from every non-terminal state; skipping forward is not.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusCompleted, StatusCancelled},
}

var allowedTransitionSet = buildTransitionSet(AllowedTransitions)

func buildTransitionSet(transitions map[Status][]Status) map[Status]map[Status]struct{} {
	set := make(map[Status]map[Status]struct{}, len(transitions))
	for from, tos := range transitions {
		next := make(map[Status]struct{}, len(tos))
		for _, to := range tos {
			next[to] = struct{}{}
		}
		set[from] = next
	}
	return set
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Rank is the position of a status on the fulfillment path. Cancelled
// ranks above everything so a cancellation always supersedes an
// in-flight optimistic step.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAccepted:
		return 1
	case StatusPreparing:
		return 2
	case StatusReady:
		return 3
	case StatusCompleted:
		return 4
	case StatusCancelled:
		return 5
	}
	return -1
}

// Supersedes reports whether status a already reflects b or a later step:
// an authoritative value that supersedes an optimistic patch makes the
// patch redundant.
func Supersedes(a, b Status) bool {
	return a.Rank() >= b.Rank()
}

// CanTransition checks a single edge of the transition table.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitionSet[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// InvalidTransitionError carries the attempted edge for diagnostics.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %q -> %q", e.From, e.To)
}

// Transition validates the requested status change against the transition
// table and returns a copy of the order with the new status. Pure: no
// I/O, the input order is not modified.
func Transition(order Order, target Status) (Order, error) {
	if !CanTransition(order.Status, target) {
		return Order{}, &InvalidTransitionError{From: order.Status, To: target}
	}
	order.Status = target
	return order, nil
}
