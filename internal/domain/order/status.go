package order

import (
	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// transitions lists every legal move. Pairs not listed here are rejected.
var transitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusDelivered, StatusCancelled},
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", apperr.Validation("unknown order status %q", s)
	}
}

// Terminal reports whether no further change is allowed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Rank orders active statuses by kitchen urgency. Terminal statuses rank last.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusPreparing:
		return 2
	case StatusReady:
		return 3
	default:
		return 4
	}
}

func (s Status) String() string { return string(s) }
