package order

import (
	"fmt"
	"strings"
)

// TransitionError reports a status change the active policy forbids.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// TransitionPolicy decides whether an order may move between statuses.
type TransitionPolicy interface {
	Allow(from, to Status) bool
}

// Unrestricted permits any change between valid statuses.
type Unrestricted struct{}

func (Unrestricted) Allow(_, _ Status) bool { return true }

// ForwardOnly walks pending, processing, shipped, delivered in order and lets
// any non-terminal order be cancelled. Setting the current status again is
// allowed.
type ForwardOnly struct{}

var forward = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
}

func (ForwardOnly) Allow(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PolicyByName resolves the configured policy name.
func PolicyByName(name string) (TransitionPolicy, error) {
	switch strings.ToLower(name) {
	case "", "unrestricted":
		return Unrestricted{}, nil
	case "forward", "forward_only":
		return ForwardOnly{}, nil
	default:
		return nil, fmt.Errorf("unknown transition policy %q", name)
	}
}
