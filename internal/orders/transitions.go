package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/safar/go-grocery-store/internal/models"
)

var ErrTransitionNotAllowed = errors.New("status transition not allowed")

type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrTransitionNotAllowed
}

// TransitionPolicy decides whether an order may move between two statuses.
// Both statuses are already known to be valid.
type TransitionPolicy interface {
	Allow(from, to models.OrderStatus) error
}

// PermissiveTransitions lets any status follow any other, including
// repeats and moves backwards.
type PermissiveTransitions struct{}

func (PermissiveTransitions) Allow(from, to models.OrderStatus) error {
	return nil
}

// ForwardOnlyTransitions moves orders strictly forward through the
// fulfillment stages, possibly skipping some. Cancellation is possible until
// delivery; delivered and cancelled orders are final.
type ForwardOnlyTransitions struct{}

var stageRank = map[models.OrderStatus]int{
	models.OrderStatusPending:    0,
	models.OrderStatusConfirmed:  1,
	models.OrderStatusProcessing: 2,
	models.OrderStatusShipped:    3,
	models.OrderStatusDelivered:  4,
}

func (ForwardOnlyTransitions) Allow(from, to models.OrderStatus) error {
	if from == models.OrderStatusDelivered || from == models.OrderStatusCancelled {
		return &TransitionError{From: from, To: to}
	}
	if to == models.OrderStatusCancelled {
		return nil
	}
	if stageRank[to] <= stageRank[from] {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

const (
	PolicyPermissive = "permissive"
	PolicyForward    = "forward"
)

// PolicyByName resolves the ORDER_STATUS_POLICY setting.
func PolicyByName(name string) (TransitionPolicy, error) {
	switch strings.ToLower(name) {
	case "", PolicyPermissive:
		return PermissiveTransitions{}, nil
	case PolicyForward:
		return ForwardOnlyTransitions{}, nil
	}
	return nil, fmt.Errorf("unknown status policy %q", name)
}
