package orders

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/leafcart/strain-admin/internal/metrics"
)

// Service validates and applies status transitions. It owns the lifecycle
// rules; the Store owns persistence. Both admin actions and the payment
// webhook funnel through here.
type Service struct {
	store   *Store
	emitter *metrics.Emitter
}

// NewService wires a transition Service. emitter may be nil.
func NewService(store *Store, emitter *metrics.Emitter) *Service {
	return &Service{store: store, emitter: emitter}
}

// Transition moves an order to target if the status graph allows it.
//
// PAID -> FULFILLED additionally decrements every line item's strain stock
// inside the same transaction; if any strain is missing or short, nothing is
// written and the error names the offending strain.
//
// The whole call is safe to retry: a retry that lands after a committed
// attempt re-reads the already-updated status and fails the graph check, so
// inventory is never decremented twice for one order.
func (s *Service) Transition(ctx context.Context, orderID string, target Status) (*Order, error) {
	return s.transition(ctx, orderID, target, "")
}

// ConfirmPayment is the webhook-driven PENDING -> PAID transition, recording
// the external payment session reference alongside.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, paymentRef string) (*Order, error) {
	return s.transition(ctx, orderID, StatusPaid, paymentRef)
}

func (s *Service) transition(ctx context.Context, orderID string, target Status, paymentRef string) (*Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if !CanTransition(order.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
	}

	if target == StatusFulfilled {
		if err := s.fulfill(ctx, order); err != nil {
			return nil, err
		}
	} else {
		if err := s.store.UpdateStatus(ctx, orderID, order.Status, target, paymentRef); err != nil {
			if errors.Is(err, ErrStatusMismatch) {
				return nil, s.conflict(ctx, orderID, order.Status, target)
			}
			return nil, err
		}
	}

	s.count(ctx, target)
	updated, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	log.Printf("order %s: %s -> %s", orderID, order.Status, updated.Status)
	return updated, nil
}

func (s *Service) fulfill(ctx context.Context, order *Order) error {
	// a line whose strain reference was nulled out by catalog deletion can
	// never be decremented; block before touching the table
	for _, it := range order.Items {
		if it.StrainID == "" {
			s.emitter.Count(ctx, "FulfillmentBlocked")
			return &FulfillmentBlockedError{
				StrainName: it.StrainName,
				Err:        errors.New("strain no longer in catalog"),
			}
		}
	}

	err := s.store.Fulfill(ctx, order)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStatusMismatch) {
		return s.conflict(ctx, order.OrderID, StatusPaid, StatusFulfilled)
	}
	var blocked *FulfillmentBlockedError
	if errors.As(err, &blocked) {
		s.emitter.Count(ctx, "FulfillmentBlocked")
	}
	return err
}

// conflict converts a lost compare-and-set race into the same
// ErrInvalidTransition the loser would have gotten had it read last,
// annotated with the status that actually won.
func (s *Service) conflict(ctx context.Context, orderID string, expected, target Status) error {
	current, err := s.store.Get(ctx, orderID)
	if err != nil || current == nil {
		return fmt.Errorf("%w: %s -> %s (concurrent update)", ErrInvalidTransition, expected, target)
	}
	return fmt.Errorf("%w: %s -> %s (order is now %s)", ErrInvalidTransition, expected, target, current.Status)
}

func (s *Service) count(ctx context.Context, target Status) {
	switch target {
	case StatusPaid:
		s.emitter.Count(ctx, "OrderPaid")
	case StatusFulfilled:
		s.emitter.Count(ctx, "OrderFulfilled")
	case StatusCancelled:
		s.emitter.Count(ctx, "OrderCancelled")
	}
}
