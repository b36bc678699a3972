package orders

import (
	"errors"
	"fmt"
	"time"
)

// Status is an order's lifecycle state.
type Status string

// Order statuses. PENDING is initial; FULFILLED and CANCELLED are terminal.
const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusFulfilled Status = "FULFILLED"
	StatusCancelled Status = "CANCELLED"
)

// AllStatuses lists every status; analytics uses it to zero-fill counts.
var AllStatuses = []Status{StatusPending, StatusPaid, StatusFulfilled, StatusCancelled}

// ParseStatus converts a wire string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPaid, StatusFulfilled, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Terminal reports whether no further transitions leave this status.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusCancelled
}

// allowedTransitions is the full status graph:
//
//	PENDING -> PAID       (payment webhook)
//	PENDING -> CANCELLED  (admin or timeout)
//	PAID    -> FULFILLED  (admin marks shipped; decrements inventory)
//	PAID    -> CANCELLED  (admin cancels before shipment)
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusFulfilled, StatusCancelled},
}

// CanTransition reports whether moving from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is the item stored in the orders DynamoDB table. TotalCents is
// frozen at creation and always equals the sum of line totals.
type Order struct {
	OrderID    string      `dynamodbav:"order_id" json:"order_id"` // PK
	Email      string      `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Status     Status      `dynamodbav:"status" json:"status"`
	TotalCents int64       `dynamodbav:"total_cents" json:"total_cents"`
	PaymentRef string      `dynamodbav:"payment_ref,omitempty" json:"payment_ref,omitempty"`
	Items      []OrderItem `dynamodbav:"items" json:"items"`
	CreatedAt  time.Time   `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `dynamodbav:"updated_at" json:"updated_at"`
}

// OrderItem is a purchase-time snapshot. StrainID is a weak reference: the
// strain may be deleted from the catalog afterwards and the order must still
// display, so name and per-gram price are denormalized here. Line prices are
// never recomputed from the current catalog.
type OrderItem struct {
	StrainID          string `dynamodbav:"strain_id,omitempty" json:"strain_id,omitempty"`
	StrainName        string `dynamodbav:"strain_name" json:"strain_name"`
	Grams             int64  `dynamodbav:"grams" json:"grams"`
	PricePerGramCents int64  `dynamodbav:"price_per_gram_cents" json:"price_per_gram_cents"`
	LineTotalCents    int64  `dynamodbav:"line_total_cents" json:"line_total_cents"`
}

// ErrOrderNotFound indicates the order id has no record.
var ErrOrderNotFound = errors.New("order not found")

// ErrInvalidTransition indicates the requested status move is not on the
// allowed graph from the order's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrStatusMismatch indicates a conditional status write observed a
// different current status than expected (concurrent transition).
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// FulfillmentBlockedError aborts a PAID -> FULFILLED transition: a line
// item's strain is missing or its stock is insufficient. No decrement is
// applied and the order stays PAID.
type FulfillmentBlockedError struct {
	StrainID   string
	StrainName string
	Err        error
}

func (e *FulfillmentBlockedError) Error() string {
	name := e.StrainName
	if name == "" {
		name = e.StrainID
	}
	return fmt.Sprintf("cannot fulfill: %v for %s", e.Err, name)
}

func (e *FulfillmentBlockedError) Unwrap() error { return e.Err }
