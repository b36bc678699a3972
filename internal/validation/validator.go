package validation

import (
	"errors"
	"fmt"
	"strconv"

	validatorv10 "github.com/go-playground/validator/v10"
)

// ErrInvalidArgument flags a malformed caller-supplied parameter, rejected
// at the boundary before any data is read.
var ErrInvalidArgument = errors.New("invalid argument")

// New returns a configured validator with custom struct-level validation
// registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// enforce the money invariants at the boundary: every line total must
	// equal grams x price-per-gram, and the order total must equal the sum
	// of line totals. All integer cents, no rounding involved.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	var sum int64
	for i, it := range req.Items {
		if it.Grams*it.PricePerGramCents != it.LineTotalCents {
			sl.ReportError(it.LineTotalCents, fmt.Sprintf("items[%d].line_total_cents", i), "LineTotalCents", "line_total_match",
				fmt.Sprintf("%d x %d != %d", it.Grams, it.PricePerGramCents, it.LineTotalCents))
		}
		sum += it.LineTotalCents
	}
	if sum != req.TotalCents {
		sl.ReportError(req.TotalCents, "total_cents", "TotalCents", "total_match_items",
			fmt.Sprintf("items sum %d != total %d", sum, req.TotalCents))
	}
}

// ParseLimit validates a ?limit= query value. Empty means def; anything
// non-numeric, non-positive, or above max fails with ErrInvalidArgument.
func ParseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit %q is not an integer", ErrInvalidArgument, raw)
	}
	if n < 1 || n > max {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d, got %d", ErrInvalidArgument, max, n)
	}
	return n, nil
}
