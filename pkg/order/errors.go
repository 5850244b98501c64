package order

import "errors"

var (
	// ErrMalformedField means a byte field failed hex decoding or shape checks.
	ErrMalformedField = errors.New("malformed field")
	// ErrInvalidOrder means an order violates its amount invariants.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidFill means a fill failed one of the validate_fill conditions.
	ErrInvalidFill = errors.New("invalid fill")
	// ErrExpiredOrder is returned by callers that filter out void orders.
	ErrExpiredOrder = errors.New("order expired")
	// ErrIncompleteCapacity means the order has no remaining capacity for the request.
	ErrIncompleteCapacity = errors.New("insufficient remaining capacity")
)
