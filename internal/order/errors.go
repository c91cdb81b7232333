package order

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies an engine error so the transport layer can map it
// without knowing every sentinel.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindStateConflict
	KindUpstreamPayment
	KindConcurrencyConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindUpstreamPayment:
		return "upstream_payment"
	case KindConcurrencyConflict:
		return "concurrency_conflict"
	}
	return "unknown"
}

// Error is a classified engine error. Sentinels below are compared by Code,
// so a wrapped copy with a more specific message still matches errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation errors.
var (
	ErrInvalidQuantity  = newError(KindValidation, "INVALID_QUANTITY", "quantity must be >= 1")
	ErrItemUnavailable  = newError(KindValidation, "ITEM_UNAVAILABLE", "menu item is unavailable")
	ErrInvalidAddon     = newError(KindValidation, "INVALID_ADDON", "invalid addon selection")
	ErrInvalidPrice     = newError(KindValidation, "INVALID_PRICE", "price must not be negative")
	ErrEmptyOrder       = newError(KindValidation, "EMPTY_ORDER", "order has no items")
	ErrInvalidTip       = newError(KindValidation, "INVALID_TIP", "invalid tip")
	ErrInvalidReference = newError(KindValidation, "INVALID_REFERENCE", "payment reference is required")
	ErrInvalidMethod    = newError(KindValidation, "INVALID_PAYMENT_METHOD", "unknown payment method")
	ErrInvalidPeriod    = newError(KindValidation, "INVALID_PERIOD", "period end must be after its start")
)

// Not-found errors.
var (
	ErrRestaurantNotFound = newError(KindNotFound, "RESTAURANT_NOT_FOUND", "restaurant not found")
	ErrTableNotFound      = newError(KindNotFound, "TABLE_NOT_FOUND", "table not found")
	ErrMenuItemNotFound   = newError(KindNotFound, "MENU_ITEM_NOT_FOUND", "menu item not found")
	ErrLineItemNotFound   = newError(KindNotFound, "LINE_ITEM_NOT_FOUND", "line item not found")
	ErrOrderNotFound      = newError(KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrPaymentNotFound    = newError(KindNotFound, "PAYMENT_NOT_FOUND", "payment reference not found")
)

// State conflict errors.
var (
	ErrOrderLocked         = newError(KindStateConflict, "ORDER_LOCKED", "order can no longer be modified")
	ErrInvalidTransition   = newError(KindStateConflict, "INVALID_TRANSITION", "transition not allowed")
	ErrPaymentAlreadyFinal = newError(KindStateConflict, "PAYMENT_ALREADY_FINAL", "payment is already final")
	ErrPaymentInProgress   = newError(KindStateConflict, "PAYMENT_IN_PROGRESS", "a payment is already in progress")
	ErrPaymentRequired     = newError(KindStateConflict, "PAYMENT_REQUIRED", "payment is required before the order can be submitted")
	ErrNothingToPay        = newError(KindStateConflict, "NOTHING_TO_PAY", "no outstanding balance for this table")
	ErrOrderingDisabled    = newError(KindStateConflict, "ORDERING_DISABLED", "ordering is disabled")
	ErrPaymentDisabled     = newError(KindStateConflict, "PAYMENT_DISABLED", "online payment is disabled")
	ErrTipsDisabled        = newError(KindStateConflict, "TIPS_DISABLED", "tipping is disabled")
	ErrTableUnavailable    = newError(KindStateConflict, "TABLE_UNAVAILABLE", "table is not available")
)

var (
	ErrUpstreamPayment     = newError(KindUpstreamPayment, "UPSTREAM_PAYMENT", "payment provider error")
	ErrConcurrencyConflict = newError(KindConcurrencyConflict, "CONCURRENCY_CONFLICT", "order was modified concurrently, please retry")
)

// TransitionError reports an illegal transition together with the state the
// order was in, so callers can re-fetch and decide.
type TransitionError struct {
	OrderID       uuid.UUID
	Status        Status
	PaymentStatus PaymentStatus
	Transition    string
	Err           error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s order %s (status=%s, payment=%s): %v",
		e.Transition, e.OrderID, e.Status, e.PaymentStatus, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func (o *Order) transitionError(transition string, err error) error {
	return &TransitionError{
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.Payment.Status,
		Transition:    transition,
		Err:           err,
	}
}

// KindOf returns the Kind of the first classified error in err's chain.
// LockedError reports that transition touched o's line items after o stopped
// being editable.
func (o *Order) LockedError(transition string) error {
	return o.transitionError(transition, ErrOrderLocked)
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
