package order

import "time"

// Submit sends a building order to the kitchen. When requirePaid is set the
// order must already be paid.
func (o *Order) Submit(requirePaid bool, now time.Time) error {
	if o.Status != StatusBuilding {
		return o.transitionError("submit", ErrInvalidTransition)
	}
	if len(o.Items) == 0 {
		return ErrEmptyOrder
	}
	if o.Payment.Status == PaymentPending {
		return o.transitionError("submit", ErrPaymentInProgress)
	}
	if requirePaid && o.Payment.Status != PaymentPaid {
		return o.transitionError("submit", ErrPaymentRequired)
	}
	o.Status = StatusSubmitted
	o.SubmittedAt = &now
	o.UpdatedAt = now
	return nil
}

// MarkPaymentPending records the start of a payment attempt under reference.
// A failed attempt may be retried; a pending or paid one may not.
func (o *Order) MarkPaymentPending(method, reference string, now time.Time) error {
	if reference == "" {
		return ErrInvalidReference
	}
	if o.Status == StatusCancelled {
		return o.transitionError("start payment", ErrInvalidTransition)
	}
	switch o.Payment.Status {
	case PaymentPaid:
		return o.transitionError("start payment", ErrPaymentAlreadyFinal)
	case PaymentPending:
		return o.transitionError("start payment", ErrPaymentInProgress)
	}
	o.Payment = Payment{Method: method, Status: PaymentPending, Reference: reference}
	o.UpdatedAt = now
	return nil
}

// MarkPaymentPaid settles the order. A submitted order is closed as
// completed. A building order keeps its status; the caller decides whether
// the payment also places it.
func (o *Order) MarkPaymentPaid(now time.Time) error {
	if o.Payment.Status == PaymentPaid {
		return o.transitionError("mark paid", ErrPaymentAlreadyFinal)
	}
	if o.Status == StatusCancelled {
		return o.transitionError("mark paid", ErrInvalidTransition)
	}
	o.Payment.Status = PaymentPaid
	o.PaidAt = &now
	if o.Status == StatusSubmitted {
		o.Status = StatusCompleted
	}
	o.UpdatedAt = now
	return nil
}

// MarkPaymentFailed moves a pending payment to failed so the diner can
// retry. It reports false when the payment had already failed.
func (o *Order) MarkPaymentFailed(now time.Time) (bool, error) {
	switch o.Payment.Status {
	case PaymentFailed:
		return false, nil
	case PaymentPaid:
		return false, o.transitionError("mark failed", ErrPaymentAlreadyFinal)
	case PaymentUnpaid:
		return false, o.transitionError("mark failed", ErrInvalidTransition)
	}
	o.Payment.Status = PaymentFailed
	o.UpdatedAt = now
	return true, nil
}

// SetProviderRef stores the gateway's own identifier for the attempt.
func (o *Order) SetProviderRef(ref string, now time.Time) {
	o.Payment.ProviderRef = ref
	o.UpdatedAt = now
}

// Complete closes a submitted order.
func (o *Order) Complete(now time.Time) error {
	if o.Status != StatusSubmitted {
		return o.transitionError("complete", ErrInvalidTransition)
	}
	o.Status = StatusCompleted
	o.UpdatedAt = now
	return nil
}

// Cancel voids an unpaid order that has not been completed.
func (o *Order) Cancel(now time.Time) error {
	if o.Status != StatusBuilding && o.Status != StatusSubmitted {
		return o.transitionError("cancel", ErrInvalidTransition)
	}
	switch o.Payment.Status {
	case PaymentPaid:
		return o.transitionError("cancel", ErrPaymentAlreadyFinal)
	case PaymentPending:
		return o.transitionError("cancel", ErrPaymentInProgress)
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return nil
}
