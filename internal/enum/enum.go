package enum

// ── Group A: Staff roles (CHECK constrained in DB) ──

const (
	RoleOwner   = "OWNER"
	RoleManager = "MANAGER"
	RoleStaff   = "STAFF"
	RoleKitchen = "KITCHEN"
)

// ── Group B: Real-time event types ──

const (
	EventConnected      = "connected"
	EventOrderUpdated   = "order.updated"
	EventOrderSubmitted = "order.submitted"
	EventOrderCompleted = "order.completed"
	EventOrderCancelled = "order.cancelled"
	EventPaymentPending = "payment.pending"
	EventPaymentPaid    = "payment.paid"
	EventPaymentFailed  = "payment.failed"
)

// ── Group C: Payment methods (no DB constraint) ──

const (
	PaymentMethodOnline = "ONLINE"
	PaymentMethodCard   = "CARD"
	PaymentMethodCash   = "CASH"
	PaymentMethodQRIS   = "QRIS"
)

// ValidPaymentMethod reports whether m is a known payment method.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodOnline, PaymentMethodCard, PaymentMethodCash, PaymentMethodQRIS:
		return true
	}
	return false
}
