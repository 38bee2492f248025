package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicOrderCreated           = "order.created"
	TopicOrderPaid              = "order.paid"
	TopicOrderEmailed           = "order.emailed"
	TopicOrderFailed            = "order.failed"
	TopicPaymentFailed          = "payment.failed"
	TopicShippingFallbackServed = "shipping.fallback_served"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicOrderEmailed,
		TopicOrderFailed,
		TopicPaymentFailed,
		TopicShippingFallbackServed,
	}
}
