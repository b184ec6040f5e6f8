package enums

import "fmt"

// OutboxEventType is the canonical event_type written to the outbox.
type OutboxEventType string

const (
	OutboxEventOrderCreated   OutboxEventType = "order.created"
	OutboxEventOrderCancelled OutboxEventType = "order.cancelled"
	OutboxEventOrderDelivered OutboxEventType = "order.delivered"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventOrderCreated,
	OutboxEventOrderCancelled,
	OutboxEventOrderDelivered,
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateOrder OutboxAggregateType = "order"
)

// IsValid reports whether the value is a known OutboxAggregateType.
func (o OutboxAggregateType) IsValid() bool {
	return o == OutboxAggregateOrder
}
