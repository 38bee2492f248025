package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/mapleandrye/backend-bakeshop/internal/events"
)

// TaskOrderConfirmation is the asynq task type for paid-order emails.
const TaskOrderConfirmation = "email:order_confirmation"

// OrderConfirmationPayload identifies the order to email about.
type OrderConfirmationPayload struct {
	OrderID string `json:"orderId"`
}

// NewOrderConfirmationTask builds the asynq task for an order.
func NewOrderConfirmationTask(orderID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(OrderConfirmationPayload{OrderID: orderID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderConfirmation, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// Enqueuer bridges the event bus to the task queue: order.paid events become
// confirmation email tasks.
type Enqueuer struct {
	Client *asynq.Client
}

// Notify implements events.Notifier.
func (e Enqueuer) Notify(ctx context.Context, event events.Event) error {
	if event.Topic != events.TopicOrderPaid {
		return nil
	}
	if e.Client == nil {
		return fmt.Errorf("notify: task client not configured")
	}
	task, err := NewOrderConfirmationTask(event.AggregateID)
	if err != nil {
		return fmt.Errorf("notify: build task: %w", err)
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("notify: enqueue confirmation: %w", err)
	}
	return nil
}
