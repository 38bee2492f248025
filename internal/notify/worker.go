package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
	"github.com/mapleandrye/backend-bakeshop/internal/events"
	"github.com/mapleandrye/backend-bakeshop/internal/obs"
	"github.com/mapleandrye/backend-bakeshop/internal/order"
)

// EmailWorker sends order confirmations off the task queue. When it shares a
// process with the order store it also advances orders to EMAILED; a
// standalone worker just sends and logs.
type EmailWorker struct {
	Mail   common.EmailSender
	Orders *order.Store
	Logger zerolog.Logger
	Events *events.Bus

	// Merchant receives a copy of every confirmation when set.
	Merchant string
}

func (w EmailWorker) count(kind, result string) {
	if obs.EmailSendTotal != nil {
		obs.EmailSendTotal.WithLabelValues(kind, result).Inc()
	}
}

// HandleOrderConfirmation processes one confirmation task.
func (w EmailWorker) HandleOrderConfirmation(ctx context.Context, task *asynq.Task) error {
	if w.Mail == nil {
		return fmt.Errorf("notify: mail sender not configured")
	}
	if w.Orders == nil {
		return fmt.Errorf("notify: order store not configured")
	}
	var payload OrderConfirmationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// malformed payloads can never succeed, don't retry
		return fmt.Errorf("notify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("notify: parse order id: %v: %w", err, asynq.SkipRetry)
	}

	o, err := w.Orders.Get(orderID)
	if errors.Is(err, order.ErrNotFound) {
		w.Logger.Warn().Str("order_id", payload.OrderID).Msg("order gone before confirmation email")
		return fmt.Errorf("notify: order expired: %w", asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if o.Status == order.StatusEmailed {
		return nil
	}

	if err := w.Mail.Send(o.Email, ConfirmationSubject(o), ConfirmationBody(o)); err != nil {
		w.count("order_confirmation", "error")
		return fmt.Errorf("notify: send confirmation: %w", err)
	}
	w.count("order_confirmation", "success")

	if w.Merchant != "" {
		// merchant copy is best effort, the customer mail already went out
		if err := w.Mail.Send(w.Merchant, ConfirmationSubject(o), ConfirmationBody(o)); err != nil {
			w.count("merchant_copy", "error")
			w.Logger.Warn().Err(err).Str("reference", o.Reference).Msg("merchant copy failed")
		} else {
			w.count("merchant_copy", "success")
		}
	}

	if _, err := w.Orders.Transition(o.ID, order.StatusEmailed, nil); err != nil {
		// the mail went out; a lost transition only costs a duplicate send
		w.Logger.Warn().Err(err).Str("order_id", payload.OrderID).Msg("mark emailed failed")
	} else if w.Events != nil {
		_, _ = w.Events.Emit(ctx, events.TopicOrderEmailed, o.ID, map[string]any{
			"orderId":   o.ID.String(),
			"reference": o.Reference,
		})
	}
	w.Logger.Info().
		Str("order_id", payload.OrderID).
		Str("reference", o.Reference).
		Msg("confirmation email sent")
	return nil
}

// Mux returns an asynq handler mux with every task this worker serves.
func (w EmailWorker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskOrderConfirmation, w.HandleOrderConfirmation)
	return mux
}
