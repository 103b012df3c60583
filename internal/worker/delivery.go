package worker

import "context"

// Delivery is one message handed to the worker by a Source.
// Exactly one of Ack or Reject is called per delivery.
type Delivery interface {
	Body() []byte
	// MessageID is the transport's id for the message, "" when it has none
	MessageID() string
	// Ack settles the message as processed
	Ack(ctx context.Context) error
	// Reject settles the message as failed, without requeue
	Reject(ctx context.Context) error
}

// HeaderCarrier is implemented by deliveries whose transport carries string
// headers. Trace context found there is continued by the worker.
type HeaderCarrier interface {
	Headers() map[string]string
}

// Source is an at-least-once message channel with manual acknowledgment
type Source interface {
	// Deliveries starts consumption. The channel is closed when consumption
	// ends, either because ctx is done or the transport is lost.
	Deliveries(ctx context.Context) (<-chan Delivery, error)
	// Queue names the queue or topic being consumed
	Queue() string
	Close() error
}

// Outcome is how a single delivery was settled
type Outcome string

const (
	OutcomeCreated             Outcome = "acked-created"
	OutcomeDuplicate           Outcome = "acked-duplicate"
	OutcomeDeleted             Outcome = "acked-deleted"
	OutcomeNothingToDelete     Outcome = "acked-nothing-to-delete"
	OutcomeRejectedTranslation Outcome = "rejected-translation"
	OutcomeRejectedApply       Outcome = "rejected-apply"
)

// Acked reports whether the outcome acknowledges the message
func (o Outcome) Acked() bool {
	switch o {
	case OutcomeCreated, OutcomeDuplicate, OutcomeDeleted, OutcomeNothingToDelete:
		return true
	default:
		return false
	}
}
