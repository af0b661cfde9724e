package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	domsale "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
)

const EnvelopeVersion = 1

// Envelope is the wire format of every exported event.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Payload      json.RawMessage `json:"payload"`
}

func NewEnvelope(e domoutbox.Event) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("kafka: encode %s: %w", e.EventName(), err)
	}
	return Envelope{
		EventID:      uuid.NewString(),
		EventType:    e.EventName(),
		EventVersion: EnvelopeVersion,
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}, nil
}

// UnwrapPayload decodes the payload of an envelope into T.
func UnwrapPayload[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("kafka: decode payload: %w", err)
	}
	return t, nil
}

// PartitionKey keeps every event of one aggregate on the same partition.
func PartitionKey(e domoutbox.Event) string {
	switch evt := e.(type) {
	case domorder.PlacedEvent:
		return evt.OrderID
	case domorder.StatusChangedEvent:
		return evt.OrderID
	case domsale.RecordedEvent:
		return evt.SaleID
	case domsale.StatusChangedEvent:
		return evt.SaleID
	case dominv.StockChangedEvent:
		return evt.ProductID
	case dominv.ReservationExpiredEvent:
		return evt.ProductID
	default:
		return e.EventName()
	}
}

// ExportedEvents lists the event names the relay forwards.
func ExportedEvents() []string {
	return []string{
		domorder.PlacedEvent{}.EventName(),
		domorder.StatusChangedEvent{}.EventName(),
		domsale.RecordedEvent{}.EventName(),
		domsale.StatusChangedEvent{}.EventName(),
		dominv.StockChangedEvent{}.EventName(),
		dominv.ReservationExpiredEvent{}.EventName(),
	}
}
