// Package events publishes notifications about invoice changes so other
// programs (bookkeeping sync, dashboards) can follow the ledger.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types.
const (
	TypeInvoiceExtracted = "invoice.extracted"
	TypeInvoiceAssigned  = "invoice.assigned"
	TypeInvoiceDeleted   = "invoice.deleted"
)

// Event is the JSON message body.
type Event struct {
	Type        string    `json:"type"`
	InvoiceID   string    `json:"invoice_id"`
	ClientID    string    `json:"client_id,omitempty"`
	Project     string    `json:"project,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func FromJSON(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
