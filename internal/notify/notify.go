// Package notify delivers ticket receipts to customers and back-office
// systems without blocking the control loop.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"github.com/sweeney/smart-parking/internal/logic"
)

// Receipt is the record of one closed ticket.
type Receipt struct {
	MessageID       string          `json:"message_id"`
	TicketID        int             `json:"ticket_id"`
	Slot            string          `json:"slot"`
	TimeIn          time.Time       `json:"time_in"`
	TimeOut         time.Time       `json:"time_out"`
	DurationMinutes int             `json:"duration_minutes"`
	Fee             decimal.Decimal `json:"fee"`
}

// FromTicket builds a receipt for a closed ticket with a fresh message id.
func FromTicket(t logic.Ticket) Receipt {
	return Receipt{
		MessageID:       xid.New().String(),
		TicketID:        t.ID,
		Slot:            t.Slot,
		TimeIn:          t.TimeIn,
		TimeOut:         t.TimeOut,
		DurationMinutes: t.DurationMinutes,
		Fee:             t.Fee,
	}
}

// FormatReceipt renders the customer-facing receipt text.
func FormatReceipt(r Receipt) string {
	return fmt.Sprintf("Ticket CLOSED\nID: %d Slot: %s\nDuration: %d minutes\nFee: $%s",
		r.TicketID, r.Slot, r.DurationMinutes, r.Fee.StringFixed(2))
}

// Notifier delivers a receipt somewhere.
type Notifier interface {
	Notify(ctx context.Context, r Receipt) error
}

// Multi sends every receipt to each notifier in turn. One failing notifier
// does not stop the others.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, r Receipt) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
