package model

import "time"

// Ticket is a committed sale.  Quantity is the number of seats it covers
// and PriceCents is the unit price charged at purchase time, which may
// differ from the event's current price.
type Ticket struct {
	ID         uint64    `json:"id"`
	EventID    uint64    `json:"eventId"`
	Username   string    `json:"username"`
	Quantity   int       `json:"quantity"`
	PriceCents Cents     `json:"price"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Total is the amount charged for the whole ticket.
func (t Ticket) Total() Cents { return t.PriceCents.Times(t.Quantity) }
