package model

import "strconv"

// Seat is one sellable place of an event.  A seat is sold exactly when
// TicketID points at an existing ticket.
type Seat struct {
	ID       uint64  `json:"id"`
	EventID  uint64  `json:"eventId"`
	Row      string  `json:"row"`
	Number   int     `json:"number"`
	Sold     bool    `json:"sold"`
	TicketID *uint64 `json:"-"`
	Version  uint32  `json:"-"`
}

// Label returns the human readable seat name, e.g. "C7".
func (s Seat) Label() string { return s.Row + strconv.Itoa(s.Number) }
