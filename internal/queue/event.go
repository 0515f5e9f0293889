// Package queue defines the ticket notification contract and moves those
// messages from the purchase path to the message broker.
package queue

import "github.com/iliyamo/event-ticketing/internal/model"

// DefaultTopic is the queue / topic name for TicketPurchased.  The
// suffix is bumped whenever the field set below changes.
const DefaultTopic = "ticket.notifications.v1"

// TicketPurchased is published after a sale commits.  Field names are part
// of the external contract.
type TicketPurchased struct {
	TicketID        uint64      `json:"ticketId"`
	EventID         uint64      `json:"eventId"`
	Username        string      `json:"username"`
	EventTitle      string      `json:"eventTitle"`
	Quantity        int         `json:"quantity"`
	TotalPrice      model.Cents `json:"totalPrice"`
	Email           string      `json:"email"`
	RemainingSeats  int         `json:"remainingSeats"`
	SoldLast24Hours int         `json:"soldLast24Hours"`
}
