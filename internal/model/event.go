package model

import "time"

// Event is a scheduled happening with a fixed seat capacity.  PriceCents
// only ever increases after creation (occupancy based surge pricing) and
// every write is guarded by Version.
//
// Fields:
//  ID          – primary key identifier.
//  Title       – display title.
//  Description – free text, may be empty.
//  City        – city the venue is in.
//  Venue       – venue name.
//  Type        – category such as CONCERT or THEATRE.
//  DateTime    – scheduled start in UTC.
//  TotalSeats  – capacity; fixed once seats are generated.
//  PriceCents  – current unit price.
//  Version     – optimistic locking counter.
//  CreatedAt   – timestamp of creation.
type Event struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	City        string    `json:"city"`
	Venue       string    `json:"venue"`
	Type        string    `json:"type"`
	DateTime    time.Time `json:"dateTime"`
	TotalSeats  int       `json:"totalSeats"`
	PriceCents  Cents     `json:"price"`
	Version     uint32    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Occupancy is derived from the ticket ledger on demand.
type Occupancy struct {
	TotalSeats int `json:"totalSeats"`
	Sold       int `json:"sold"`
	Remaining  int `json:"remaining"`
}

// NewOccupancy clamps remaining at zero.
func NewOccupancy(total, sold int) Occupancy {
	rem := total - sold
	if rem < 0 {
		rem = 0
	}
	return Occupancy{TotalSeats: total, Sold: sold, Remaining: rem}
}
