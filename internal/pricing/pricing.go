// Package pricing holds the stateless price rules of a purchase: coupon
// discounts with their per-transaction seat caps and the occupancy
// surcharge applied after a sale.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/model"
)

const (
	// CouponNewYear grants 20% off and limits the purchase to two seats.
	CouponNewYear = "YILBASI"

	couponDiscountPct = 80
	couponMaxSeats    = 2
	defaultMaxSeats   = 6

	surgeThresholdPct = 80
	surgePct          = 110
)

// ErrQuantityLimit is returned when the requested seat count exceeds the
// cap of the applied rule.
var ErrQuantityLimit = errors.New("quantity limit exceeded")

// LimitError names the cap that was exceeded.
type LimitError struct {
	Coupon    string
	Max       int
	Requested int
}

func (e *LimitError) Error() string {
	if e.Coupon != "" {
		return fmt.Sprintf("coupon %s allows at most %d seats, requested %d", e.Coupon, e.Max, e.Requested)
	}
	return fmt.Sprintf("at most %d seats per purchase, requested %d", e.Max, e.Requested)
}

func (e *LimitError) Unwrap() error { return ErrQuantityLimit }

// Quote is the priced outcome of one purchase attempt.
type Quote struct {
	UnitPrice model.Cents
	Quantity  int
	Coupon    string // applied coupon, empty when none
	MaxSeats  int
}

// Total is UnitPrice * Quantity.
func (q Quote) Total() model.Cents { return q.UnitPrice.Times(q.Quantity) }

// Engine evaluates the rules.  The zero value is ready to use.
type Engine struct{}

// Quote prices quantity seats at the event's current price.  seatCount is
// the number of distinct seats being claimed and is the figure checked
// against the cap; unknown coupon codes are ignored.
func (Engine) Quote(price model.Cents, quantity, seatCount int, coupon string) (Quote, error) {
	q := Quote{UnitPrice: price, Quantity: quantity, MaxSeats: defaultMaxSeats}
	if strings.TrimSpace(coupon) == CouponNewYear {
		q.UnitPrice = price.Percent(couponDiscountPct)
		q.Coupon = CouponNewYear
		q.MaxSeats = couponMaxSeats
	}
	n := seatCount
	if quantity > n {
		n = quantity
	}
	if n > q.MaxSeats {
		return Quote{}, &LimitError{Coupon: q.Coupon, Max: q.MaxSeats, Requested: n}
	}
	return q, nil
}

// Surge returns the raised price when sold/total reaches the occupancy
// threshold.  It applies on every qualifying sale, not just the first.
func (Engine) Surge(price model.Cents, sold, total int) (model.Cents, bool) {
	if total <= 0 || sold*100 < total*surgeThresholdPct {
		return price, false
	}
	return price.Percent(surgePct), true
}
