package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentsPercent(t *testing.T) {
	cases := []struct {
		in   Cents
		pct  int64
		want Cents
	}{
		{10000, 80, 8000},
		{10000, 110, 11000},
		{11000, 110, 12100},
		{999, 80, 799},    // 799.2
		{1005, 110, 1106}, // 1105.5 rounds up
		{-1005, 110, -1106},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.in.Percent(tc.pct), "%d * %d%%", tc.in, tc.pct)
	}
}

func TestCentsString(t *testing.T) {
	assert.Equal(t, "160.00", Cents(16000).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "-1.50", Cents(-150).String())
}

func TestParseCents(t *testing.T) {
	good := map[string]Cents{"150": 15000, "150.5": 15050, "150.50": 15050, "0.07": 7, "-2.25": -225, " 3 ": 300}
	for in, want := range good {
		got, err := ParseCents(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "1.234", ".5", "abc", "1.x"} {
		_, err := ParseCents(in)
		assert.Error(t, err, in)
	}
}

func TestTicketJSON(t *testing.T) {
	tk := Ticket{ID: 1, EventID: 2, Username: "ayse", Quantity: 2, PriceCents: 8000}
	b, err := json.Marshal(tk)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"price":80.00`)
	assert.Equal(t, Cents(16000), tk.Total())

	var in struct {
		Price Cents `json:"price"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"price":"12.5"}`), &in))
	assert.Equal(t, Cents(1250), in.Price)
}

func TestOccupancyClamps(t *testing.T) {
	assert.Equal(t, Occupancy{TotalSeats: 10, Sold: 12, Remaining: 0}, NewOccupancy(10, 12))
	assert.Equal(t, 3, NewOccupancy(5, 2).Remaining)
	assert.Equal(t, "C7", Seat{Row: "C", Number: 7}.Label())
}
