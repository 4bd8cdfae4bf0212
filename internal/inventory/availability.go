// Package inventory is the room ledger of a property. It is the only code
// that writes a property's available room count and rented flag.
package inventory

import (
	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
)

// Availability is the room inventory of one property.
// Invariant: 0 <= Available <= Total.
type Availability struct {
	Total     int  `json:"total_rooms"`
	Available int  `json:"available_rooms"`
	Rented    bool `json:"is_rented"`
}

// Reserve takes n rooms. The property is rented once no room is left.
func (a Availability) Reserve(n int) (Availability, error) {
	if n < 1 {
		return a, apperr.New(apperr.Invalid, "Room count must be at least 1")
	}
	if n > a.Available {
		return a, apperr.New(apperr.InsufficientInventory, "Only %d rooms available", a.Available)
	}
	a.Available -= n
	a.Rented = a.Available == 0
	return a, nil
}

// Release returns n rooms, never exceeding Total.
func (a Availability) Release(n int) Availability {
	if n < 0 {
		n = 0
	}
	a.Available += n
	if a.Available > a.Total {
		a.Available = a.Total
	}
	a.Rented = false
	return a
}
