package booking

import "time"

// overlaps reports whether an active booking competes for rooms with a
// request starting at start and ending at end (nil for open-ended).
//
// A bounded booking overlaps when the requested start or end falls inside
// it, or when the requested range encloses it. An open-ended booking only
// counts when it is month-to-month and began on or before the requested
// start.
func overlaps(existing *Booking, start time.Time, end *time.Time) bool {
	if existing.EndDate == nil {
		return existing.BookingType == TypeMonthToMonth && !existing.StartDate.After(start)
	}

	s, e := existing.StartDate, *existing.EndDate
	if !s.After(start) && !e.Before(start) {
		return true
	}
	if end == nil {
		return false
	}
	if !s.After(*end) && !e.Before(*end) {
		return true
	}
	return !s.Before(start) && !e.After(*end)
}

// bookedRooms sums the rooms held by active bookings that overlap the
// requested range.
func bookedRooms(active []*Booking, start time.Time, end *time.Time) int {
	n := 0
	for _, b := range active {
		if b.Status != StatusPending && b.Status != StatusConfirmed {
			continue
		}
		if overlaps(b, start, end) {
			n += b.RoomCount
		}
	}
	return n
}
