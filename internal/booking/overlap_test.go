package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return epoch.AddDate(0, 0, n)
}

func dayPtr(n int) *time.Time {
	t := day(n)
	return &t
}

func bounded(start, end int) *Booking {
	return &Booking{StartDate: day(start), EndDate: dayPtr(end), BookingType: TypeFixedTerm, Status: StatusPending, RoomCount: 1}
}

func TestOverlapRules(t *testing.T) {
	tests := []struct {
		name     string
		existing *Booking
		start    int
		end      *time.Time
		want     bool
	}{
		{"start inside", bounded(10, 20), 15, dayPtr(30), true},
		{"end inside", bounded(10, 20), 5, dayPtr(12), true},
		{"encloses", bounded(10, 20), 5, dayPtr(25), true},
		{"touching end", bounded(10, 20), 20, dayPtr(25), true},
		{"after", bounded(10, 20), 21, dayPtr(25), false},
		{"before", bounded(10, 20), 1, dayPtr(9), false},
		{"open request inside", bounded(10, 20), 12, nil, true},
		{"open request before", bounded(10, 20), 5, nil, false},
		{"open month-to-month earlier", &Booking{StartDate: day(1), BookingType: TypeMonthToMonth}, 40, dayPtr(50), true},
		{"open month-to-month later", &Booking{StartDate: day(60), BookingType: TypeMonthToMonth}, 40, dayPtr(50), false},
		{"open fixed-term", &Booking{StartDate: day(1), BookingType: TypeFixedTerm}, 40, dayPtr(50), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overlaps(tt.existing, day(tt.start), tt.end))
		})
	}
}

func TestBookedRoomsIgnoresInactive(t *testing.T) {
	active := []*Booking{bounded(10, 20), bounded(12, 18), bounded(30, 40)}
	active[1].RoomCount = 2
	active[2].RoomCount = 5

	assert.Equal(t, 3, bookedRooms(active, day(15), dayPtr(16)))

	active[1].Status = StatusCancelled
	assert.Equal(t, 1, bookedRooms(active, day(15), dayPtr(16)))
}

func TestOverlapBoundedProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.IntRange(0, 100).Draw(t, "existingStart")
		e := rapid.IntRange(s, 120).Draw(t, "existingEnd")
		rs := rapid.IntRange(0, 100).Draw(t, "requestStart")
		re := rapid.IntRange(rs, 120).Draw(t, "requestEnd")

		got := overlaps(bounded(s, e), day(rs), dayPtr(re))
		intersects := rs <= e && s <= re
		if got != intersects {
			t.Fatalf("overlaps([%d,%d], [%d,%d]) = %v, want %v", s, e, rs, re, got, intersects)
		}
	})
}
