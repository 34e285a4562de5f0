package model

import (
	"strconv"
	"strings"
)

// SeatLayout describes the venue grid.  Seat ids are a row letter
// followed by a 1-based seat number, e.g. "A1" or "J10".
type SeatLayout struct {
	Rows        string // row letters in display order
	SeatsPerRow int
}

// DefaultLayout is the ten-by-ten auditorium used by every show.
var DefaultLayout = SeatLayout{Rows: "ABCDEFGHIJ", SeatsPerRow: 10}

// NormalizeSeatID trims and upper-cases a seat id.
func NormalizeSeatID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Valid reports whether id names a seat of the layout.  The id must
// already be normalized.
func (l SeatLayout) Valid(id string) bool {
	if len(id) < 2 {
		return false
	}
	if !strings.ContainsRune(l.Rows, rune(id[0])) {
		return false
	}
	num := id[1:]
	// only the canonical spelling is accepted, so "A+5" or "A05" can never
	// be stored next to "A5"
	if num[0] == '0' {
		return false
	}
	for i := 0; i < len(num); i++ {
		if num[i] < '0' || num[i] > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return false
	}
	return n >= 1 && n <= l.SeatsPerRow
}

// Capacity is the total number of seats in the layout.
func (l SeatLayout) Capacity() int { return len(l.Rows) * l.SeatsPerRow }
