package model

import (
	"sort"
	"time"
)

// Show represents a scheduled screening of a movie.  Shows are created
// by the scheduling side of the platform and are read-only to the
// booking core except for their occupancy, which is owned by the seat
// reservation engine.
//
// Fields:
//  ID            – opaque show identifier (UUID).
//  MovieID       – external movie reference (e.g. a TMDB id).
//  MovieTitle    – title copied from the metadata source at scheduling time.
//  StartsAt      – UTC start time of the screening.
//  PriceCents    – ticket price per seat in cents.
//  OccupiedSeats – seat id -> holder booking id for every claimed seat.
//  CreatedAt     – creation timestamp.
type Show struct {
	ID            string            // shows.id
	MovieID       string            // shows.movie_id
	MovieTitle    string            // shows.movie_title
	StartsAt      time.Time         // shows.starts_at
	PriceCents    uint32            // shows.price_cents
	OccupiedSeats map[string]string // show_seat_claims (seat_id -> booking_id)
	CreatedAt     time.Time         // shows.created_at
}

// SeatIDs returns the occupied seat ids in ascending order.
func (s Show) SeatIDs() []string {
	ids := make([]string, 0, len(s.OccupiedSeats))
	for id := range s.OccupiedSeats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HolderIDs returns the distinct holder references found in the
// occupancy map, sorted for stable output.
func (s Show) HolderIDs() []string {
	seen := make(map[string]struct{}, len(s.OccupiedSeats))
	out := make([]string, 0, len(s.OccupiedSeats))
	for _, holder := range s.OccupiedSeats {
		if _, ok := seen[holder]; ok {
			continue
		}
		seen[holder] = struct{}{}
		out = append(out, holder)
	}
	sort.Strings(out)
	return out
}
