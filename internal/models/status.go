package models

import "fmt"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// ActiveStatuses hold a seat.
var ActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed}

func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCancelled},
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseExternalStatus maps the status words clients send onto the lifecycle.
func ParseExternalStatus(s string) (BookingStatus, error) {
	switch s {
	case "accepted", "paid", "confirmed":
		return BookingConfirmed, nil
	case "rejected", "cancelled":
		return BookingCancelled, nil
	case "pending":
		return BookingPending, nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}
