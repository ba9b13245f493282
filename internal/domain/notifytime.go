package domain

import (
	"errors"
	"fmt"
)

// Notification slots run every half hour between these bounds, inclusive.
const (
	notifyFirstSlotMinutes = 6 * 60
	notifyLastSlotMinutes  = 22*60 + 30
)

// ErrInvalidNotifyTime is returned for notification times outside the
// half-hour slot grid.
var ErrInvalidNotifyTime = errors.New("notification time must be on a half-hour slot between 06:00 and 22:30")

// NotifyTime is a time-of-day notification slot in "HH:MM" form with
// 30-minute granularity. No timezone is modeled; the scheduler interprets
// slots in the server's configured location.
type NotifyTime string

// DefaultNotifyTime is used when a registration omits the slot.
const DefaultNotifyTime NotifyTime = "09:00"

// ParseNotifyTime validates s and returns it as a NotifyTime.
func ParseNotifyTime(s string) (NotifyTime, error) {
	minutes, err := slotMinutes(s)
	if err != nil {
		return "", err
	}
	if minutes < notifyFirstSlotMinutes || minutes > notifyLastSlotMinutes {
		return "", ErrInvalidNotifyTime
	}
	return NotifyTime(s), nil
}

// Valid reports whether the value is a well-formed slot.
func (t NotifyTime) Valid() bool {
	_, err := ParseNotifyTime(string(t))
	return err == nil
}

// Matches reports whether the slot equals the given wall-clock hour and
// minute. The minute must already be aligned to the half-hour grid.
func (t NotifyTime) Matches(hour, minute int) bool {
	return string(t) == fmt.Sprintf("%02d:%02d", hour, minute)
}

func (t NotifyTime) String() string { return string(t) }

func slotMinutes(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, ErrInvalidNotifyTime
	}
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &hour, &minute); err != nil {
		return 0, ErrInvalidNotifyTime
	}
	if hour < 0 || hour > 23 || (minute != 0 && minute != 30) {
		return 0, ErrInvalidNotifyTime
	}
	return hour*60 + minute, nil
}
