package monitor

import (
	"fmt"
	"time"

	"github.com/linnemanlabs/slawatch/internal/chat"
)

// Policy is the immutable alerting configuration evaluated on every sweep.
type Policy struct {
	// WaitTime is the minimum unanswered age before the first alert.
	WaitTime time.Duration

	// AlertCooldown is the minimum interval between repeat alerts for the
	// same message.
	AlertCooldown time.Duration

	// QuietHours optionally suppresses non-urgent alerts by time of day.
	QuietHours *QuietHours

	// UrgencyFloor is the age past which a breach alerts even during quiet
	// hours.
	UrgencyFloor time.Duration
}

// QuietHours is a time-of-day range in a fixed location. A range may wrap
// midnight (e.g. 22:00-07:00).
type QuietHours struct {
	start    int // minutes from midnight, inclusive
	end      int // minutes from midnight, exclusive
	location *time.Location
}

// ParseQuietHours builds a QuietHours from "HH:MM" bounds and an IANA zone
// name (empty means UTC).
func ParseQuietHours(start, end, zone string) (*QuietHours, error) {
	s, err := parseMinuteOfDay(start)
	if err != nil {
		return nil, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := parseMinuteOfDay(end)
	if err != nil {
		return nil, fmt.Errorf("quiet hours end: %w", err)
	}
	if s == e {
		return nil, fmt.Errorf("quiet hours start and end are both %s", start)
	}
	loc := time.UTC
	if zone != "" {
		loc, err = time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("quiet hours zone: %w", err)
		}
	}
	return &QuietHours{start: s, end: e, location: loc}, nil
}

// Contains reports whether t falls inside the quiet-hours window.
func (q *QuietHours) Contains(t time.Time) bool {
	local := t.In(q.location)
	m := local.Hour()*60 + local.Minute()
	if q.start < q.end {
		return m >= q.start && m < q.end
	}
	// wraps midnight
	return m >= q.start || m < q.end
}

func parseMinuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Decide evaluates one unanswered external message against its alert record.
// Deterministic and side-effect free; the StateStore applies all resulting
// state transitions.
//
// Order matters: explicit silencing wins over age, age and quiet hours decide
// eligibility, cooldown decides suppress-vs-alert.
func (p Policy) Decide(msg chat.Message, rec Record, now time.Time) Decision {
	if rec.Handled || rec.SnoozedUntil.After(now) {
		return NoAction
	}

	age := now.Sub(msg.CreatedAt)
	isOld := age > p.WaitTime

	// During quiet hours only sufficiently urgent breaches alert; outside
	// them age alone qualifies.
	if p.QuietHours != nil && p.QuietHours.Contains(now) {
		isOld = isOld && age > p.UrgencyFloor
	}

	if !isOld {
		return NoAction
	}

	// Absent lastAlertAt means the cooldown has already elapsed.
	if !rec.LastAlertAt.IsZero() && now.Sub(rec.LastAlertAt) <= p.AlertCooldown {
		return Suppress
	}

	return AlertNow
}
