package monitor

import (
	"testing"
	"time"

	"github.com/linnemanlabs/slawatch/internal/chat"
)

func basePolicy() Policy {
	return Policy{
		WaitTime:      45 * time.Minute,
		AlertCooldown: 30 * time.Minute,
	}
}

func TestDecide_Lifecycle(t *testing.T) {
	t.Parallel()

	// One message posted at T, evaluated by successive sweeps. Wait 45m,
	// cooldown 30m: first alert fires between T+45 and T+50, the T+60 sweep
	// sits inside the cooldown, T+85 re-alerts.
	p := basePolicy()
	posted := testBase
	msg := chat.Message{CreatedAt: posted}

	// young message, no record yet
	if d := p.Decide(msg, Record{}, posted.Add(30*time.Minute)); d != NoAction {
		t.Errorf("at T+30: got %v, want NoAction", d)
	}

	// past the wait time, never alerted
	if d := p.Decide(msg, Record{}, posted.Add(50*time.Minute)); d != AlertNow {
		t.Errorf("at T+50: got %v, want AlertNow", d)
	}

	// alerted at T+50, still inside the cooldown at T+60
	rec := Record{LastAlertAt: posted.Add(50 * time.Minute), Alerted: true}
	if d := p.Decide(msg, rec, posted.Add(60*time.Minute)); d != Suppress {
		t.Errorf("at T+60: got %v, want Suppress", d)
	}

	// cooldown elapsed at T+85
	if d := p.Decide(msg, rec, posted.Add(85*time.Minute)); d != AlertNow {
		t.Errorf("at T+85: got %v, want AlertNow", d)
	}
}

func TestDecide_CooldownBoundary(t *testing.T) {
	t.Parallel()

	p := basePolicy()
	msg := chat.Message{CreatedAt: testBase}
	rec := Record{LastAlertAt: testBase.Add(time.Hour), Alerted: true}

	// exactly at the cooldown boundary still suppresses
	if d := p.Decide(msg, rec, testBase.Add(time.Hour+30*time.Minute)); d != Suppress {
		t.Errorf("at exact cooldown: got %v, want Suppress", d)
	}
	if d := p.Decide(msg, rec, testBase.Add(time.Hour+30*time.Minute+time.Second)); d != AlertNow {
		t.Errorf("just past cooldown: got %v, want AlertNow", d)
	}
}

func TestDecide_WaitTimeBoundary(t *testing.T) {
	t.Parallel()

	p := basePolicy()
	msg := chat.Message{CreatedAt: testBase}

	// age must strictly exceed the wait time
	if d := p.Decide(msg, Record{}, testBase.Add(45*time.Minute)); d != NoAction {
		t.Errorf("at exact wait time: got %v, want NoAction", d)
	}
	if d := p.Decide(msg, Record{}, testBase.Add(45*time.Minute+time.Second)); d != AlertNow {
		t.Errorf("just past wait time: got %v, want AlertNow", d)
	}
}

func TestDecide_SnoozedAndHandled(t *testing.T) {
	t.Parallel()

	p := basePolicy()
	msg := chat.Message{CreatedAt: testBase}
	now := testBase.Add(2 * time.Hour)

	if d := p.Decide(msg, Record{Handled: true}, now); d != NoAction {
		t.Errorf("handled: got %v, want NoAction", d)
	}
	if d := p.Decide(msg, Record{SnoozedUntil: now.Add(time.Hour)}, now); d != NoAction {
		t.Errorf("snoozed: got %v, want NoAction", d)
	}
	// expired snooze no longer silences
	if d := p.Decide(msg, Record{SnoozedUntil: now.Add(-time.Minute)}, now); d != AlertNow {
		t.Errorf("expired snooze: got %v, want AlertNow", d)
	}
	// handled wins even when also old and past cooldown
	rec := Record{Handled: true, LastAlertAt: testBase.Add(time.Minute), Alerted: true}
	if d := p.Decide(msg, rec, now); d != NoAction {
		t.Errorf("handled with stale alert: got %v, want NoAction", d)
	}
}

func TestDecide_QuietHours(t *testing.T) {
	t.Parallel()

	qh, err := ParseQuietHours("22:00", "07:00", "UTC")
	if err != nil {
		t.Fatalf("ParseQuietHours: %v", err)
	}
	p := Policy{
		WaitTime:      45 * time.Minute,
		AlertCooldown: 30 * time.Minute,
		QuietHours:    qh,
		UrgencyFloor:  12 * time.Hour,
	}

	night := time.Date(2026, 8, 28, 23, 30, 0, 0, time.UTC)

	// breach past the wait time but under the urgency floor: silenced at night
	msg := chat.Message{CreatedAt: night.Add(-2 * time.Hour)}
	if d := p.Decide(msg, Record{}, night); d != NoAction {
		t.Errorf("quiet hours, non-urgent: got %v, want NoAction", d)
	}

	// same age outside quiet hours alerts
	day := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	msg = chat.Message{CreatedAt: day.Add(-2 * time.Hour)}
	if d := p.Decide(msg, Record{}, day); d != AlertNow {
		t.Errorf("daytime, same age: got %v, want AlertNow", d)
	}

	// urgent breach pierces quiet hours
	msg = chat.Message{CreatedAt: night.Add(-13 * time.Hour)}
	if d := p.Decide(msg, Record{}, night); d != AlertNow {
		t.Errorf("quiet hours, urgent: got %v, want AlertNow", d)
	}

	// urgent but inside cooldown still suppresses
	rec := Record{LastAlertAt: night.Add(-10 * time.Minute), Alerted: true}
	if d := p.Decide(msg, rec, night); d != Suppress {
		t.Errorf("quiet hours, urgent, cooldown: got %v, want Suppress", d)
	}
}

func TestQuietHours_Contains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end string
		zone       string
		at         time.Time
		want       bool
	}{
		{"inside simple range", "09:00", "17:00", "UTC", time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC), true},
		{"before simple range", "09:00", "17:00", "UTC", time.Date(2026, 8, 28, 8, 59, 0, 0, time.UTC), false},
		{"start is inclusive", "09:00", "17:00", "UTC", time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC), true},
		{"end is exclusive", "09:00", "17:00", "UTC", time.Date(2026, 8, 28, 17, 0, 0, 0, time.UTC), false},
		{"wraps midnight, late evening", "22:00", "07:00", "UTC", time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC), true},
		{"wraps midnight, early morning", "22:00", "07:00", "UTC", time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC), true},
		{"wraps midnight, daytime", "22:00", "07:00", "UTC", time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC), false},
		{"zone conversion", "22:00", "07:00", "America/New_York", time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC), true}, // 23:00 EDT
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			qh, err := ParseQuietHours(tt.start, tt.end, tt.zone)
			if err != nil {
				t.Fatalf("ParseQuietHours(%q, %q, %q): %v", tt.start, tt.end, tt.zone, err)
			}
			if got := qh.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestParseQuietHours_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name             string
		start, end, zone string
	}{
		{"bad start", "25:00", "07:00", "UTC"},
		{"bad end", "22:00", "7pm", "UTC"},
		{"degenerate range", "22:00", "22:00", "UTC"},
		{"bad zone", "22:00", "07:00", "Not/AZone"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseQuietHours(tt.start, tt.end, tt.zone); err == nil {
				t.Errorf("ParseQuietHours(%q, %q, %q): expected error", tt.start, tt.end, tt.zone)
			}
		})
	}

	// empty zone defaults to UTC
	qh, err := ParseQuietHours("22:00", "07:00", "")
	if err != nil {
		t.Fatalf("empty zone: %v", err)
	}
	if !qh.Contains(time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC)) {
		t.Error("empty zone should evaluate in UTC")
	}
}
