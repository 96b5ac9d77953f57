package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/slawatch/internal/chat"
)

type fakeNotifier struct {
	mu      sync.Mutex
	reports []*Report
	err     error
}

func (n *fakeNotifier) Send(_ context.Context, r *Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.reports = append(n.reports, r)
	return nil
}

type fakeDigester struct {
	digest string
	err    error
	calls  int
}

func (d *fakeDigester) Digest(_ context.Context, _ []Breach, _ *Report) (string, error) {
	d.calls++
	return d.digest, d.err
}

func newTestService(ft *fakeTransport, backend Persistence, channels []string, notifier Notifier, digester Digester) (*Service, *StateStore) {
	store := NewStateStore(backend)
	engine := testEngine(ft, channels, EngineHooks{})
	svc := NewService(store, engine, log.Nop(), nil, notifier, digester, time.Minute)
	return svc, store
}

func TestServiceSweep_ReportAndNotify(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	// age the breach relative to the wall clock since the service stamps its
	// own sweep time
	ft.history["C1"] = []chat.Message{msgAt("C1", "m1", "ext1", time.Now().UTC().Add(-2*time.Hour))}
	ft.members["ext1"] = chat.Member{ID: "ext1", Roles: []string{"clients"}}

	notifier := &fakeNotifier{}
	digester := &fakeDigester{digest: "one client waiting in C1"}
	svc, store := newTestService(ft, newFakeBackend(), []string{"C1"}, notifier, digester)

	report, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.ID == "" {
		t.Error("expected a sweep ID")
	}
	if report.AlertsSent != 1 {
		t.Errorf("alerts = %d, want 1", report.AlertsSent)
	}
	if report.Digest != "one client waiting in C1" {
		t.Errorf("digest = %q", report.Digest)
	}
	if len(notifier.reports) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.reports))
	}
	if store.Len() != 1 {
		t.Errorf("tracked records = %d, want 1", store.Len())
	}

	got, ok := svc.LastReport(context.Background())
	if !ok || got.ID != report.ID {
		t.Errorf("LastReport = %+v ok=%v", got, ok)
	}
}

func TestServiceSweep_Concurrent(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.fetchBlocked = make(chan struct{})
	ft.history["C1"] = []chat.Message{msgAt("C1", "m1", "ext1", time.Now().UTC().Add(-2*time.Hour))}

	svc, _ := newTestService(ft, newFakeBackend(), []string{"C1"}, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Sweep(context.Background())
	}()

	// wait until the first sweep is inside the transport
	deadline := time.Now().Add(5 * time.Second)
	for {
		ft.mu.Lock()
		calls := ft.fetchCalls
		ft.mu.Unlock()
		if calls > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first sweep never reached the transport")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := svc.Sweep(context.Background()); !errors.Is(err, ErrSweepInProgress) {
		t.Errorf("second sweep err = %v, want ErrSweepInProgress", err)
	}

	close(ft.fetchBlocked)
	<-done

	// lock released: sweeps work again
	ft.mu.Lock()
	ft.fetchBlocked = nil
	ft.mu.Unlock()
	if _, err := svc.Sweep(context.Background()); err != nil {
		t.Errorf("sweep after release: %v", err)
	}
}

func TestServiceSweep_FlushFailureIsFatal(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.history["C1"] = []chat.Message{msgAt("C1", "m1", "ext1", time.Now().UTC().Add(-2*time.Hour))}
	ft.members["ext1"] = chat.Member{ID: "ext1", Roles: []string{"clients"}}

	backend := newFakeBackend()
	backend.saveErr = errors.New("disk full")
	svc, _ := newTestService(ft, backend, []string{"C1"}, nil, nil)

	report, err := svc.Sweep(context.Background())
	if err == nil {
		t.Fatal("expected flush error")
	}
	if report == nil || report.AlertsSent != 1 {
		t.Errorf("report despite flush failure = %+v", report)
	}
}

func TestServiceSweep_DigestAndNotifyFailuresNonFatal(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.history["C1"] = []chat.Message{msgAt("C1", "m1", "ext1", time.Now().UTC().Add(-2*time.Hour))}
	ft.members["ext1"] = chat.Member{ID: "ext1", Roles: []string{"clients"}}

	notifier := &fakeNotifier{err: errors.New("webhook down")}
	digester := &fakeDigester{err: errors.New("api quota")}
	svc, _ := newTestService(ft, newFakeBackend(), []string{"C1"}, notifier, digester)

	report, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Digest != "" {
		t.Errorf("digest = %q, want empty after digester failure", report.Digest)
	}
}

func TestServiceSweep_DigestSkippedWithoutAlerts(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	digester := &fakeDigester{digest: "nothing to see"}
	svc, _ := newTestService(ft, newFakeBackend(), []string{"C1"}, nil, digester)

	report, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if digester.calls != 0 {
		t.Errorf("digester calls = %d, want 0 for an all-quiet sweep", digester.calls)
	}
	if report.Digest != "" {
		t.Errorf("digest = %q, want empty", report.Digest)
	}
}

func TestService_SnoozeAndHandled(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	svc, store := newTestService(newFakeTransport(), backend, nil, nil, nil)
	ctx := context.Background()
	key := Key{ChannelID: "C1", MessageID: "m1"}

	if err := svc.Snooze(ctx, key, time.Now().Add(time.Hour)); !errors.Is(err, ErrNotTracked) {
		t.Errorf("Snooze untracked: err = %v, want ErrNotTracked", err)
	}
	if err := svc.MarkHandled(ctx, key); !errors.Is(err, ErrNotTracked) {
		t.Errorf("MarkHandled untracked: err = %v, want ErrNotTracked", err)
	}

	store.RecordAlert(key, time.Now().UTC())
	until := time.Now().UTC().Add(time.Hour)
	if err := svc.Snooze(ctx, key, until); err != nil {
		t.Fatalf("Snooze: %v", err)
	}

	// operator actions persist immediately
	if backend.saveCount() == 0 {
		t.Error("Snooze must flush to the backend")
	}
	rec, _ := store.Get(key)
	if !rec.SnoozedUntil.Equal(until) {
		t.Errorf("SnoozedUntil = %v, want %v", rec.SnoozedUntil, until)
	}

	if err := svc.MarkHandled(ctx, key); err != nil {
		t.Fatalf("MarkHandled: %v", err)
	}
	rec, _ = store.Get(key)
	if !rec.Handled {
		t.Error("record not marked handled")
	}
}

func TestService_Close(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	svc, store := newTestService(newFakeTransport(), backend, nil, nil, nil)

	store.RecordAlert(Key{ChannelID: "C1", MessageID: "m1"}, time.Now().UTC())
	if err := svc.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if backend.saveCount() != 1 {
		t.Errorf("saves = %d, want 1", backend.saveCount())
	}
}

func TestService_LastReportNone(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(newFakeTransport(), newFakeBackend(), nil, nil, nil)
	if _, ok := svc.LastReport(context.Background()); ok {
		t.Error("expected no report before the first sweep")
	}
}
