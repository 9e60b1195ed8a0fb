package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"simcore/internal/containerapi"
	"simcore/internal/telemetry"
	"simcore/pkg/dbgateway"
)

func TestShouldBeRunning(t *testing.T) {
	ex := dbgateway.Exchange{
		ExchID: "NYSE", Timezone: "America/New_York",
		PreOpen: "09:29", Open: "09:30", Close: "16:00", PostClose: "16:00",
	}
	loc, err := time.LoadLocation(ex.Timezone)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before pre-open", time.Date(2026, 7, 31, 9, 28, 0, 0, loc), false},
		{"inside window", time.Date(2026, 7, 31, 9, 30, 5, 0, loc), true},
		{"after post-close", time.Date(2026, 7, 31, 16, 0, 5, 0, loc), false},
		{"exactly post-close", time.Date(2026, 7, 31, 16, 0, 0, 0, loc), true},
	}
	for _, c := range cases {
		got, err := shouldBeRunning(ex, c.at)
		if err != nil {
			t.Fatalf("%s: shouldBeRunning: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: shouldBeRunning = %v, want %v", c.name, got, c.want)
		}
	}
}

// fakeCalendar is a mutable CalendarSource used to drive reconcileOne
// through open -> closed transitions within one test.
type fakeCalendar struct {
	mu        sync.Mutex
	exchanges []dbgateway.Exchange
}

func (f *fakeCalendar) set(exchanges []dbgateway.Exchange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = exchanges
}

func (f *fakeCalendar) Exchanges(ctx context.Context) ([]dbgateway.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dbgateway.Exchange, len(f.exchanges))
	copy(out, f.exchanges)
	return out, nil
}

func testController(t *testing.T, calendar CalendarSource, pods containerapi.API) *Controller {
	t.Helper()
	return NewController(Config{PollInterval: time.Hour, StartAttempts: 2}, calendar, pods,
		telemetry.NewTracer("test", false), telemetry.NewMetrics("test", false), zerolog.Nop())
}

// alwaysOpen returns an Exchange whose pre_open/post_close window always
// contains "now" in UTC, for tests that don't exercise the calendar math.
func alwaysOpen(id string) dbgateway.Exchange {
	return dbgateway.Exchange{ExchID: id, Timezone: "UTC", PreOpen: "00:00", PostClose: "23:59"}
}

func TestControllerStartsExchangeOnTick(t *testing.T) {
	cal := &fakeCalendar{exchanges: []dbgateway.Exchange{alwaysOpen("NYSE")}}
	pods := containerapi.NewInMemory()
	c := testController(t, cal, pods)

	c.tick(context.Background())

	if c.RunningCount() != 1 {
		t.Fatalf("expected 1 running pod, got %d", c.RunningCount())
	}
	refs, err := pods.List(context.Background(), map[string]string{"exch_id": "NYSE"})
	if err != nil || len(refs) != 1 {
		t.Fatalf("expected 1 live pod for NYSE, got %d (err=%v)", len(refs), err)
	}
}

func TestControllerStopsExchangeWhenCalendarClears(t *testing.T) {
	cal := &fakeCalendar{exchanges: []dbgateway.Exchange{alwaysOpen("NYSE")}}
	pods := containerapi.NewInMemory()
	c := testController(t, cal, pods)

	c.tick(context.Background())
	if c.RunningCount() != 1 {
		t.Fatalf("expected 1 running pod after first tick, got %d", c.RunningCount())
	}

	cal.set(nil) // exchange no longer in the calendar -> should_be_running is vacuously false
	c.tick(context.Background())
	if c.RunningCount() != 0 {
		t.Fatalf("expected the pod to be stopped once the exchange left the calendar, got %d running", c.RunningCount())
	}
}

// flakyPods fails Start a fixed number of times before delegating to a real
// in-memory store, exercising the backoff retry path.
type flakyPods struct {
	containerapi.API
	failuresLeft int
}

func (f *flakyPods) Start(ctx context.Context, spec containerapi.Spec) (containerapi.PodRef, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return containerapi.PodRef{}, fmt.Errorf("transient start failure")
	}
	return f.API.Start(ctx, spec)
}

func TestStartExchangeRetriesOnTransientFailure(t *testing.T) {
	cal := &fakeCalendar{exchanges: []dbgateway.Exchange{alwaysOpen("NYSE")}}
	pods := &flakyPods{API: containerapi.NewInMemory(), failuresLeft: 1}
	c := testController(t, cal, pods)

	c.tick(context.Background())

	if c.RunningCount() != 1 {
		t.Fatalf("expected the retry to succeed and leave 1 running pod, got %d", c.RunningCount())
	}
}

func TestOrphanSweepRemovesUntrackedPod(t *testing.T) {
	cal := &fakeCalendar{}
	pods := containerapi.NewInMemory()
	c := testController(t, cal, pods)

	// A pod exists for an exch_id the calendar no longer names, simulating a
	// process restart where the in-memory running-set was lost.
	_, err := pods.Start(context.Background(), containerapi.Spec{Labels: map[string]string{"exch_id": "LSE"}})
	if err != nil {
		t.Fatalf("seed orphan pod: %v", err)
	}

	c.orphanSweep(context.Background(), map[string]bool{})

	refs, err := pods.List(context.Background(), map[string]string{"exch_id": "LSE"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("expected the orphan pod to be stopped, found %d still running", len(refs))
	}
}

func TestHooksFireOnTransitions(t *testing.T) {
	cal := &fakeCalendar{exchanges: []dbgateway.Exchange{alwaysOpen("NYSE")}}
	pods := containerapi.NewInMemory()
	c := testController(t, cal, pods)

	var sodCalled, eodCalled bool
	c.WithHooks(
		func(ctx context.Context, exchID string) { sodCalled = true },
		func(ctx context.Context, exchID string) { eodCalled = true },
	)

	c.tick(context.Background())
	if !sodCalled {
		t.Errorf("expected SODHook to fire on start-of-day transition")
	}

	cal.set(nil)
	c.tick(context.Background())
	if !eodCalled {
		t.Errorf("expected EODHook to fire on end-of-day transition")
	}
}
