package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"simcore/internal/authsvc"
	"simcore/internal/telemetry"
	"simcore/pkg/dbgateway"
)

func TestConnectionQuality(t *testing.T) {
	cases := []struct {
		latency int64
		missed  int
		want    ConnectionQuality
	}{
		{latency: 50, missed: 0, want: QualityGood},
		{latency: 600, missed: 0, want: QualityDegraded},
		{latency: 50, missed: 1, want: QualityDegraded},
		{latency: 50, missed: 3, want: QualityPoor},
		{latency: 999, missed: 5, want: QualityPoor},
	}
	for _, c := range cases {
		if got := quality(c.latency, c.missed); got != c.want {
			t.Errorf("quality(%d, %d) = %s, want %s", c.latency, c.missed, got, c.want)
		}
	}
}

func TestSimulatorCoordStateInFlight(t *testing.T) {
	inFlight := []SimulatorCoordState{SimChecking, SimCreating, SimStarting, SimInitializing, SimRunning}
	for _, s := range inFlight {
		if !s.inFlight() {
			t.Errorf("expected %s to be in-flight", s)
		}
	}
	notInFlight := []SimulatorCoordState{SimNone, SimError}
	for _, s := range notInFlight {
		if s.inFlight() {
			t.Errorf("expected %s to not be in-flight", s)
		}
	}
}

type fakeValidator struct{ userID string }

func (f fakeValidator) Validate(ctx context.Context, token string) (authsvc.Result, error) {
	return authsvc.Result{Valid: true, UserID: f.userID, Role: "user"}, nil
}
func (f fakeValidator) IssueAccessToken(userID, role string, ttl time.Duration) (string, error) {
	return "tok", nil
}

func testRegistry(t *testing.T, userID string) *Registry {
	t.Helper()
	db, err := dbgateway.Open(":memory:", 1, 1)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := Config{ReconnectTimeout: 200 * time.Millisecond, StartupTimeout: time.Second}
	prov := NewInMemoryProvisioner(func(req PodRequest) (PodHandle, error) {
		return PodHandle{PodName: "pod-1", Endpoint: "127.0.0.1:0"}, nil
	})
	return NewRegistry(cfg, db, fakeValidator{userID: userID}, prov, nil,
		telemetry.NewTracer("test", false), telemetry.NewMetrics("test", false), zerolog.Nop())
}

func TestRegistryOneSessionPerUser(t *testing.T) {
	reg := testRegistry(t, "u1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s1 := reg.GetOrCreate(ctx, "u1")
	s2 := reg.GetOrCreate(ctx, "u1")
	if s1 != s2 {
		t.Errorf("expected GetOrCreate to return the same session for the same user")
	}
	if reg.Count() != 1 {
		t.Errorf("expected exactly one tracked session, got %d", reg.Count())
	}
}

func TestStartSimulatorCollapsesConcurrentRequests(t *testing.T) {
	reg := testRegistry(t, "u1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	prov := NewInMemoryProvisioner(func(req PodRequest) (PodHandle, error) {
		<-gate
		return PodHandle{PodName: "pod-1", Endpoint: "127.0.0.1:0"}, nil
	})
	reg.provisioner = prov

	s := reg.GetOrCreate(ctx, "u1")
	s.do(func() { s.deviceID = "d1"; s.sessionID = "sess-1" })

	s.handleStartSimulator(ctx, Envelope{Type: MsgStartSimulator, Payload: StartSimulatorPayload{ExchangeID: "NYSE", Symbols: []string{"AAPL"}}})

	var stateAfterFirst SimulatorCoordState
	s.do(func() { stateAfterFirst = s.simState })
	if !stateAfterFirst.inFlight() {
		t.Fatalf("expected the first start_simulator to leave the coordinator in-flight, got %s", stateAfterFirst)
	}

	// A second concurrent request must collapse onto the first instead of
	// re-provisioning (§4.2: "exactly once").
	s.handleStartSimulator(ctx, Envelope{Type: MsgStartSimulator, Payload: StartSimulatorPayload{ExchangeID: "NYSE", Symbols: []string{"AAPL"}}})

	var stateAfterSecond SimulatorCoordState
	s.do(func() { stateAfterSecond = s.simState })
	if stateAfterSecond != stateAfterFirst {
		t.Errorf("expected the second request to observe the same in-flight state, got %s vs %s", stateAfterSecond, stateAfterFirst)
	}

	close(gate)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var st SimulatorCoordState
		s.do(func() { st = s.simState })
		if st == SimRunning || st == SimError {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReconnectGraceExpiresSession(t *testing.T) {
	reg := testRegistry(t, "u1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := reg.GetOrCreate(ctx, "u1")
	s.do(func() {
		s.deviceID = "d1"
		s.sessionID = "sess-1"
		s.status = dbgateway.SessionReconnecting
		s.lastActive = time.Now().Add(-time.Hour) // already well past the grace period
	})

	select {
	case <-s.stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("expected the coordinator to stop once the reconnect grace period expired")
	}

	// do does not run its function once the coordinator has stopped, so the
	// final status is read through StatusSnapshot.
	status := s.StatusSnapshot()
	if status != dbgateway.SessionExpired {
		t.Errorf("expected EXPIRED, got %s", status)
	}
}

// wsMessage decodes one text frame into an Envelope.
func wsMessage(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func TestDeviceReplacementClosesOldConnection(t *testing.T) {
	reg := testRegistry(t, "u1")
	srv := NewServer(reg, zerolog.Nop())
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	dial := func(deviceID string) *websocket.Conn {
		u, _ := url.Parse(wsURL)
		q := u.Query()
		q.Set("token", "any")
		q.Set("deviceId", deviceID)
		u.RawQuery = q.Encode()
		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			t.Fatalf("dial %s: %v", deviceID, err)
		}
		return conn
	}

	connD1 := dial("d1")
	defer connD1.Close()
	env := wsMessage(t, connD1)
	if env.Type != MsgConnected {
		t.Fatalf("expected connected frame, got %s", env.Type)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var replacedType string
	var closeCode int
	connD1.SetCloseHandler(func(code int, text string) error {
		closeCode = code
		return nil
	})
	go func() {
		defer wg.Done()
		for {
			_, raw, err := connD1.ReadMessage()
			if err != nil {
				return
			}
			var e Envelope
			_ = json.Unmarshal(raw, &e)
			if e.Type == MsgConnectionReplaced {
				replacedType = e.Type
			}
		}
	}()

	connD2 := dial("d2")
	defer connD2.Close()
	env2 := wsMessage(t, connD2)
	if env2.Type != MsgConnected {
		t.Fatalf("expected connected frame on d2, got %s", env2.Type)
	}

	wg.Wait()
	if replacedType != MsgConnectionReplaced {
		t.Errorf("expected d1 to receive a connection_replaced frame")
	}
	if closeCode != 4000 {
		t.Errorf("expected close code 4000, got %d", closeCode)
	}
}
