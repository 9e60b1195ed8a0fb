package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"simcore/internal/authsvc"
	"simcore/internal/rpc"
	"simcore/internal/telemetry"
	"simcore/pkg/dbgateway"
)

type fakeSimClient struct {
	submitCalls int
}

func (f *fakeSimClient) Heartbeat(ctx context.Context, in *rpc.HeartbeatRequest, opts ...grpc.CallOption) (*rpc.HeartbeatResponse, error) {
	return &rpc.HeartbeatResponse{OK: true}, nil
}
func (f *fakeSimClient) StreamExchangeData(ctx context.Context, in *rpc.StreamExchangeDataRequest, opts ...grpc.CallOption) (rpc.ExchangeSimulator_StreamExchangeDataClient, error) {
	return nil, fmt.Errorf("not supported in test fake")
}
func (f *fakeSimClient) SubmitOrder(ctx context.Context, in *rpc.SubmitOrderRequest, opts ...grpc.CallOption) (*rpc.SubmitOrderResponse, error) {
	f.submitCalls++
	return &rpc.SubmitOrderResponse{Success: true, OrderID: fmt.Sprintf("order-%d", f.submitCalls)}, nil
}
func (f *fakeSimClient) CancelOrder(ctx context.Context, in *rpc.CancelOrderRequest, opts ...grpc.CallOption) (*rpc.CancelOrderResponse, error) {
	return &rpc.CancelOrderResponse{Success: true}, nil
}
func (f *fakeSimClient) SubmitConviction(ctx context.Context, in *rpc.SubmitConvictionRequest, opts ...grpc.CallOption) (*rpc.SubmitConvictionResponse, error) {
	results := make([]rpc.ConvictionResult, len(in.Convictions))
	for i, conv := range in.Convictions {
		results[i] = rpc.ConvictionResult{Symbol: conv.Symbol, OrderIDs: []string{"order-conv-1"}, Success: true}
	}
	return &rpc.SubmitConvictionResponse{Results: results}, nil
}

type fakeValidator struct{ userID string }

func (v fakeValidator) Validate(ctx context.Context, token string) (authsvc.Result, error) {
	return authsvc.Result{Valid: true, UserID: v.userID, Role: "user"}, nil
}
func (v fakeValidator) IssueAccessToken(userID, role string, ttl time.Duration) (string, error) {
	return "tok-" + userID, nil
}

func testServer(t *testing.T, client rpc.ExchangeSimulatorClient) (*Server, *dbgateway.Database) {
	t.Helper()
	db, err := dbgateway.Open(":memory:", 1, 1)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.Sessions().Create(ctx, dbgateway.Session{SessionID: "sess-1", UserID: "u1", DeviceID: "d1", Status: dbgateway.SessionActive}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := db.Simulators().Create(ctx, dbgateway.Simulator{SimulatorID: "sim-1", SessionID: "sess-1", UserID: "u1", Endpoint: "127.0.0.1:0", Status: dbgateway.SimRunning}); err != nil {
		t.Fatalf("seed simulator: %v", err)
	}

	dial := func(ctx context.Context, endpoint string) (rpc.ExchangeSimulatorClient, func() error, error) {
		return client, func() error { return nil }, nil
	}

	srv := NewServer(Config{JWTSecret: "test"}, db, fakeValidator{userID: "u1"}, dial,
		telemetry.NewTracer("test", false), telemetry.NewMetrics("test", false), zerolog.Nop())
	return srv, db
}

func doJSON(srv *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", "test-csrf-token")
	}
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)
	return w
}

func TestSubmitOrdersHappyPath(t *testing.T) {
	client := &fakeSimClient{}
	srv, _ := testServer(t, client)

	w := doJSON(srv, http.MethodPost, "/api/orders/submit", SubmitOrdersRequest{
		Orders: []OrderRequest{{Symbol: "AAPL", Side: "BUY", Type: "MARKET", Quantity: 10, RequestID: "r1"}},
	}, "tok-u1")

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 || !resp.Results[0].Success {
		t.Fatalf("expected one successful result, got %+v", resp.Results)
	}
	if client.submitCalls != 1 {
		t.Errorf("expected exactly one upstream SubmitOrder call, got %d", client.submitCalls)
	}
}

func TestSubmitOrdersIdempotentReplay(t *testing.T) {
	client := &fakeSimClient{}
	srv, _ := testServer(t, client)

	req := SubmitOrdersRequest{Orders: []OrderRequest{{Symbol: "AAPL", Side: "BUY", Type: "MARKET", Quantity: 10, RequestID: "r1"}}}
	w1 := doJSON(srv, http.MethodPost, "/api/orders/submit", req, "tok-u1")
	w2 := doJSON(srv, http.MethodPost, "/api/orders/submit", req, "tok-u1")

	if w1.Body.String() != w2.Body.String() {
		t.Errorf("expected identical response on replay, got %s vs %s", w1.Body.String(), w2.Body.String())
	}
	if client.submitCalls != 1 {
		t.Errorf("expected the upstream call to happen only once, got %d", client.submitCalls)
	}
}

func TestSubmitOrdersBatchCapRejected(t *testing.T) {
	client := &fakeSimClient{}
	srv, _ := testServer(t, client)

	orders := make([]OrderRequest, 101)
	for i := range orders {
		orders[i] = OrderRequest{Symbol: "AAPL", Side: "BUY", Type: "MARKET", Quantity: 1}
	}
	w := doJSON(srv, http.MethodPost, "/api/orders/submit", SubmitOrdersRequest{Orders: orders}, "tok-u1")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for over-cap batch, got %d", w.Code)
	}
	if client.submitCalls != 0 {
		t.Errorf("expected zero orders created for a rejected batch, got %d", client.submitCalls)
	}
}

func TestMissingAuthRejected(t *testing.T) {
	srv, _ := testServer(t, &fakeSimClient{})
	w := doJSON(srv, http.MethodPost, "/api/orders/submit", SubmitOrdersRequest{}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", w.Code)
	}
}

func TestMissingCSRFTokenRejected(t *testing.T) {
	srv, _ := testServer(t, &fakeSimClient{})

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(SubmitOrdersRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/orders/submit", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok-u1")
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-CSRF-Token, got %d", w.Code)
	}
}

func TestPerUserLockRejectsConcurrentMutation(t *testing.T) {
	srv, _ := testServer(t, &fakeSimClient{})
	if !srv.locks.Acquire("u1", "holder-a") {
		t.Fatal("expected the first acquire to succeed")
	}
	if srv.locks.Acquire("u1", "holder-b") {
		t.Fatal("expected a concurrent acquire to fail while the lease is held")
	}
}

func TestHealthIsExemptFromAuth(t *testing.T) {
	srv, _ := testServer(t, &fakeSimClient{})
	w := doJSON(srv, http.MethodGet, "/health", nil, "")
	if w.Code != 200 {
		t.Fatalf("expected /health to be reachable without a token, got %d", w.Code)
	}
}
