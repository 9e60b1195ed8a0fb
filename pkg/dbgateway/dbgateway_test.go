package dbgateway

import (
	"context"
	"testing"
	"time"
)

func openTest(t *testing.T) *Database {
	t.Helper()
	d, err := Open(":memory:", 1, 1)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestUserRoundTrip(t *testing.T) {
	d := openTest(t)
	ctx := context.Background()

	u := User{ID: "u1", Email: "a@example.com", PasswordHash: "hash", Role: "user"}
	if err := d.Users().Create(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := d.Users().ByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("by email: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected id %q, got %q", u.ID, got.ID)
	}

	if _, err := d.Users().ByEmail(ctx, "missing@example.com"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	d := openTest(t)
	ctx := context.Background()

	s := Session{SessionID: "sess1", UserID: "u1", DeviceID: "dev1", Status: SessionActive, ExpiresAt: time.Now().Add(time.Minute)}
	if err := d.Sessions().Create(ctx, s); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := d.Sessions().BindDevice(ctx, "sess1", "dev2"); err != nil {
		t.Fatalf("bind device: %v", err)
	}
	got, err := d.Sessions().ByID(ctx, "sess1")
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if got.DeviceID != "dev2" {
		t.Errorf("expected rebound device dev2, got %q", got.DeviceID)
	}

	meta, err := d.Sessions().Metadata(ctx, "sess1")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.ReconnectCount != 1 {
		t.Errorf("expected reconnect_count 1 after rebind, got %d", meta.ReconnectCount)
	}

	expired, err := d.Sessions().ExpiredBefore(ctx, time.Now().Add(time.Hour).Format(time.RFC3339))
	if err != nil {
		t.Fatalf("expired before: %v", err)
	}
	if len(expired) != 1 {
		t.Errorf("expected 1 expired session, got %d", len(expired))
	}
}

func TestIdempotencyStoreIsKeyedByDomain(t *testing.T) {
	d := openTest(t)
	ctx := context.Background()

	if err := d.Idempotency().Store(ctx, IdempotencyRecord{UserID: "u1", RequestID: "r1", Domain: "order", ResponseJSON: `{"ok":true}`}); err != nil {
		t.Fatalf("store order record: %v", err)
	}

	// Same (user, request) under a different domain must not collide.
	if _, err := d.Idempotency().Lookup(ctx, "u1", "r1", "conviction"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for distinct domain, got %v", err)
	}

	rec, err := d.Idempotency().Lookup(ctx, "u1", "r1", "order")
	if err != nil {
		t.Fatalf("lookup order record: %v", err)
	}
	if rec.ResponseJSON != `{"ok":true}` {
		t.Errorf("unexpected cached response: %s", rec.ResponseJSON)
	}
}

func TestLedgerAccountBalanceRoundTrip(t *testing.T) {
	d := openTest(t)
	ctx := context.Background()

	a := Account{UserID: "u1", Label: "cash", Currency: "USD", Balance: "1000.12345678"}
	if err := d.Ledger().SetBalance(ctx, a); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	got, err := d.Ledger().Account(ctx, "u1", "cash", "USD")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Balance != "1000.12345678" {
		t.Errorf("expected exact decimal string round trip, got %q", got.Balance)
	}
}

func TestMinuteBarUpsert(t *testing.T) {
	d := openTest(t)
	ctx := context.Background()

	ts := time.Date(2026, 7, 31, 14, 30, 0, 0, time.UTC)
	bar := MinuteBar{Symbol: "AAPL", TimestampUTC: ts, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000, VWAP: 100.2}
	if err := d.MarketData().InsertBar(ctx, bar); err != nil {
		t.Fatalf("insert bar: %v", err)
	}
	bar.Close = 102
	if err := d.MarketData().InsertBar(ctx, bar); err != nil {
		t.Fatalf("upsert bar: %v", err)
	}

	latest, err := d.MarketData().LatestBar(ctx, "AAPL")
	if err != nil {
		t.Fatalf("latest bar: %v", err)
	}
	if latest.Close != 102 {
		t.Errorf("expected updated close 102, got %v", latest.Close)
	}
}
