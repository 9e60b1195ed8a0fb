package dbgateway

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestCashFlowEncodeDecodeRoundTrip(t *testing.T) {
	cf := CashFlow{
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		UserID:       "u1",
		Type:         FlowPortfolioTransfer,
		FromAccount:  "u1:CASH",
		FromCurrency: "USD",
		FromFX:       "1",
		FromAmount:   "1000.00000000",
		ToAccount:    "u1:PORTFOLIO",
		ToCurrency:   "USD",
		ToFX:         "1",
		ToAmount:     "1000.00000000",
		Instrument:   "AAPL",
		TradeID:      "t1",
		Description:  "buy",
	}

	encoded, err := EncodeCashFlow(cf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeCashFlow(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != cf {
		t.Fatalf("decoded cash flow mismatch: got %+v, want %+v", decoded, cf)
	}

	reencoded, err := EncodeCashFlow(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(encoded, reencoded) {
		t.Fatalf("encode -> decode -> encode is not byte-identical")
	}
}

func TestCashFlowRecordAndFetchRoundTrip(t *testing.T) {
	d := openTest(t)
	ctx := context.Background()

	cf := CashFlow{
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		UserID:       "u1",
		Type:         FlowAccountFee,
		FromAccount:  "u1:CASH",
		FromCurrency: "USD",
		FromFX:       "1",
		FromAmount:   "1.50000000",
		ToAccount:    "fees:USD",
		ToCurrency:   "USD",
		ToFX:         "1",
		ToAmount:     "1.50000000",
	}
	if err := d.Ledger().RecordCashFlow(ctx, cf); err != nil {
		t.Fatalf("record cash flow: %v", err)
	}

	got, err := d.Ledger().CashFlowsByUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("cash flows by user: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 cash flow, got %d", len(got))
	}
	if got[0] != cf {
		t.Fatalf("round-tripped cash flow mismatch: got %+v, want %+v", got[0], cf)
	}
}
