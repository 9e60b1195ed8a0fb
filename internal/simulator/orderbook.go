package simulator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"simcore/pkg/apierr"
	"simcore/pkg/dbgateway"
)

// Fill is one execution against an open order, produced by OrderBook.Evaluate
// during the tick's step 4/5 (§4.1).
type Fill struct {
	OrderID string
	Symbol  string
	Side    dbgateway.OrderSide
	Qty     float64
	Price   float64
}

// OrderBook owns every Order for one (user_id, session_id) and the
// (user_id, request_id) idempotency index required by §3/§8.
type OrderBook struct {
	orders     map[string]*OrderRecord
	byRequest  map[string]*OrderRecord
	maxParticipation float64
}

// NewOrderBook creates an empty book. maxParticipation caps a single tick's
// fill quantity as a fraction of the bar's traded volume (§4.1 step 4).
func NewOrderBook(maxParticipation float64) *OrderBook {
	if maxParticipation <= 0 {
		maxParticipation = 0.25
	}
	return &OrderBook{
		orders:           make(map[string]*OrderRecord),
		byRequest:        make(map[string]*OrderRecord),
		maxParticipation: maxParticipation,
	}
}

// Submit validates and records a new order. A repeat call with the same
// request_id returns the original record instead of creating a duplicate
// (idempotency, §3/§8).
func (b *OrderBook) Submit(in SubmitOrderInput) (*OrderRecord, error) {
	if existing, ok := b.byRequest[in.RequestID]; ok && in.RequestID != "" {
		return existing, nil
	}
	if in.Quantity <= 0 {
		return nil, apierr.New(apierr.Validation, "quantity must be positive")
	}
	if in.Type == dbgateway.TypeLimit && in.Price <= 0 {
		return nil, apierr.New(apierr.Validation, "limit orders require a positive price")
	}
	if in.Side != dbgateway.SideBuy && in.Side != dbgateway.SideSell {
		return nil, apierr.New(apierr.Validation, "side must be BUY or SELL")
	}

	now := time.Now()
	rec := &OrderRecord{
		OrderID:   uuid.NewString(),
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Symbol:    in.Symbol,
		Side:      in.Side,
		Type:      in.Type,
		Quantity:  in.Quantity,
		Price:     in.Price,
		Status:    dbgateway.OrderNew,
		RequestID: in.RequestID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.orders[rec.OrderID] = rec
	if in.RequestID != "" {
		b.byRequest[in.RequestID] = rec
	}
	return rec, nil
}

// Cancel transitions an order to CANCELED. It is a no-op success if the
// order is already terminal (idempotent cancel, §4.1).
func (b *OrderBook) Cancel(orderID string) (*OrderRecord, error) {
	rec, ok := b.orders[orderID]
	if !ok {
		return nil, apierr.New(apierr.NotFound, fmt.Sprintf("order %s not found", orderID))
	}
	if rec.Terminal() {
		return rec, nil
	}
	rec.Status = dbgateway.OrderCanceled
	rec.UpdatedAt = time.Now()
	return rec, nil
}

// Get returns an order by id.
func (b *OrderBook) Get(orderID string) (*OrderRecord, bool) {
	rec, ok := b.orders[orderID]
	return rec, ok
}

// Open returns every non-terminal order.
func (b *OrderBook) Open() []*OrderRecord {
	var out []*OrderRecord
	for _, rec := range b.orders {
		if !rec.Terminal() {
			out = append(out, rec)
		}
	}
	return out
}

// Snapshot returns a copy of every order, for frame construction.
func (b *OrderBook) Snapshot() []OrderRecord {
	out := make([]OrderRecord, 0, len(b.orders))
	for _, rec := range b.orders {
		out = append(out, *rec)
	}
	return out
}

// Evaluate walks every open order against the current market, filling or
// partially filling per §4.1 step 4, and returns the resulting Fills.
func (b *OrderBook) Evaluate(market *MarketBook, impacts *ImpactBook) []Fill {
	var fills []Fill
	for _, rec := range b.Open() {
		last, ok := market.Last(rec.Symbol)
		if !ok {
			continue
		}

		switch rec.Type {
		case dbgateway.TypeMarket:
			price, ok := market.CrossPrice(rec.Symbol, rec.Side, impacts.Current(rec.Symbol))
			if !ok {
				continue
			}
			fills = append(fills, b.fillAt(rec, market, price)...)
		case dbgateway.TypeLimit:
			eligible := (rec.Side == dbgateway.SideBuy && last <= rec.Price) ||
				(rec.Side == dbgateway.SideSell && last >= rec.Price)
			if !eligible {
				continue
			}
			fills = append(fills, b.fillAt(rec, market, rec.Price)...)
		}
	}
	return fills
}

func (b *OrderBook) fillAt(rec *OrderRecord, market *MarketBook, price float64) []Fill {
	remaining := rec.Quantity - rec.FilledQuantity
	if remaining <= 0 {
		return nil
	}

	available := remaining
	if vol := market.Volume(rec.Symbol); vol > 0 {
		capQty := vol * b.maxParticipation
		if capQty < available {
			available = capQty
		}
	}
	if available <= 0 {
		return nil
	}

	newFilled := rec.FilledQuantity + available
	rec.AvgPrice = (rec.AvgPrice*rec.FilledQuantity + price*available) / newFilled
	rec.FilledQuantity = newFilled
	rec.UpdatedAt = time.Now()
	if rec.FilledQuantity >= rec.Quantity-1e-9 {
		rec.FilledQuantity = rec.Quantity
		rec.Status = dbgateway.OrderFilled
	} else {
		rec.Status = dbgateway.OrderPartiallyFilled
	}

	return []Fill{{OrderID: rec.OrderID, Symbol: rec.Symbol, Side: rec.Side, Qty: available, Price: price}}
}

// Reject marks an order REJECTED with an error message. Order execution
// failures are recoverable: the simulator stays RUNNING (§4.1 Failure semantics).
func (b *OrderBook) Reject(orderID, reason string) {
	if rec, ok := b.orders[orderID]; ok {
		rec.Status = dbgateway.OrderRejected
		rec.ErrorMessage = reason
		rec.UpdatedAt = time.Now()
	}
}
