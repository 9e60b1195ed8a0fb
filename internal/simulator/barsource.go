package simulator

import (
	"context"
	"time"

	"simcore/pkg/dbgateway"
)

// DBBarSource backfills gap-replay bars straight from the shared database
// C5 persists every bar to, instead of a live round trip to the distributor
// (§4.1 step 1: "request back-fill from C5").
type DBBarSource struct {
	db dbgateway.DatabaseGateway
}

// NewDBBarSource wraps a DatabaseGateway as a BarSource.
func NewDBBarSource(db dbgateway.DatabaseGateway) *DBBarSource {
	return &DBBarSource{db: db}
}

func (s *DBBarSource) BarsBetween(ctx context.Context, symbol string, from, to time.Time) ([]dbgateway.MinuteBar, error) {
	bars, err := s.db.MarketData().BarsSince(ctx, symbol, from.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	var out []dbgateway.MinuteBar
	for _, b := range bars {
		if b.TimestampUTC.After(to) {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

var _ BarSource = (*DBBarSource)(nil)
