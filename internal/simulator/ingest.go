package simulator

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"simcore/pkg/dbgateway"
)

// incomingBar mirrors the wire shape C5's distributor POSTs to every
// registered pod's /market-data endpoint (internal/distributor.PushedBar).
type incomingBar struct {
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	VWAP      float64 `json:"vwap"`
	Timestamp int64   `json:"timestamp_ms"`
}

// MarketDataHandler accepts C5's pushed bar batch and feeds each one into
// the engine's tick algorithm (§4.1, §4.5). This is the receiving half of
// the C5->C1 push the distributor's pushOne dials.
func MarketDataHandler(engine *Engine, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var bars []incomingBar
		if err := json.NewDecoder(r.Body).Decode(&bars); err != nil {
			http.Error(w, "invalid bar batch", http.StatusBadRequest)
			return
		}

		for _, b := range bars {
			engine.IngestBar(r.Context(), dbgateway.MinuteBar{
				Symbol:       b.Symbol,
				TimestampUTC: time.UnixMilli(b.Timestamp).UTC(),
				Open:         b.Open,
				High:         b.High,
				Low:          b.Low,
				Close:        b.Close,
				Volume:       b.Volume,
				VWAP:         b.VWAP,
			})
		}

		log.Debug().Int("bars", len(bars)).Msg("ingested market data push")
		w.WriteHeader(http.StatusAccepted)
	}
}
