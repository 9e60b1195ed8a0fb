package dbgateway

import "github.com/vmihailenco/msgpack/v5"

// EncodeCashFlow serializes a CashFlow to the binary form persisted
// alongside its relational columns in exch_us_equity_cash_flow_data.encoded
// (§8: "CashFlow encode -> decode -> encode is byte-identical after
// normalisation" -- amounts are already normalised to decimal strings by
// pkg/money before a CashFlow is built, so msgpack's own canonical map
// encoding makes the round trip exact).
func EncodeCashFlow(cf CashFlow) ([]byte, error) {
	return msgpack.Marshal(cf)
}

// DecodeCashFlow is the inverse of EncodeCashFlow.
func DecodeCashFlow(b []byte) (CashFlow, error) {
	var cf CashFlow
	err := msgpack.Unmarshal(b, &cf)
	return cf, err
}
