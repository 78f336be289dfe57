// types/instrument.go
package types

// Instrument describes a tradeable instrument on GRVT.
type Instrument struct {
	Instrument     string `json:"instrument"`      // canonical name, e.g. "BTC_USDT_Perp"
	InstrumentHash string `json:"instrument_hash"` // keccak256 of the canonical name
	Base           string `json:"base"`
	Quote          string `json:"quote"`
	Kind           Kind   `json:"kind"`
	BaseDecimals   int    `json:"base_decimals"`
	QuoteDecimals  int    `json:"quote_decimals"`
	TickSize       string `json:"tick_size"`
	MinSize        string `json:"min_size"`
	Expiry         *int64 `json:"expiry,omitempty"` // nil for perpetuals
}

// Validate checks the instrument definition.
func (i *Instrument) Validate() error {
	if err := checkHexHash("instrument_hash", i.InstrumentHash); err != nil {
		return err
	}
	if _, err := checkDecimalString("tick_size", i.TickSize); err != nil {
		return err
	}
	if _, err := checkDecimalString("min_size", i.MinSize); err != nil {
		return err
	}
	if i.BaseDecimals < 0 || i.QuoteDecimals < 0 {
		return newValidationError("decimals", "must be non-negative")
	}
	return nil
}
