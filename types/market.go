// types/market.go
package types

// OrderbookLevel is one price level of an L2 book.
type OrderbookLevel struct {
	Price     string `json:"price"`
	Size      string `json:"size"`
	NumOrders int    `json:"num_orders"`
}

// Validate checks the level's decimal strings.
func (l *OrderbookLevel) Validate() error {
	if _, err := checkDecimalString("price", l.Price); err != nil {
		return err
	}
	if _, err := checkDecimalString("size", l.Size); err != nil {
		return err
	}
	return nil
}

// Orderbook is an L2 snapshot for a single instrument.
type Orderbook struct {
	Instrument     string           `json:"instrument"`
	Bids           []OrderbookLevel `json:"bids"`
	Asks           []OrderbookLevel `json:"asks"`
	SequenceNumber uint64           `json:"sequence_number"`
}

// Trade is a single public trade event from the trades stream.
type Trade struct {
	TradeID    string `json:"trade_id"`
	Instrument string `json:"instrument"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	Side       Side   `json:"side"`
	Timestamp  int64  `json:"timestamp"` // Unix nanoseconds
}

// Validate checks the trade's decimal strings.
func (t *Trade) Validate() error {
	if _, err := checkDecimalString("price", t.Price); err != nil {
		return err
	}
	if _, err := checkDecimalString("size", t.Size); err != nil {
		return err
	}
	return nil
}
