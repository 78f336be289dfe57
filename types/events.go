// types/events.go
package types

// Fill is a partial or full execution from the private fills stream.
// Fee may be negative for maker rebates.
type Fill struct {
	FillID        string `json:"fill_id"`
	OrderID       string `json:"order_id"`
	ClientOrderID uint32 `json:"client_order_id"`
	Instrument    string `json:"instrument"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	Side          Side   `json:"side"`
	Fee           string `json:"fee"`
	Timestamp     int64  `json:"timestamp"` // Unix nanoseconds
	IsMaker       bool   `json:"is_maker"`
}

// Validate checks the fill's decimal strings.
func (f *Fill) Validate() error {
	if _, err := checkDecimalString("price", f.Price); err != nil {
		return err
	}
	if _, err := checkDecimalString("size", f.Size); err != nil {
		return err
	}
	if _, err := checkDecimalString("fee", f.Fee); err != nil {
		return err
	}
	return nil
}

// OrderUpdate is an order lifecycle event from the private orders stream.
// Covers new order ack, partial fill, full fill, cancel, and reject.
type OrderUpdate struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID uint32      `json:"client_order_id"`
	Instrument    string      `json:"instrument"`
	Status        OrderStatus `json:"status"`
	FilledSize    string      `json:"filled_size"`
	RemainingSize string      `json:"remaining_size"`
	AvgFillPrice  string      `json:"avg_fill_price"`
	Reason        string      `json:"reason,omitempty"`
	Timestamp     int64       `json:"timestamp"`
}

// Validate checks the update's decimal strings.
func (u *OrderUpdate) Validate() error {
	if _, err := checkDecimalString("filled_size", u.FilledSize); err != nil {
		return err
	}
	if _, err := checkDecimalString("remaining_size", u.RemainingSize); err != nil {
		return err
	}
	if _, err := checkDecimalString("avg_fill_price", u.AvgFillPrice); err != nil {
		return err
	}
	return nil
}
