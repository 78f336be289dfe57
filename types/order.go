// types/order.go
package types

import (
	"time"

	"github.com/google/uuid"
)

// OrderLeg is a single leg of an order. GRVT supports multi-leg (combo)
// orders; simple spot/perp orders have exactly one leg.
type OrderLeg struct {
	InstrumentHash string `json:"instrument_hash"` // keccak256 of the instrument canonical name
	Size           string `json:"size"`            // quantity as decimal string, e.g. "0.01"
	LimitPrice     string `json:"limit_price"`     // worst acceptable execution price
	IsBuyingAsset  bool   `json:"is_buying_asset"` // true: buy base, false: sell base
}

// Validate checks the leg fields before signing or submission.
func (l *OrderLeg) Validate() error {
	if err := checkHexHash("instrument_hash", l.InstrumentHash); err != nil {
		return err
	}
	if err := checkPositiveDecimalString("size", l.Size); err != nil {
		return err
	}
	if err := checkPositiveDecimalString("limit_price", l.LimitPrice); err != nil {
		return err
	}
	return nil
}

// OrderMetadata is off-chain metadata attached to every order. The client
// order ID is echoed back in all order updates for correlation.
type OrderMetadata struct {
	ClientOrderID uint32 `json:"client_order_id"`
	CreateTime    int64  `json:"create_time"` // Unix nanoseconds
}

// NewOrderMetadata returns metadata with a random client order ID and the
// current time.
func NewOrderMetadata() OrderMetadata {
	return OrderMetadata{
		ClientOrderID: uuid.New().ID(),
		CreateTime:    time.Now().UnixNano(),
	}
}

// Validate checks the metadata fields.
func (m *OrderMetadata) Validate() error {
	if m.CreateTime < 0 {
		return newValidationError("create_time", "must be a non-negative Unix nanosecond timestamp")
	}
	return nil
}

// Order is a fully constructed GRVT order ready to be signed and submitted.
// Signature is populated by signing.SignOrder; OrderID is assigned by the
// exchange on creation.
type Order struct {
	SubAccountID int64         `json:"sub_account_id"`
	TimeInForce  TimeInForce   `json:"time_in_force"`
	Expiration   int64         `json:"expiration"` // Unix nanoseconds
	Legs         []OrderLeg    `json:"legs"`
	Metadata     OrderMetadata `json:"metadata"`
	PostOnly     bool          `json:"post_only,omitempty"`   // rejected if it would match immediately
	ReduceOnly   bool          `json:"reduce_only,omitempty"` // can only reduce an existing position
	Signature    string        `json:"signature,omitempty"`
	OrderID      string        `json:"order_id,omitempty"`
}

// Validate checks the order and all nested fields.
func (o *Order) Validate() error {
	if o.SubAccountID <= 0 {
		return newValidationError("sub_account_id", "must be positive, got %d", o.SubAccountID)
	}
	if o.Expiration < 0 {
		return newValidationError("expiration", "must be a non-negative Unix nanosecond timestamp, got %d", o.Expiration)
	}
	if len(o.Legs) == 0 {
		return newValidationError("legs", "order must have at least one leg")
	}
	for i := range o.Legs {
		if err := o.Legs[i].Validate(); err != nil {
			return err
		}
	}
	return o.Metadata.Validate()
}

// CreateOrderResponse is the exchange's acknowledgement of a new order.
type CreateOrderResponse struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Reason  string      `json:"reason,omitempty"`
}

// CancelOrderResponse acknowledges a single-order cancel.
type CancelOrderResponse struct {
	OrderID string `json:"order_id"`
	Success bool   `json:"success"`
}

// CancelAllOrdersResponse reports how many orders a bulk cancel removed.
type CancelAllOrdersResponse struct {
	NumCancelled int `json:"num_cancelled"`
}
