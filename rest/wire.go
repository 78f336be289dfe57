// rest/wire.go
package rest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/yodablocks/grvt-sdk/types"
)

// GRVT stringifies int64 fields on the wire to avoid JavaScript precision
// loss, and order legs carry the instrument hash under the key
// "instrument". The wire structs below isolate both quirks from the public
// models in types.

type wireLeg struct {
	Instrument    string `json:"instrument"`
	Size          string `json:"size"`
	LimitPrice    string `json:"limit_price"`
	IsBuyingAsset bool   `json:"is_buying_asset"`
}

type wireMetadata struct {
	ClientOrderID uint32 `json:"client_order_id"`
	CreateTime    string `json:"create_time"`
}

type wireOrder struct {
	SubAccountID string       `json:"sub_account_id"`
	TimeInForce  int          `json:"time_in_force"`
	Expiration   string       `json:"expiration"`
	Legs         []wireLeg    `json:"legs"`
	Metadata     wireMetadata `json:"metadata"`
	Signature    string       `json:"signature"`
}

func orderToWire(o *types.Order) wireOrder {
	legs := make([]wireLeg, len(o.Legs))
	for i, l := range o.Legs {
		legs[i] = wireLeg{
			Instrument:    l.InstrumentHash,
			Size:          l.Size,
			LimitPrice:    l.LimitPrice,
			IsBuyingAsset: l.IsBuyingAsset,
		}
	}
	return wireOrder{
		SubAccountID: strconv.FormatInt(o.SubAccountID, 10),
		TimeInForce:  int(o.TimeInForce),
		Expiration:   strconv.FormatInt(o.Expiration, 10),
		Legs:         legs,
		Metadata: wireMetadata{
			ClientOrderID: o.Metadata.ClientOrderID,
			CreateTime:    strconv.FormatInt(o.Metadata.CreateTime, 10),
		},
		Signature: o.Signature,
	}
}

// flexInt64 accepts both JSON numbers and numeric strings.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse int64 %q: %w", s, err)
	}
	*f = flexInt64(v)
	return nil
}

type wireOrderIn struct {
	OrderID      string    `json:"order_id"`
	SubAccountID flexInt64 `json:"sub_account_id"`
	TimeInForce  int       `json:"time_in_force"`
	Expiration   flexInt64 `json:"expiration"`
	Legs         []wireLeg `json:"legs"`
	Metadata     struct {
		ClientOrderID uint32    `json:"client_order_id"`
		CreateTime    flexInt64 `json:"create_time"`
	} `json:"metadata"`
	PostOnly   bool   `json:"post_only"`
	ReduceOnly bool   `json:"reduce_only"`
	Signature  string `json:"signature"`
}

func parseOrder(raw json.RawMessage) (types.Order, error) {
	var in wireOrderIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return types.Order{}, fmt.Errorf("parse order: %w", err)
	}
	legs := make([]types.OrderLeg, len(in.Legs))
	for i, l := range in.Legs {
		legs[i] = types.OrderLeg{
			InstrumentHash: l.Instrument,
			Size:           l.Size,
			LimitPrice:     l.LimitPrice,
			IsBuyingAsset:  l.IsBuyingAsset,
		}
	}
	return types.Order{
		OrderID:      in.OrderID,
		SubAccountID: int64(in.SubAccountID),
		TimeInForce:  types.TimeInForce(in.TimeInForce),
		Expiration:   int64(in.Expiration),
		Legs:         legs,
		Metadata: types.OrderMetadata{
			ClientOrderID: in.Metadata.ClientOrderID,
			CreateTime:    int64(in.Metadata.CreateTime),
		},
		PostOnly:   in.PostOnly,
		ReduceOnly: in.ReduceOnly,
		Signature:  in.Signature,
	}, nil
}

// unwrapResult strips the {"result": ...} envelope when present.
func unwrapResult(raw json.RawMessage) json.RawMessage {
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Result) > 0 {
		return envelope.Result
	}
	return raw
}
