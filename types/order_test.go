package types

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakeHash = "0x" + strings.Repeat("ab", 32)

func testLeg(mut func(*OrderLeg)) OrderLeg {
	leg := OrderLeg{
		InstrumentHash: fakeHash,
		Size:           "0.01",
		LimitPrice:     "50000.0",
		IsBuyingAsset:  true,
	}
	if mut != nil {
		mut(&leg)
	}
	return leg
}

func testOrder(mut func(*Order)) Order {
	o := Order{
		SubAccountID: 99,
		TimeInForce:  TimeInForceGoodTillTime,
		Expiration:   1_000_000_000,
		Legs:         []OrderLeg{testLeg(nil)},
		Metadata:     OrderMetadata{ClientOrderID: 1, CreateTime: time.Now().UnixNano()},
	}
	if mut != nil {
		mut(&o)
	}
	return o
}

func TestOrderLegValidate(t *testing.T) {
	leg := testLeg(nil)
	require.NoError(t, leg.Validate())

	cases := []struct {
		name string
		mut  func(*OrderLeg)
		want string
	}{
		{"hash not hex", func(l *OrderLeg) { l.InstrumentHash = "not-hex" }, "not valid hex"},
		{"empty hash", func(l *OrderLeg) { l.InstrumentHash = "" }, "non-empty hex"},
		{"empty size", func(l *OrderLeg) { l.Size = "" }, "non-empty decimal"},
		{"zero size", func(l *OrderLeg) { l.Size = "0" }, "must be positive"},
		{"negative size", func(l *OrderLeg) { l.Size = "-1" }, "must be positive"},
		{"non-numeric size", func(l *OrderLeg) { l.Size = "abc" }, "valid decimal"},
		{"zero limit price", func(l *OrderLeg) { l.LimitPrice = "0" }, "must be positive"},
		{"negative limit price", func(l *OrderLeg) { l.LimitPrice = "-100" }, "must be positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			leg := testLeg(tc.mut)
			err := leg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestOrderLegValidationErrorField(t *testing.T) {
	leg := testLeg(func(l *OrderLeg) { l.Size = "0" })
	err := leg.Validate()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "size", verr.Field)
}

func TestOrderMetadataValidate(t *testing.T) {
	m := OrderMetadata{ClientOrderID: 0, CreateTime: 0}
	require.NoError(t, m.Validate())

	m = OrderMetadata{ClientOrderID: 0xFFFF_FFFF, CreateTime: time.Now().UnixNano()}
	require.NoError(t, m.Validate())

	m.CreateTime = -1
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")
}

func TestNewOrderMetadata(t *testing.T) {
	before := time.Now().UnixNano()
	m := NewOrderMetadata()
	require.NoError(t, m.Validate())
	assert.GreaterOrEqual(t, m.CreateTime, before)
}

func TestOrderValidate(t *testing.T) {
	o := testOrder(nil)
	require.NoError(t, o.Validate())
	assert.False(t, o.PostOnly)
	assert.False(t, o.ReduceOnly)

	cases := []struct {
		name string
		mut  func(*Order)
		want string
	}{
		{"zero sub account", func(o *Order) { o.SubAccountID = 0 }, "must be positive"},
		{"negative sub account", func(o *Order) { o.SubAccountID = -5 }, "must be positive"},
		{"negative expiration", func(o *Order) { o.Expiration = -1 }, "non-negative"},
		{"no legs", func(o *Order) { o.Legs = nil }, "at least one leg"},
		{"invalid leg", func(o *Order) { o.Legs[0].Size = "0" }, "must be positive"},
		{"negative create time", func(o *Order) { o.Metadata.CreateTime = -1 }, "non-negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := testOrder(tc.mut)
			err := o.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "BUY", SideBuy.String())
	assert.Equal(t, "SELL", SideSell.String())
	assert.Equal(t, "GOOD_TILL_TIME", TimeInForceGoodTillTime.String())
	assert.Equal(t, "IMMEDIATE_OR_CANCEL", TimeInForceImmediateOrCancel.String())
	assert.Equal(t, "OPEN", OrderStatusOpen.String())
	assert.Equal(t, "CANCELLED", OrderStatusCancelled.String())
	assert.Equal(t, "PERPETUAL", KindPerpetual.String())
	assert.Equal(t, "Side(9)", Side(9).String())
}
