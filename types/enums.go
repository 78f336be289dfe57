// types/enums.go
package types

import "fmt"

// Side represents the trading side of an order leg or fill.
type Side int

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// TimeInForce controls how long an order stays on the book.
type TimeInForce int

const (
	TimeInForceGoodTillTime      TimeInForce = 1 // GTT
	TimeInForceAllOrNone         TimeInForce = 2 // AON
	TimeInForceImmediateOrCancel TimeInForce = 3 // IOC
	TimeInForceFillOrKill        TimeInForce = 4 // FOK
)

func (t TimeInForce) String() string {
	switch t {
	case TimeInForceGoodTillTime:
		return "GOOD_TILL_TIME"
	case TimeInForceAllOrNone:
		return "ALL_OR_NONE"
	case TimeInForceImmediateOrCancel:
		return "IMMEDIATE_OR_CANCEL"
	case TimeInForceFillOrKill:
		return "FILL_OR_KILL"
	default:
		return fmt.Sprintf("TimeInForce(%d)", int(t))
	}
}

// OrderStatus is the exchange-side lifecycle state of an order.
type OrderStatus int

const (
	OrderStatusPending   OrderStatus = 1
	OrderStatusOpen      OrderStatus = 2
	OrderStatusFilled    OrderStatus = 3
	OrderStatusCancelled OrderStatus = 4
	OrderStatusRejected  OrderStatus = 5
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusOpen:
		return "OPEN"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("OrderStatus(%d)", int(s))
	}
}

// Kind classifies an instrument: perpetual, dated future, or option.
type Kind int

const (
	KindPerpetual Kind = 1
	KindFuture    Kind = 2
	KindCall      Kind = 3
	KindPut       Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindPerpetual:
		return "PERPETUAL"
	case KindFuture:
		return "FUTURE"
	case KindCall:
		return "CALL"
	case KindPut:
		return "PUT"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}
