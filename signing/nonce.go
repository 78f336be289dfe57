// signing/nonce.go
package signing

import (
	"sync/atomic"
	"time"
)

// TimestampNonce is the default nonce: current Unix milliseconds truncated
// to 32 bits. Fine for occasional orders; at high quote rates two orders
// can land in the same millisecond, so use a Nonce counter instead.
func TimestampNonce() uint32 {
	return uint32(time.Now().UnixMilli())
}

// Nonce is a monotonically increasing uint32 source seeded from the
// clock. Safe for concurrent use; wraps at the uint32 boundary.
type Nonce struct {
	n atomic.Uint32
}

// NewNonce returns a counter seeded from the current time so restarts
// don't replay nonces from the previous session.
func NewNonce() *Nonce {
	n := &Nonce{}
	n.n.Store(TimestampNonce())
	return n
}

// Next returns the next nonce.
func (n *Nonce) Next() uint32 {
	return n.n.Add(1)
}
