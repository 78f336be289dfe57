// ws/backoff.go
package ws

import "time"

// backoff produces the delay before each reconnect attempt: base on the
// first failure, doubling per consecutive failure, capped at max.
type backoff struct {
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max, cur: base}
}

// Next returns the delay for the current failure and doubles it for the next.
func (b *backoff) Next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}

// Reset returns the delay to its base value after a healthy connected period.
func (b *backoff) Reset() {
	b.cur = b.base
}
