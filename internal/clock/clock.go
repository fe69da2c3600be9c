// AngelaMos | 2026
// clock.go

package clock

import "time"

// Clock abstracts time for components whose behavior depends on it:
// token lifetimes, key grace windows, refresh-token expiry and the
// retention sweep. Production code injects Real(); tests inject Fake().
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C until Stop is called.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }
