// Package clock provides the production wall clock behind the out-port Clock.
package clock

import "time"

// SystemClock returns the current wall-clock time in UTC.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }
