package clock

import (
	"testing"
	"time"
)

func TestSystemClock_NowIsUTC(t *testing.T) {
	t.Parallel()

	before := time.Now()
	got := NewSystemClock().Now()
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", got.Location())
	}
	if got.Before(before.Add(-time.Second)) {
		t.Fatalf("clock is behind wall time: %v < %v", got, before)
	}
}
