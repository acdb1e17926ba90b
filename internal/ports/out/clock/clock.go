package clock

import "time"

// Clock supplies timestamps for membership dates, audit entries, and record bookkeeping.
type Clock interface {
	Now() time.Time
}
