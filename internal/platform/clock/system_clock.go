package clock

import "time"

// SystemClock returns the current UTC time at microsecond precision, the resolution postgres stores,
// so values round-trip through either storage backend unchanged.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
