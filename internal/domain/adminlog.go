package domain

import "time"

// AdminLogEntry is an append-only audit record of a privileged action.
type AdminLogEntry struct {
	ID        AdminLogID
	Timestamp time.Time
	Admin     string
	Action    string
}
