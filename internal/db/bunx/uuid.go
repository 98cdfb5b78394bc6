package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for primary keys.
// Score listings order by timestamp, so time-ordered keys keep inserts append-only.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
