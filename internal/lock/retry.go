package lock

import "time"

// defaultRetry is the polling interval flock uses while waiting to
// acquire a contended lock.
const defaultRetry = 25 * time.Millisecond
