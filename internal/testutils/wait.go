package testutils

import "time"

// Polling bounds for require.Eventually in concurrency tests.
const (
	WaitTimeout = 2 * time.Second
	WaitTick    = time.Millisecond
)
