package utils

import (
	"os"
	"strconv"
)

// DefaultSemaphoreLimit is the fallback bounded-concurrency ceiling used by
// ExecuteWithResults when the caller does not specify one and the
// environment override is absent.
const DefaultSemaphoreLimit = 20

// GetSemaphoreLimit returns the semaphore limit from the ASHAREINSIGHT_SEMAPHORE_LIMIT
// environment variable, falling back to DefaultSemaphoreLimit.
func GetSemaphoreLimit() int {
	val := os.Getenv("ASHAREINSIGHT_SEMAPHORE_LIMIT")
	if val == "" {
		return DefaultSemaphoreLimit
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit <= 0 {
		return DefaultSemaphoreLimit
	}
	return limit
}
