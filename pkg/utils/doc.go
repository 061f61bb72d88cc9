// Package utils provides small helpers shared across AShareInsight's
// packages:
//   - Bounded concurrent execution (concurrent.go)
//   - Semaphore-limit configuration (limits.go)
//   - Panic recovery for goroutines (recovery.go)
package utils
