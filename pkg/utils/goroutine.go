package utils

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector helps detect goroutine leaks in tests. Sessions spawn
// reader, writer and handler goroutines; every test that closes a session
// should end with the count back at its baseline.
type GoroutineLeakDetector struct {
	t             testing.TB
	initialCount  int
	allowedGrowth int
	timeout       time.Duration
	pollInterval  time.Duration
}

// NewGoroutineLeakDetector creates a new goroutine leak detector
func NewGoroutineLeakDetector(t testing.TB) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:            t,
		timeout:      2 * time.Second,
		pollInterval: 20 * time.Millisecond,
	}
}

// Start records the baseline goroutine count
func (d *GoroutineLeakDetector) Start() *GoroutineLeakDetector {
	d.initialCount = runtime.NumGoroutine()
	return d
}

// Leaked waits up to the detector timeout for the goroutine count to return
// to the baseline and reports how many goroutines remain above it
func (d *GoroutineLeakDetector) Leaked() int {
	deadline := time.Now().Add(d.timeout)
	for {
		leaked := runtime.NumGoroutine() - d.initialCount
		if leaked <= d.allowedGrowth || time.Now().After(deadline) {
			return leaked
		}
		time.Sleep(d.pollInterval)
	}
}

// Check fails the test if goroutines leaked, dumping all stacks
func (d *GoroutineLeakDetector) Check() {
	d.t.Helper()
	leaked := d.Leaked()
	if leaked <= d.allowedGrowth {
		return
	}

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	d.t.Errorf("goroutine leak: %d goroutines above baseline %d (allowed %d)\n%s",
		leaked, d.initialCount, d.allowedGrowth, buf[:n])
}

// SetAllowedGrowth sets the number of goroutines allowed to remain
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetTimeout sets how long Leaked waits for goroutines to exit
func (d *GoroutineLeakDetector) SetTimeout(timeout time.Duration) *GoroutineLeakDetector {
	d.timeout = timeout
	return d
}
