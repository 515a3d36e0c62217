package execution

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards the Task Execution Engine's tests against goroutine
// leaks: tick()/checkTimeouts()/sweepStaleAgents() all join their dispatch
// goroutines before returning, and no test in this package calls Start(),
// so nothing here should outlive a test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
