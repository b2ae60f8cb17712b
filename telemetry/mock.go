package telemetry

import "context"

// Mock is an in-memory Service for tests.
type Mock struct {
	// Count is returned by RecentErrorCount.
	Count int

	// Err, when set, fails the call.
	Err error
}

// RecentErrorCount returns the scripted count.
func (m *Mock) RecentErrorCount(context.Context) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Count, nil
}
