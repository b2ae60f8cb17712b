// Package telemetry reads production error telemetry so the pipeline can
// detect an error spike after a deployment and trigger a revert.
package telemetry

import (
	"context"
	"errors"
)

// ErrorSpikeThreshold is the error count over the sample window above
// which a deployment is considered to have caused a spike.
const ErrorSpikeThreshold = 100

// Service reports recent production error volume.
type Service interface {
	// RecentErrorCount returns the number of errors received over the
	// provider's sample window (roughly the last five minutes).
	RecentErrorCount(ctx context.Context) (int, error)
}

var (
	// ErrNotConfigured indicates the telemetry provider has no
	// credentials. Callers treat this as a skip, not a failure.
	ErrNotConfigured = errors.New("telemetry not configured")
)
