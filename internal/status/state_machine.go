// Package status tracks the lifecycle of measurement batch jobs and derives
// the per-site view consumed by polling clients.
package status

import (
	"fmt"

	"github.com/jonesrussell/storepulse/internal/domain"
)

// ValidateStateTransition checks if a job state transition is valid.
// Job status is strictly monotonic: queued -> running -> completed|failed.
// Attempting to transition a terminal job is a programming error and is
// always rejected.
func ValidateStateTransition(from, to domain.JobStatus) error {
	validTransitions := map[domain.JobStatus][]domain.JobStatus{
		domain.JobStatusQueued: {
			domain.JobStatusRunning, // Batch execution started
		},
		domain.JobStatusRunning: {
			domain.JobStatusCompleted, // Batch finished
			domain.JobStatusFailed,    // Catastrophic failure or stuck-job sweep
		},
		// Terminal states
		domain.JobStatusCompleted: {},
		domain.JobStatusFailed:    {},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}
