package release

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
)

// WorkflowStarter is the part of client.Client used by Scheduler.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Scheduler registers release workflows.  It implements
// booking.ReleaseScheduler.
type Scheduler struct {
	starter   WorkflowStarter
	taskQueue string
}

// NewScheduler returns a Scheduler starting workflows on taskQueue.
func NewScheduler(starter WorkflowStarter, taskQueue string) *Scheduler {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Scheduler{starter: starter, taskQueue: taskQueue}
}

// WorkflowID is the release workflow id of a booking.  Keying the id on
// the booking makes a second registration attach to the running one.
func WorkflowID(bookingID string) string { return "release-hold-" + bookingID }

// ScheduleRelease starts the release workflow of bookingID.  With
// WorkflowExecutionErrorWhenAlreadyStarted left false, starting it while
// one is already running returns that run instead of an error.
func (s *Scheduler) ScheduleRelease(ctx context.Context, bookingID string, fireAt time.Time) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(bookingID),
		TaskQueue: s.taskQueue,
	}
	_, err := s.starter.ExecuteWorkflow(ctx, opts, WorkflowName, ReleaseInput{BookingID: bookingID, FireAt: fireAt.UTC()})
	if err != nil {
		return fmt.Errorf("start release workflow: %w", err)
	}
	return nil
}
