// Package release expires bookings whose hold ran out.  Each booking gets
// a Temporal workflow that sleeps until the hold deadline and then asks
// the booking manager to expire it.  Release tasks are never cancelled:
// expiring a paid or already removed booking is a no-op, so a task that
// fires late or twice does no harm.
package release

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// WorkflowName is the registered name of ReleaseHoldWorkflow.
	WorkflowName = "ReleaseHoldWorkflow"
	// ActivityExpireBooking is the registered name of Activities.ExpireBooking.
	ActivityExpireBooking = "ExpireBooking"
	// DefaultTaskQueue serves release workflows and their activity.
	DefaultTaskQueue = "booking-release"
)

// ReleaseInput is the input of ReleaseHoldWorkflow.
type ReleaseInput struct {
	BookingID string    `json:"bookingId"`
	FireAt    time.Time `json:"fireAt"`
}

// activityOptions retries the expiry until it succeeds.  MaximumAttempts
// of zero means unlimited.
var activityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 30 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    0,
	},
}

// ReleaseHoldWorkflow waits until in.FireAt on a durable timer and then
// expires the booking.  It returns the expiry outcome.
func ReleaseHoldWorkflow(ctx workflow.Context, in ReleaseInput) (string, error) {
	logger := workflow.GetLogger(ctx)

	if wait := in.FireAt.Sub(workflow.Now(ctx)); wait > 0 {
		logger.Info("Release scheduled", "bookingId", in.BookingID, "wait", wait)
		if err := workflow.Sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	var outcome string
	if err := workflow.ExecuteActivity(ctx, ActivityExpireBooking, in.BookingID).Get(ctx, &outcome); err != nil {
		logger.Error("Expire booking failed", "bookingId", in.BookingID, "error", err)
		return "", err
	}
	logger.Info("Release done", "bookingId", in.BookingID, "outcome", outcome)
	return outcome, nil
}
