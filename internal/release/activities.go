package release

import (
	"context"

	"github.com/iliyamo/quickshow-booking/internal/booking"
	"github.com/iliyamo/quickshow-booking/internal/logging"
)

// Expirer expires a booking idempotently.
type Expirer interface {
	ExpireBooking(ctx context.Context, bookingID string) (booking.Outcome, error)
}

// Activities hosts the activity run by ReleaseHoldWorkflow.
type Activities struct {
	expirer Expirer
}

func NewActivities(e Expirer) *Activities { return &Activities{expirer: e} }

// ExpireBooking delegates to the booking manager.  An error makes
// Temporal retry the activity.
func (a *Activities) ExpireBooking(ctx context.Context, bookingID string) (string, error) {
	out, err := a.expirer.ExpireBooking(ctx, bookingID)
	if err != nil {
		logging.FromContext(ctx).WithField("booking_id", bookingID).WithError(err).Warn("expire attempt failed")
		return "", err
	}
	return string(out), nil
}
