package release

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

type ReleaseWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env   *testsuite.TestWorkflowEnvironment
	start time.Time
}

func (s *ReleaseWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.start = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	s.env.SetStartTime(s.start)
	s.env.RegisterWorkflowWithOptions(ReleaseHoldWorkflow, workflowOptions())
	s.env.RegisterActivityWithOptions((&Activities{}).ExpireBooking, activity.RegisterOptions{Name: ActivityExpireBooking})
}

func (s *ReleaseWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func TestReleaseWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(ReleaseWorkflowTestSuite))
}

func (s *ReleaseWorkflowTestSuite) TestExpiresAfterHold() {
	var firedAt time.Time
	s.env.OnActivity(ActivityExpireBooking, mock.Anything, "b1").
		Run(func(mock.Arguments) { firedAt = s.env.Now() }).
		Return("expired", nil).Once()

	s.env.ExecuteWorkflow(WorkflowName, ReleaseInput{BookingID: "b1", FireAt: s.start.Add(10 * time.Minute)})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var outcome string
	s.NoError(s.env.GetWorkflowResult(&outcome))
	s.Equal("expired", outcome)
	s.False(firedAt.Before(s.start.Add(10*time.Minute)), "fired at %s", firedAt)
}

func (s *ReleaseWorkflowTestSuite) TestPastDeadlineFiresImmediately() {
	s.env.OnActivity(ActivityExpireBooking, mock.Anything, "b2").Return("already_paid", nil).Once()

	s.env.ExecuteWorkflow(WorkflowName, ReleaseInput{BookingID: "b2", FireAt: s.start.Add(-time.Minute)})

	s.True(s.env.IsWorkflowCompleted())
	var outcome string
	s.NoError(s.env.GetWorkflowResult(&outcome))
	s.Equal("already_paid", outcome)
}

func (s *ReleaseWorkflowTestSuite) TestRetriesUntilExpirySucceeds() {
	s.env.OnActivity(ActivityExpireBooking, mock.Anything, "b3").Return("", errors.New("db unavailable")).Twice()
	s.env.OnActivity(ActivityExpireBooking, mock.Anything, "b3").Return("expired", nil).Once()

	s.env.ExecuteWorkflow(WorkflowName, ReleaseInput{BookingID: "b3", FireAt: s.start.Add(time.Minute)})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}
