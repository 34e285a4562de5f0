package release

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

func workflowOptions() workflow.RegisterOptions {
	return workflow.RegisterOptions{Name: WorkflowName}
}

// Register adds the release workflow and its activity to w.
func Register(w worker.Registry, acts *Activities) {
	w.RegisterWorkflowWithOptions(ReleaseHoldWorkflow, workflowOptions())
	w.RegisterActivityWithOptions(acts.ExpireBooking, activity.RegisterOptions{Name: ActivityExpireBooking})
}
