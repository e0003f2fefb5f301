package background

import (
	"context"
	"log"
	"time"

	"subledger/internal/billing"
	"subledger/internal/repositories"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages background jobs for distributed environment
type JobScheduler struct {
	scheduler gocron.Scheduler
	lineItems repositories.LineItemRepository
	jobs      map[string]gocron.Job
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(lineItems repositories.LineItemRepository) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler: scheduler,
		lineItems: lineItems,
		jobs:      make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	// Plan overlap audit - daily. The engine permits a workspace to hold
	// several active primary plans during an upgrade window; this job
	// keeps the overlap visible instead of enforcing a policy.
	auditJob, err := js.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(2, 0, 0))),
		gocron.NewTask(js.auditPrimaryPlanOverlaps, context.Background()),
		gocron.WithName("plan-overlap-audit"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create plan overlap audit job: %v", err)
	} else {
		js.jobs["plan-overlap-audit"] = auditJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

// auditPrimaryPlanOverlaps reports workspaces holding more than one
// active primary plan tag
func (js *JobScheduler) auditPrimaryPlanOverlaps(ctx context.Context) error {
	log.Printf("Starting primary plan overlap audit")

	auditCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	overlaps, err := js.lineItems.FindPrimaryPlanOverlaps(auditCtx, billing.PrimaryPlanTags())
	if err != nil {
		log.Printf("Failed to run plan overlap audit: %v", err)
		return err
	}

	for _, overlap := range overlaps {
		log.Printf("WARN: workspace %s holds %d active primary plan tags", overlap.WorkspaceID, overlap.ActivePrimaryTags)
	}
	log.Printf("Plan overlap audit finished: %d workspaces flagged", len(overlaps))

	return nil
}
