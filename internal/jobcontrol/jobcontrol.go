// Package jobcontrol holds the crawl job state machine: which status
// changes are legal, how operator signals mutate a job, and what a running
// job must do at each item checkpoint.
package jobcontrol

import (
	"fmt"
	"time"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
)

// validTransitions lists every allowed (from → to) pair. Terminal statuses
// have no entry.
var validTransitions = map[crawler.JobStatus][]crawler.JobStatus{
	crawler.JobStatusPending: {crawler.JobStatusRunning, crawler.JobStatusCancelled, crawler.JobStatusFailed},
	crawler.JobStatusRunning: {
		crawler.JobStatusPaused, crawler.JobStatusStopping,
		crawler.JobStatusCompleted, crawler.JobStatusFailed, crawler.JobStatusCancelled,
	},
	crawler.JobStatusPaused: {
		crawler.JobStatusRunning, crawler.JobStatusStopping,
		crawler.JobStatusCancelled, crawler.JobStatusFailed,
	},
	crawler.JobStatusStopping: {crawler.JobStatusCancelled, crawler.JobStatusFailed},
}

// ParseStatus converts a raw string to a JobStatus.
func ParseStatus(s string) (crawler.JobStatus, error) {
	st := crawler.JobStatus(s)
	switch st {
	case crawler.JobStatusPending, crawler.JobStatusRunning, crawler.JobStatusPaused,
		crawler.JobStatusStopping, crawler.JobStatusCompleted, crawler.JobStatusFailed,
		crawler.JobStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTransitionAllowed reports whether from → to is permitted.
func IsTransitionAllowed(from, to crawler.JobStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Action is an operator control signal.
type Action string

// Control actions exposed over the API and CLI.
const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionStop   Action = "stop"
	ActionCancel Action = "cancel"
)

// ParseAction validates a raw action name.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	switch a {
	case ActionPause, ActionResume, ActionStop, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("unknown control action %q", s)
}

// AllowedFrom lists the statuses in which a is accepted. Stores with
// conditional updates use it as their WHERE clause.
func AllowedFrom(a Action) []crawler.JobStatus {
	switch a {
	case ActionPause:
		return []crawler.JobStatus{crawler.JobStatusRunning}
	case ActionResume:
		return []crawler.JobStatus{crawler.JobStatusPaused}
	case ActionStop:
		return []crawler.JobStatus{crawler.JobStatusRunning, crawler.JobStatusPaused}
	case ActionCancel:
		return []crawler.JobStatus{
			crawler.JobStatusPending, crawler.JobStatusRunning,
			crawler.JobStatusPaused, crawler.JobStatusStopping,
		}
	default:
		return nil
	}
}

// CanPause reports whether a pause request would be accepted.
func CanPause(job crawler.CrawlJob) bool {
	return job.Status == crawler.JobStatusRunning && !job.ShouldStop
}

// CanResume reports whether job is paused.
func CanResume(job crawler.CrawlJob) bool {
	return job.Status == crawler.JobStatusPaused
}

// CanStop reports whether a graceful stop would be accepted.
func CanStop(job crawler.CrawlJob) bool {
	return job.Status == crawler.JobStatusRunning || job.Status == crawler.JobStatusPaused
}

// CanCancel reports whether job has not finished yet.
func CanCancel(job crawler.CrawlJob) bool {
	return !job.Status.IsTerminal()
}

// Apply mutates job for action a at now and reports whether it was allowed.
// Pause only raises the flag; the run itself moves to paused at its next
// checkpoint. Cancel also raises the stop flag so an active run unwinds.
func Apply(job *crawler.CrawlJob, a Action, now time.Time) bool {
	switch a {
	case ActionPause:
		if !CanPause(*job) {
			return false
		}
		job.ShouldPause = true
	case ActionResume:
		if !CanResume(*job) {
			return false
		}
		if job.PausedAt != nil {
			job.PausedTotal += now.Sub(*job.PausedAt)
		}
		job.PausedAt = nil
		job.ShouldPause = false
		job.Status = crawler.JobStatusRunning
	case ActionStop:
		if !CanStop(*job) {
			return false
		}
		job.ShouldStop = true
		job.Status = crawler.JobStatusStopping
	case ActionCancel:
		if !CanCancel(*job) {
			return false
		}
		job.ShouldStop = true
		job.Status = crawler.JobStatusCancelled
		job.CompletedAt = &now
		if job.Reason == "" {
			job.Reason = "cancelled by operator"
		}
	default:
		return false
	}
	return true
}

// MarkPaused moves a running job with a pending pause request to paused and
// clears the request.
func MarkPaused(job *crawler.CrawlJob, now time.Time) bool {
	if job.Status != crawler.JobStatusRunning || !job.ShouldPause {
		return false
	}
	job.Status = crawler.JobStatusPaused
	job.ShouldPause = false
	job.PausedAt = &now
	return true
}

// Start moves a pending job to running.
func Start(job *crawler.CrawlJob, now time.Time) bool {
	if job.Status != crawler.JobStatusPending {
		return false
	}
	job.Status = crawler.JobStatusRunning
	job.StartedAt = &now
	return true
}

// Finish drives job to a terminal status. A job an operator already
// cancelled keeps its status; only the completion time and message are
// filled in.
func Finish(job *crawler.CrawlJob, status crawler.JobStatus, message string, now time.Time) bool {
	if job.Status.IsTerminal() {
		if job.CompletedAt == nil {
			job.CompletedAt = &now
		}
		if job.ErrorMessage == "" {
			job.ErrorMessage = message
		}
		return false
	}
	if !IsTransitionAllowed(job.Status, status) {
		// stopping only ends as cancelled or failed.
		status = crawler.JobStatusCancelled
	}
	job.Status = status
	job.ErrorMessage = message
	job.CompletedAt = &now
	job.ShouldPause = false
	return true
}

// Decision is what a running job does at a checkpoint.
type Decision int

// Checkpoint outcomes.
const (
	Continue Decision = iota
	Pause
	Stop
)

// Decide inspects the persisted control state. Stop wins over pause.
func Decide(job crawler.CrawlJob) Decision {
	switch {
	case job.ShouldStop,
		job.Status == crawler.JobStatusStopping,
		job.Status == crawler.JobStatusCancelled,
		job.Status == crawler.JobStatusFailed:
		return Stop
	case job.ShouldPause, job.Status == crawler.JobStatusPaused:
		return Pause
	default:
		return Continue
	}
}
