// Package cron schedules reminder jobs that are injected into the
// agent as if the user had sent them.
package cron

import (
	"time"

	"github.com/google/uuid"
)

// Schedule describes when a job fires. Exactly one kind applies:
// "cron" uses Expr (six-field, with seconds), "every" repeats each
// EveryMs milliseconds, "at" fires once at AtMs epoch milliseconds.
type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	AtMs    int64  `json:"atMs,omitempty"`
}

// Payload is what a firing job delivers: the message text and the
// channel/chat it should reach. An empty channel means the job runs
// through the direct CLI session.
type Payload struct {
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
}

// JobState tracks the last execution outcome.
type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

// CronJob is a persisted scheduled job.
type CronJob struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	DeleteAfterRun bool     `json:"deleteAfterRun,omitempty"`
	CreatedAtMs    int64    `json:"createdAtMs"`
}

// NewCronJob creates an enabled job with a fresh ID. One-shot "at"
// jobs are removed after they run.
func NewCronJob(name string, schedule Schedule, payload Payload) CronJob {
	return CronJob{
		ID:             uuid.NewString(),
		Name:           name,
		Enabled:        true,
		Schedule:       schedule,
		Payload:        payload,
		DeleteAfterRun: schedule.Kind == "at",
		CreatedAtMs:    time.Now().UnixMilli(),
	}
}
