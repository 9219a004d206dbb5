// Package jobs holds the background task definitions and the Asynq worker
// bootstrap. Tasks are named "<domain>:<action>" and enqueued either by the
// application or by the cron scheduler.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskInquiryIntegrityScan sweeps inquiry numbers for interrupted
	// multi-product renumbering.
	TaskInquiryIntegrityScan = "inquiry:integrity_scan"

	// TaskMatchCacheWarmup precomputes normalized company names for the
	// matching directory.
	TaskMatchCacheWarmup = "match:cache_warmup"
)

// IntegrityScanPayload configures one integrity sweep.
type IntegrityScanPayload struct {
	// Requested tags the origin of the scan, "cron" or "manual".
	Requested string `json:"requested"`
}

// NewIntegrityScanTask constructs an Asynq task for the integrity sweep.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInquiryIntegrityScan, data), nil
}

// NewMatchCacheWarmupTask constructs an Asynq task for the warmup pass.
func NewMatchCacheWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskMatchCacheWarmup, nil)
}
