package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/security"
)

func (c *Client) recordSubmitted(ctx context.Context, t *task) {
	if c.config.History == nil {
		return
	}
	rec := &core.JobRecord{
		ID:          t.id,
		APIName:     t.ep.Name(),
		FnIndex:     t.ep.FnIndex,
		SessionHash: t.session,
		Status:      core.StatusStarting,
		Args:        t.argsJSON,
		SubmittedAt: t.submittedAt,
	}
	if err := c.config.History.SaveJob(ctx, rec); err != nil {
		c.logger.Warn("failed to record job", "job_id", t.id, "error", err)
	}
}

// forgetSubmitted drops the record of a job that was never dispatched.
func (c *Client) forgetSubmitted(ctx context.Context, t *task) {
	if c.config.History == nil {
		return
	}
	if err := c.config.History.DeleteJob(ctx, t.id); err != nil {
		c.logger.Warn("failed to remove job record", "job_id", t.id, "error", err)
	}
}

func (c *Client) recordFinished(ctx context.Context, t *task, startedAt time.Time, out core.Output, jobErr error) {
	if c.config.History == nil {
		return
	}
	completedAt := time.Now()
	rec := &core.JobRecord{
		ID:          t.id,
		EventID:     t.comm.JobID(),
		APIName:     t.ep.Name(),
		FnIndex:     t.ep.FnIndex,
		SessionHash: t.session,
		Status:      t.job.Status().Code,
		Args:        t.argsJSON,
		OutputCount: len(t.job.Outputs()),
		SubmittedAt: t.submittedAt,
		CompletedAt: &completedAt,
	}
	if !startedAt.IsZero() {
		rec.StartedAt = &startedAt
	}
	if jobErr != nil {
		rec.LastError = security.SanitizeErrorMessage(jobErr.Error())
	} else if out != nil {
		b, err := json.Marshal(out)
		if err == nil {
			rec.Result = b
		}
	}
	if err := c.config.History.SaveJob(ctx, rec); err != nil {
		c.logger.Warn("failed to record job", "job_id", t.id, "error", err)
	}
}
