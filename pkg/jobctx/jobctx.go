// Package jobctx exposes the job a context belongs to.
//
// The client attaches an Info to the context its worker runs each job
// under, and hooks receive that context. Use it to tag logs or metrics.
package jobctx

import (
	"context"
	"log/slog"
)

// Info identifies one submitted job.
type Info struct {
	JobID       string
	APIName     string
	SessionHash string
}

type infoKey struct{}

// WithJob returns a copy of ctx carrying info.
func WithJob(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// FromContext returns the job info stored in ctx.
func FromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(infoKey{}).(Info)
	return info, ok
}

// JobIDFromContext returns the current job ID, or "" outside a job.
func JobIDFromContext(ctx context.Context) string {
	info, _ := FromContext(ctx)
	return info.JobID
}

// Logger returns logger annotated with the job fields found in ctx.
func Logger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	info, ok := FromContext(ctx)
	if !ok {
		return logger
	}
	return logger.With("job_id", info.JobID, "api_name", info.APIName)
}
