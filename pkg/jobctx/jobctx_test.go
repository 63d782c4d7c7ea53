package jobctx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	t.Run("returns info when set", func(t *testing.T) {
		ctx := WithJob(context.Background(), Info{JobID: "job-1", APIName: "/predict", SessionHash: "abc"})

		info, ok := FromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, "job-1", info.JobID)
		assert.Equal(t, "/predict", info.APIName)
		assert.Equal(t, "abc", info.SessionHash)
		assert.Equal(t, "job-1", JobIDFromContext(ctx))
	})

	t.Run("empty outside a job", func(t *testing.T) {
		_, ok := FromContext(context.Background())
		assert.False(t, ok)
		assert.Empty(t, JobIDFromContext(context.Background()))
	})
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithJob(context.Background(), Info{JobID: "job-7", APIName: "/echo"})
	Logger(ctx, base).Info("hello")

	assert.Contains(t, buf.String(), "job_id=job-7")
	assert.Contains(t, buf.String(), "api_name=/echo")

	buf.Reset()
	Logger(context.Background(), base).Info("plain")
	assert.NotContains(t, buf.String(), "job_id")

	assert.NotNil(t, Logger(ctx, nil))
}
