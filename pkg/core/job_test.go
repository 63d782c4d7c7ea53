package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode_Values(t *testing.T) {
	assert.Equal(t, StatusCode("STARTING"), StatusStarting)
	assert.Equal(t, StatusCode("IN_QUEUE"), StatusInQueue)
	assert.Equal(t, StatusCode("ITERATING"), StatusIterating)
	assert.Equal(t, StatusCode("FINISHED"), StatusFinished)
	assert.Equal(t, StatusCode("CANCELLED"), StatusCancelled)
}

func TestStatusCode_IsTerminal(t *testing.T) {
	terminal := []StatusCode{StatusFinished, StatusCancelled}
	nonTerminal := []StatusCode{
		StatusStarting, StatusJoiningQueue, StatusQueueFull, StatusInQueue,
		StatusSendingData, StatusProcessing, StatusIterating, StatusProgress, StatusLog,
	}

	for _, c := range terminal {
		assert.True(t, c.IsTerminal(), "%s should be terminal", c)
	}
	for _, c := range nonTerminal {
		assert.False(t, c.IsTerminal(), "%s should not be terminal", c)
	}
}

func TestStatusUpdate_CloneIsDeep(t *testing.T) {
	rank, size, eta := 2, 5, 3*time.Second
	ok := true
	length := 10
	orig := StatusUpdate{
		Code:      StatusInQueue,
		Time:      time.Now(),
		ETA:       &eta,
		Rank:      &rank,
		QueueSize: &size,
		Success:   &ok,
		ProgressData: []ProgressUnit{
			{Index: 1, Length: &length, Unit: "steps"},
		},
		Log: &LogMessage{Level: "info", Message: "hi"},
	}

	clone := orig.Clone()
	*clone.Rank = 99
	*clone.ETA = time.Hour
	clone.ProgressData[0].Index = 7
	*clone.ProgressData[0].Length = 99
	clone.Log.Message = "changed"

	assert.Equal(t, 2, *orig.Rank)
	assert.Equal(t, 3*time.Second, *orig.ETA)
	assert.Equal(t, 1, orig.ProgressData[0].Index)
	assert.Equal(t, 10, *orig.ProgressData[0].Length)
	assert.Equal(t, "hi", orig.Log.Message)
	assert.Equal(t, orig.Code, clone.Code)
}

func TestStatusUpdate_CloneZero(t *testing.T) {
	var s StatusUpdate
	c := s.Clone()
	assert.Nil(t, c.Rank)
	assert.Nil(t, c.ProgressData)
}

func TestOutput_Clone(t *testing.T) {
	var nilOut Output
	assert.Nil(t, nilOut.Clone())

	out := Output{1.0, "two"}
	c := out.Clone()
	require.Len(t, c, 2)
	c[0] = 3.0
	assert.Equal(t, 1.0, out[0])
}

func TestOutput_CloneIsDeep(t *testing.T) {
	out := Output{
		map[string]any{"k": "orig", "nested": []any{1.0, map[string]any{"x": "y"}}},
		[]any{"a"},
		[]byte("raw"),
	}
	c := out.Clone()

	c[0].(map[string]any)["k"] = "mutated"
	c[0].(map[string]any)["nested"].([]any)[1].(map[string]any)["x"] = "z"
	c[1].([]any)[0] = "b"
	c[2].([]byte)[0] = 'R'

	assert.Equal(t, "orig", out[0].(map[string]any)["k"])
	assert.Equal(t, "y", out[0].(map[string]any)["nested"].([]any)[1].(map[string]any)["x"])
	assert.Equal(t, "a", out[1].([]any)[0])
	assert.Equal(t, []byte("raw"), out[2])
}

func TestJobRecord_Failed(t *testing.T) {
	rec := &JobRecord{Status: StatusFinished}
	assert.False(t, rec.Failed())

	rec.LastError = "boom"
	assert.True(t, rec.Failed())

	rec.Status = StatusCancelled
	assert.False(t, rec.Failed())
}
