package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    string
	}{
		{name: "at start", elapsed: 0, want: "rec_01_00-00-00.h264"},
		{name: "sub-second truncates", elapsed: 999 * time.Millisecond, want: "rec_01_00-00-00.h264"},
		{name: "first day", elapsed: 9*time.Hour + 5*time.Minute + 7*time.Second, want: "rec_01_09-05-07.h264"},
		{name: "one day one minute five seconds", elapsed: 86465 * time.Second, want: "rec_02_00-01-05.h264"},
		{name: "one day one hour one minute five seconds", elapsed: 90065 * time.Second, want: "rec_02_01-01-05.h264"},
		{name: "last second of a day", elapsed: 86399 * time.Second, want: "rec_01_23-59-59.h264"},
		{name: "three digit days widen", elapsed: 100 * 24 * time.Hour, want: "rec_101_00-00-00.h264"},
		{name: "clock stepped back", elapsed: -time.Minute, want: "rec_01_00-00-00.h264"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(start, start.Add(tt.elapsed), "h264"))
		})
	}
}

func TestFilenameSortsChronologically(t *testing.T) {
	start := time.Now()
	prev := Filename(start, start, "h264")
	for _, secs := range []int{1, 59, 60, 3599, 3600, 86399, 86400, 90065, 8 * 86400} {
		name := Filename(start, start.Add(time.Duration(secs)*time.Second), "h264")
		assert.Less(t, prev, name, "after %ds", secs)
		prev = name
	}
}

func TestRecordSerialization(t *testing.T) {
	started := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	stopped := started.Add(42 * time.Second)

	t.Run("serializes all fields", func(t *testing.T) {
		r := Record{
			ID:          "4b1c",
			File:        "rec_01_00-00-05.h264",
			RecorderPID: 812,
			Events:      3,
			StartedAt:   started,
			StoppedAt:   &stopped,
			ExitReason:  ExitQuiet,
			StopError:   "no such process",
		}

		data, err := json.Marshal(r)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))

		assert.Equal(t, "rec_01_00-00-05.h264", m["file"])
		assert.Equal(t, "quiet", m["exit_reason"])
		assert.Equal(t, float64(3), m["events"])
		assert.NotEmpty(t, m["stopped_at"])
		assert.Equal(t, 42*time.Second, r.Duration())
	})

	t.Run("omitempty omits unfinished fields", func(t *testing.T) {
		r := Record{ID: "4b1d", File: "rec_01_00-00-09.h264", StartedAt: started}

		data, err := json.Marshal(r)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))

		assert.NotContains(t, m, "stopped_at")
		assert.NotContains(t, m, "exit_reason")
		assert.NotContains(t, m, "stop_error")
		assert.Zero(t, r.Duration())
	})
}
