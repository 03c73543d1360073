package session

import (
	"fmt"
	"time"
)

// Exit reasons recorded in the journal
const (
	ExitQuiet       = "quiet"        // no motion during the last debounce wait
	ExitShutdown    = "shutdown"     // daemon stopped while recording
	ExitSpawnFailed = "spawn_failed" // recorder never started
)

// Record is the journal entry of one recording session
type Record struct {
	ID          string     `json:"id"`
	File        string     `json:"file"`
	RecorderPID int        `json:"recorder_pid,omitempty"`
	Events      int        `json:"events"` // motion events coalesced into this session
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	ExitReason  string     `json:"exit_reason,omitempty"` // "quiet" | "shutdown" | "spawn_failed"
	StopError   string     `json:"stop_error,omitempty"`
}

// Duration is how long the recorder ran, zero while unknown
func (r *Record) Duration() time.Duration {
	if r.StoppedAt == nil {
		return 0
	}
	return r.StoppedAt.Sub(r.StartedAt)
}

// Filename names a recording by the time elapsed between start and at:
// rec_DD_HH-MM-SS.<ext>, with DD counting days from 1. Names sort in the
// order recordings were started.
func Filename(start, at time.Time, ext string) string {
	secs := int64(at.Sub(start) / time.Second)
	if secs < 0 {
		secs = 0
	}

	day := secs / (24 * 3600)
	hour := (secs / 3600) % 24
	minute := (secs / 60) % 60
	return fmt.Sprintf("rec_%02d_%02d-%02d-%02d.%s", day+1, hour, minute, secs%60, ext)
}
