package models

import "time"

// Transcript is a meeting log fetched from the URL announced by the meetbot
type Transcript struct {
	URL  string
	Text string
}

// MeetingSummary represents a generated meeting summary
type MeetingSummary struct {
	TranscriptURL   string
	Participants    []string
	Text            string // Empty when the model produced nothing
	ModelUsed       string
	ExecutionTimeMs int
}

// Empty reports whether the model returned no usable text
func (s *MeetingSummary) Empty() bool {
	return s == nil || s.Text == ""
}

// Elapsed converts a start time to the ExecutionTimeMs representation
func Elapsed(start time.Time) int {
	return int(time.Since(start).Milliseconds())
}
