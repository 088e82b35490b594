package domain

import "time"

// LeadRecord is a completed intake block detected in an assistant reply,
// handed off to the operations chat and the archive.
type LeadRecord struct {
	ParticipantID int64
	Text          string
	CreatedAt     time.Time
}
