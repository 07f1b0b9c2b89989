package realtime

import "github.com/google/uuid"

type Event string

const (
	EventFileChange        Event = "file_change"
	EventCandidateProgress Event = "candidate_progress"
)

// CandidateProgress is the live diff of one candidate document while its
// replacement is being generated.
type CandidateProgress struct {
	ChangeID    uuid.UUID `json:"change_id"`
	CandidateID uuid.UUID `json:"candidate_id"`
	ItemID      string    `json:"item_id"`
	Name        string    `json:"name"`
	Diff        string    `json:"diff"`
}

// Message is the unit carried between instances when a shared bus is used.
type Message struct {
	Event     Event              `json:"event"`
	Candidate *CandidateProgress `json:"candidate,omitempty"`
}
