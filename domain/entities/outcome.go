package entities

import (
	"sort"
	"time"
)

// UnknownSpeaker is the label used when no candidate matched a snippet
const UnknownSpeaker = "Unknown"

// RecognitionRequest identifies one dispatched snippet
type RecognitionRequest struct {
	ClientID  string `json:"client_id"`
	RequestID int64  `json:"request_id"`
}

// RecognitionOutcome is the result of a single identification attempt.
// Succeeded selects between the success fields (Identity, Confidence)
// and FailureReason.
type RecognitionOutcome struct {
	ClientID      string    `json:"client_id" bson:"client_id"`
	RequestID     int64     `json:"request_id" bson:"request_id"`
	Succeeded     bool      `json:"succeeded" bson:"succeeded"`
	Identity      string    `json:"identity,omitempty" bson:"identity,omitempty"`
	Confidence    float64   `json:"confidence,omitempty" bson:"confidence,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	CompletedAt   time.Time `json:"completed_at" bson:"completed_at"`
}

// NewSuccessOutcome builds a successful outcome. An empty identity means no
// candidate matched.
func NewSuccessOutcome(req RecognitionRequest, identity string, confidence float64) RecognitionOutcome {
	return RecognitionOutcome{
		ClientID:    req.ClientID,
		RequestID:   req.RequestID,
		Succeeded:   true,
		Identity:    identity,
		Confidence:  confidence,
		CompletedAt: time.Now(),
	}
}

// NewFailureOutcome builds a failed outcome carrying the reason
func NewFailureOutcome(req RecognitionRequest, reason string) RecognitionOutcome {
	return RecognitionOutcome{
		ClientID:      req.ClientID,
		RequestID:     req.RequestID,
		Succeeded:     false,
		FailureReason: reason,
		CompletedAt:   time.Now(),
	}
}

// IsUnknown reports a successful outcome where no candidate matched
func (o RecognitionOutcome) IsUnknown() bool {
	return o.Succeeded && o.Identity == ""
}

// SpeakerLabel returns the identity, or UnknownSpeaker when none matched
func (o RecognitionOutcome) SpeakerLabel() string {
	if o.Identity == "" {
		return UnknownSpeaker
	}
	return o.Identity
}

// SpeakerTurn is a run of consecutive windows attributed to one speaker
type SpeakerTurn struct {
	Identity       string `json:"identity"`
	FirstRequestID int64  `json:"first_request_id"`
	LastRequestID  int64  `json:"last_request_id"`
}

// SortOutcomes orders outcomes by request id
func SortOutcomes(outcomes []RecognitionOutcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].RequestID < outcomes[j].RequestID
	})
}

// GroupTurns resequences outcomes by request id and merges consecutive
// successful outcomes with the same identity into turns. Failed and unknown
// outcomes do not break a turn.
func GroupTurns(outcomes []RecognitionOutcome) []SpeakerTurn {
	sorted := make([]RecognitionOutcome, len(outcomes))
	copy(sorted, outcomes)
	SortOutcomes(sorted)

	var turns []SpeakerTurn
	for _, o := range sorted {
		if !o.Succeeded || o.Identity == "" {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Identity == o.Identity {
			turns[n-1].LastRequestID = o.RequestID
			continue
		}
		turns = append(turns, SpeakerTurn{
			Identity:       o.Identity,
			FirstRequestID: o.RequestID,
			LastRequestID:  o.RequestID,
		})
	}
	return turns
}
