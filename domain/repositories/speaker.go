package repositories

import (
	"context"
	"io"
)

// OperationHandle references an identification operation running remotely
type OperationHandle string

// OperationState is the lifecycle stage of a remote identification operation
type OperationState int

const (
	OperationRunning OperationState = iota
	OperationSucceeded
	OperationFailed
)

func (s OperationState) String() string {
	switch s {
	case OperationRunning:
		return "running"
	case OperationSucceeded:
		return "succeeded"
	case OperationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OperationStatus is one poll result. Identity and Confidence are set when
// State is OperationSucceeded; an empty Identity means no candidate matched.
// Message carries the remote reason when State is OperationFailed.
type OperationStatus struct {
	State      OperationState
	Identity   string
	Confidence float64
	Message    string
}

// SpeakerIdentifier abstracts an asynchronous speaker recognition service
type SpeakerIdentifier interface {
	// Submit uploads audio along with the candidate identities and returns a handle to poll
	Submit(ctx context.Context, audio io.Reader, candidates []string) (OperationHandle, error)
	// PollStatus fetches the current state of a submitted operation
	PollStatus(ctx context.Context, handle OperationHandle) (OperationStatus, error)
}

// EnrollmentStatus describes whether a profile can be identified against
type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "Enrolled"
	EnrollmentEnrolling EnrollmentStatus = "Enrolling"
	EnrollmentTraining  EnrollmentStatus = "Training"
)

// SpeakerProfile is a candidate identity known to the recognition service
type SpeakerProfile struct {
	ID               string           `json:"id"`
	EnrollmentStatus EnrollmentStatus `json:"enrollment_status"`
	Locale           string           `json:"locale,omitempty"`
}

// IsEnrolled reports whether the profile can be used as a candidate
func (p SpeakerProfile) IsEnrolled() bool {
	return p.EnrollmentStatus == EnrollmentEnrolled
}

// ProfileLister enumerates the identities enrolled with the recognition service
type ProfileLister interface {
	ListProfiles(ctx context.Context) ([]SpeakerProfile, error)
}

// EnrolledProfileIDs filters profiles down to the ids usable as candidates
func EnrolledProfileIDs(profiles []SpeakerProfile) []string {
	var ids []string
	for _, p := range profiles {
		if p.IsEnrolled() {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
