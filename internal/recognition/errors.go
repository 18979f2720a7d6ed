package recognition

import "errors"

var (
	// ErrNoCandidates is returned when a client is created without candidate identities
	ErrNoCandidates = errors.New("speakers count can't be smaller than 1")
	// ErrRequestTimeout is the failure reason when polling exhausts its retries
	ErrRequestTimeout = errors.New("request timeout")
	// ErrNilSink is returned when a client is created without an outcome sink
	ErrNilSink = errors.New("outcome sink is required")
)
