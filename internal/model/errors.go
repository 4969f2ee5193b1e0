package model

import "errors"

var (
	// ErrInvalidRank means a rank index is outside [0, rankCount).
	ErrInvalidRank = errors.New("invalid rank")
	// ErrNoTimestampFound means a stream has no parsable opening record yet.
	ErrNoTimestampFound = errors.New("no timestamp found")
	// ErrStaleRecorder means the process backing a recorder is gone.
	ErrStaleRecorder = errors.New("stale recorder")
	// ErrInvalidTopology means the set of recorders is not a valid session layout.
	ErrInvalidTopology = errors.New("invalid topology")

	ErrUnknownLocation  = errors.New("unknown location")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUnknownVerbosity = errors.New("unknown verbosity")
	ErrUnknownPane      = errors.New("unknown pane")
)
