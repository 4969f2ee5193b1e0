package model

import "time"

// Shared defaults used by both the recorder daemon and the viewer.
const (
	DefaultVerbosity   = VerbosityInfo
	DefaultBufferLines = 10_000
	DefaultRanks       = 1
	DefaultRPCTimeout  = 30 * time.Second
)
