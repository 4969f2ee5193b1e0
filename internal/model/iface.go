package model

import (
	"context"
	"fmt"
)

// Recorder is the contract of a per-process log recorder. The in-process
// implementation lives in internal/recorder; internal/socketrpc provides a
// remote one. Methods taking a context may incur a round trip.
type Recorder interface {
	Location() Location
	RankCount() int

	SetVerbosity(ctx context.Context, level Verbosity) error
	Verbosity(ctx context.Context) (Verbosity, error)

	// SetCategoryVerbosity installs a per-category override.
	SetCategoryVerbosity(ctx context.Context, category Category, level Verbosity) error
	// ClearCategoryVerbosity removes the override so the category follows
	// the global verbosity again.
	ClearCategoryVerbosity(ctx context.Context, category Category) error
	// CategoryVerbosity returns the override for category, if any.
	CategoryVerbosity(ctx context.Context, category Category) (Verbosity, bool, error)

	ClearLogs(ctx context.Context) error
	FetchLog(ctx context.Context, rank int) (string, error)
	// StartingLog returns the opening record of a rank. It survives ClearLogs.
	StartingLog(ctx context.Context, rank int) (string, error)
}

// CheckRank returns ErrInvalidRank unless 0 <= rank < rankCount.
func CheckRank(rank, rankCount int) error {
	if rank < 0 || rank >= rankCount {
		return fmt.Errorf("%w: %d (rank count %d)", ErrInvalidRank, rank, rankCount)
	}
	return nil
}
