package cachecheck

import (
	"fmt"
	"time"
)

const (
	// tomorrowDataCheckHour is the local hour from which the provider may
	// publish the next day's prices and stale data starts to matter.
	tomorrowDataCheckHour = 13

	staleThreshold         = 60 * time.Minute
	severelyStaleThreshold = 12 * time.Hour

	// quarterBoundaryWindowMinutes is how far past a quarter-hour mark a
	// crossed boundary still counts as staleness.
	quarterBoundaryWindowMinutes = 5
)

type StalenessResult struct {
	IsStale      bool
	Reason       string
	NeedsRefresh bool
}

// Stale is an age-based check of the last successful full update. A zero
// lastFullUpdate means no update has happened yet. First match wins.
func Stale(lastFullUpdate, now time.Time) StalenessResult {
	if lastFullUpdate.IsZero() {
		return StalenessResult{
			IsStale:      true,
			Reason:       "no previous update timestamp",
			NeedsRefresh: true,
		}
	}

	age := now.Sub(lastFullUpdate)

	switch {
	case age > severelyStaleThreshold:
		return StalenessResult{
			IsStale:      true,
			Reason:       fmt.Sprintf("cache is severely stale (%.1f hours old)", age.Hours()),
			NeedsRefresh: true,
		}
	case age > staleThreshold && now.Hour() >= tomorrowDataCheckHour:
		return StalenessResult{
			IsStale:      true,
			Reason:       fmt.Sprintf("cache is stale during active hours (%.1f minutes old)", age.Minutes()),
			NeedsRefresh: true,
		}
	case now.Minute()/15 != lastFullUpdate.Minute()/15 && now.Minute()%15 < quarterBoundaryWindowMinutes:
		return StalenessResult{
			IsStale:      true,
			Reason:       "passed a quarter-hour boundary since last update",
			NeedsRefresh: true,
		}
	}

	return StalenessResult{}
}
