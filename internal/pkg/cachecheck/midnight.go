package cachecheck

import (
	"time"

	"github.com/anicoll/tibber-prices/internal/pkg/model"
)

// RotationCheck is the outcome of scanning the cache for a missed
// midnight rotation. Homes that are exactly one day behind are the
// expected post-midnight case and are excluded from AvgDaysOld, so a
// fleet uniformly one day stale never counts as severely outdated.
type RotationCheck struct {
	NeedsRotation    bool
	OutdatedHomes    int
	TotalHomes       int
	DaysOldByHome    map[string]int
	AvgDaysOld       float64
	SeverelyOutdated bool
}

// MissedRotation compares each home's first today entry against the
// current date to detect day-boundary drift accumulated while the process
// was not running.
func MissedRotation(priceInfo map[string]*model.HomePriceInfo, currentDate time.Time) RotationCheck {
	result := RotationCheck{
		TotalHomes:    len(priceInfo),
		DaysOldByHome: map[string]int{},
	}

	for homeID, info := range priceInfo {
		if info == nil || len(info.Today) == 0 {
			continue
		}
		daysOld := DaysBetween(info.Today[0].StartsAt, currentDate)
		if daysOld <= 0 {
			continue
		}
		result.NeedsRotation = true
		result.OutdatedHomes++
		if daysOld > 1 {
			result.DaysOldByHome[homeID] = daysOld
		}
	}

	if len(result.DaysOldByHome) > 0 {
		total := 0
		for _, daysOld := range result.DaysOldByHome {
			total += daysOld
		}
		result.AvgDaysOld = float64(total) / float64(len(result.DaysOldByHome))
		result.SeverelyOutdated = result.AvgDaysOld > 1
	}

	return result
}

// Rotate moves every home's tomorrow series into today and resets
// tomorrow to empty. Calling it again before new tomorrow data arrives
// leaves today empty. Must run with exclusive access to the cache.
// Returns how many homes had tomorrow data to rotate.
func Rotate(cache *model.PriceCache) int {
	if cache == nil {
		return 0
	}

	rotated := 0
	for _, info := range cache.PriceInfo {
		if info == nil {
			continue
		}
		if len(info.Tomorrow) > 0 {
			rotated++
			info.Today = info.Tomorrow
		} else {
			info.Today = []model.PricePoint{}
		}
		info.Tomorrow = []model.PricePoint{}
	}
	return rotated
}
