package cachecheck

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/anicoll/tibber-prices/internal/pkg/model"
)

// Context carries the wall-clock facts a validation pass is evaluated
// against, so tests can pin them without touching the system clock.
type Context struct {
	CurrentDate time.Time
	CurrentHour int
	IsDSTDay    bool
	Now         time.Time
}

func NewContext(now time.Time) Context {
	return Context{
		CurrentDate: now,
		CurrentHour: now.Hour(),
		IsDSTDay:    IsDSTTransitionDay(now),
		Now:         now,
	}
}

type Result struct {
	Valid  bool
	Issues []string
}

func validResult() Result {
	return Result{Valid: true}
}

func (r *Result) addIssue(format string, args ...any) {
	r.Valid = false
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
}

func (r *Result) merge(other Result) {
	if !other.Valid {
		r.Valid = false
		r.Issues = append(r.Issues, other.Issues...)
	}
}

// CurrentHourData checks that the current hour is present in today's
// series and carries a numeric total, then falls through to the day
// completeness check. A missing current hour returns early and takes
// precedence over completeness reporting.
func CurrentHourData(homeID string, today []model.PricePoint, vc Context) Result {
	result := validResult()

	hasCurrentHour := false
	for _, price := range today {
		if !SameDate(price.StartsAt, vc.CurrentDate) || price.StartsAt.Hour() != vc.CurrentHour {
			continue
		}
		hasCurrentHour = true
		if !price.Total.Valid {
			result.addIssue("home %s has corrupt price data for hour %d", homeID, vc.CurrentHour)
			return result
		}
		break
	}

	if !hasCurrentHour {
		result.addIssue("home %s is missing current hour (%d:00) data", homeID, vc.CurrentHour)
		return result
	}

	result.merge(DayCompleteness(homeID, today, vc))
	return result
}

// DayCompleteness verifies hour coverage of today's series against the
// expected hour count for the day: 24 normally, 23 on spring-forward and
// 25 on fall-back days. A shortfall only counts as invalid once the clock
// has moved past the last hour present, i.e. data that should already
// exist is missing.
func DayCompleteness(homeID string, today []model.PricePoint, vc Context) Result {
	result := validResult()

	expectedHours := ExpectedHours(vc.Now)

	uniqueHours := map[int]struct{}{}
	maxHour := 0
	for _, price := range today {
		if SameDate(price.StartsAt, vc.CurrentDate) {
			hour := price.StartsAt.Hour()
			uniqueHours[hour] = struct{}{}
			maxHour = max(maxHour, hour)
		}
	}

	if len(uniqueHours) < expectedHours && vc.CurrentHour > maxHour {
		result.addIssue("home %s has incomplete day data (%d/%d hours)", homeID, len(uniqueHours), expectedHours)
	}

	if vc.IsDSTDay {
		result.merge(DSTTransitionData(homeID, today, vc.Now))
	}

	return result
}

// DSTTransitionData checks the duplicate-hour shape of a transition day:
// spring-forward days must have no repeated hour, fall-back days exactly
// one hour repeated exactly twice.
func DSTTransitionData(homeID string, prices []model.PricePoint, now time.Time) Result {
	result := validResult()

	hoursCount := 0
	hourFrequency := map[int]int{}
	for _, price := range prices {
		if !SameDate(price.StartsAt, now) {
			continue
		}
		hoursCount++
		hourFrequency[price.StartsAt.Hour()]++
	}

	duplicateHours := lo.Keys(lo.PickBy(hourFrequency, func(_ int, freq int) bool {
		return freq > 1
	}))
	sort.Ints(duplicateHours)

	if IsSpringForward(now) {
		if hoursCount != springForwardHours {
			result.addIssue("home %s has incorrect hour count for DST spring forward: %d/%d",
				homeID, hoursCount, springForwardHours)
		}
		if len(duplicateHours) > 0 {
			result.addIssue("home %s has unexpected duplicate hours during DST spring forward: %v",
				homeID, duplicateHours)
		}
		return result
	}

	if hoursCount != fallBackHours {
		result.addIssue("home %s has incorrect hour count for DST fall back: %d/%d",
			homeID, hoursCount, fallBackHours)
	}
	if len(duplicateHours) != 1 || hourFrequency[duplicateHours[0]] != duplicateHourCount {
		result.addIssue("home %s has incorrect duplicate hours during DST fall back: %v",
			homeID, duplicateHours)
	}

	return result
}

// PriceDataResult summarises a validation pass across all homes.
type PriceDataResult struct {
	Valid           bool
	TotalHomes      int
	HomesWithIssues int
	Issues          []string
}

// PriceData validates every home's today series: presence, data age and
// the current-hour/day-completeness checks.
func PriceData(priceInfo map[string]*model.HomePriceInfo, vc Context) PriceDataResult {
	result := PriceDataResult{Valid: true, TotalHomes: len(priceInfo)}

	for _, homeID := range sortedKeys(priceInfo) {
		homeResult := homePriceData(homeID, priceInfo[homeID], vc)
		if !homeResult.Valid {
			result.Valid = false
			result.HomesWithIssues++
			result.Issues = append(result.Issues, homeResult.Issues...)
		}
	}

	return result
}

func homePriceData(homeID string, info *model.HomePriceInfo, vc Context) Result {
	result := validResult()

	if info == nil || len(info.Today) == 0 {
		result.addIssue("home %s has no 'today' data at all", homeID)
		return result
	}

	switch days := DaysBetween(info.Today[0].StartsAt, vc.CurrentDate); {
	case days > 0:
		result.addIssue("home %s has outdated data from %d day(s) ago", homeID, days)
		return result
	case days < 0:
		result.addIssue("home %s has unexpected future data", homeID)
		return result
	}

	result.merge(CurrentHourData(homeID, info.Today, vc))
	return result
}

// CompletenessResult aggregates hour coverage across all homes, surfacing
// systematic gaps (the same hour missing from more than half of the
// homes) separately from per-home shortfalls.
type CompletenessResult struct {
	Complete                 bool
	TotalHomes               int
	HomesWithIncompleteData  int
	HomesWithMissingToday    int
	HomesWithMissingTomorrow int
	MissingHourRanges        []string
	CriticalMissingHours     []int
	NeedsRefresh             bool
}

// Completeness checks hour coverage of every home's today data and, from
// 13:00 local time, whether tomorrow's series has arrived.
func Completeness(priceInfo map[string]*model.HomePriceInfo, vc Context) CompletenessResult {
	result := CompletenessResult{Complete: true, TotalHomes: len(priceInfo)}

	expectTomorrow := vc.Now.Hour() >= tomorrowDataCheckHour
	allHomesHourCounts := map[int]int{}

	for _, homeID := range sortedKeys(priceInfo) {
		info := priceInfo[homeID]

		if info == nil || len(info.Today) == 0 {
			result.Complete = false
			result.HomesWithMissingToday++
			result.NeedsRefresh = true
			continue
		}

		hoursFound := map[int]struct{}{}
		for _, price := range info.Today {
			if SameDate(price.StartsAt, vc.CurrentDate) {
				hour := price.StartsAt.Hour()
				if _, seen := hoursFound[hour]; !seen {
					allHomesHourCounts[hour]++
				}
				hoursFound[hour] = struct{}{}
			}
		}

		currentMissing := lo.Filter(missingHours(vc.Now, hoursFound), func(hour int, _ int) bool {
			return hour <= vc.CurrentHour
		})
		if len(currentMissing) > 0 {
			result.Complete = false
			result.HomesWithIncompleteData++
			result.NeedsRefresh = true
			result.MissingHourRanges = append(result.MissingHourRanges,
				fmt.Sprintf("home %s: hours %s", homeID, strings.Join(hourRanges(currentMissing), ", ")))
		}

		if expectTomorrow && len(info.Tomorrow) == 0 {
			result.Complete = false
			result.HomesWithMissingTomorrow++
		}
	}

	// An hour absent from more than half the homes points at a systematic
	// fetch problem rather than a per-home one.
	for hour, count := range allHomesHourCounts {
		if float64(count) < float64(result.TotalHomes)*0.5 {
			result.CriticalMissingHours = append(result.CriticalMissingHours, hour)
		}
	}
	if len(result.CriticalMissingHours) > 0 {
		sort.Ints(result.CriticalMissingHours)
		result.NeedsRefresh = true
	}

	return result
}

// missingHours returns the hours of the local day absent from hoursFound.
// On spring-forward days the skipped hour, recognisable as a lone gap
// between two present hours, is not expected.
func missingHours(now time.Time, hoursFound map[int]struct{}) []int {
	expected := map[int]struct{}{}
	for hour := range hoursInDay {
		expected[hour] = struct{}{}
	}

	if IsDSTTransitionDay(now) && IsSpringForward(now) {
		for hour := 1; hour < hoursInDay-1; hour++ {
			_, found := hoursFound[hour]
			_, prevFound := hoursFound[hour-1]
			_, nextFound := hoursFound[hour+1]
			if !found && prevFound && nextFound {
				delete(expected, hour)
				break
			}
		}
	}

	var missing []int
	for hour := range expected {
		if _, found := hoursFound[hour]; !found {
			missing = append(missing, hour)
		}
	}
	sort.Ints(missing)
	return missing
}

// hourRanges collapses sorted hours into compact strings, e.g. [2 3 4 9]
// becomes ["2-4", "9"].
func hourRanges(hours []int) []string {
	if len(hours) == 0 {
		return nil
	}

	var ranges []string
	start, prev := hours[0], hours[0]
	flush := func() {
		if start == prev {
			ranges = append(ranges, fmt.Sprintf("%d", start))
		} else {
			ranges = append(ranges, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, hour := range hours[1:] {
		if hour != prev+1 {
			flush()
			start = hour
		}
		prev = hour
	}
	flush()
	return ranges
}
