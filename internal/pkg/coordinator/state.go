package coordinator

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/tibber-prices/internal/pkg/cachecheck"
	"github.com/anicoll/tibber-prices/internal/pkg/model"
)

const (
	// tomorrowDataCheckHour opens the WAITING window: the provider starts
	// publishing tomorrow's prices in the early afternoon.
	tomorrowDataCheckHour = 13
	// intensiveSearchHour opens the SEARCHING window.
	intensiveSearchHour = 15

	waitingCheckInterval   = 15 * time.Minute
	searchingCheckInterval = 5 * time.Minute
)

// apiMinuteOffsets spreads installations over different minutes within a
// quarter-hour so they do not all hit the API at once.
var apiMinuteOffsets = [...]int{0, 1, 2, 3, 4}

// State reports the current fetch state derived from cache contents and
// time of day.
func (c *Coordinator) State() model.ApiState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(c.now())
}

func (c *Coordinator) stateLocked(now time.Time) model.ApiState {
	// Having tomorrow's data trumps the clock.
	if c.tomorrowDataAvailable {
		return model.StateIdle
	}

	// Missing basics or today's data forces a search regardless of time.
	if c.cache.UserInfo == nil || len(c.cache.Homes) == 0 {
		return model.StateSearching
	}
	if c.missingTodayDataLocked() {
		return model.StateSearching
	}

	switch {
	case now.Hour() < tomorrowDataCheckHour:
		return model.StateIdle
	case now.Hour() < intensiveSearchHour:
		return model.StateWaiting
	default:
		return model.StateSearching
	}
}

func (c *Coordinator) missingTodayDataLocked() bool {
	for _, info := range c.cache.PriceInfo {
		if info == nil || len(info.Today) == 0 {
			return true
		}
	}
	return false
}

func (c *Coordinator) shouldFetchLocked(now time.Time) bool {
	if !c.initialized {
		return false
	}
	if c.refreshRequested {
		c.logger.Debug("fetching data: refresh requested")
		return true
	}
	if c.cache.UserInfo == nil || len(c.cache.Homes) == 0 {
		c.logger.Debug("fetching data: first run or missing basic data")
		return true
	}
	if c.missingTodayDataLocked() {
		c.logger.Debug("fetching data: missing today's data")
		return true
	}

	switch c.stateLocked(now) {
	case model.StateIdle:
		return false
	case model.StateWaiting:
		return c.shouldCheckInWaitingState(now)
	default:
		return c.shouldCheckInSearchingState(now)
	}
}

// shouldCheckInWaitingState limits WAITING-state checks to this
// installation's distributed minute slot, at most every 15 minutes.
func (c *Coordinator) shouldCheckInWaitingState(now time.Time) bool {
	if !c.lastTomorrowCheck.IsZero() && now.Sub(c.lastTomorrowCheck) < waitingCheckInterval {
		return false
	}
	targetMinute := quarterMarks[c.offsetIndex%len(quarterMarks)]
	minuteOffset := apiMinuteOffsets[c.offsetIndex%len(apiMinuteOffsets)]
	return now.Minute() == (targetMinute+minuteOffset)%60
}

func (c *Coordinator) shouldCheckInSearchingState(now time.Time) bool {
	return c.lastTomorrowCheck.IsZero() || now.Sub(c.lastTomorrowCheck) >= searchingCheckInterval
}

// checkTomorrowData recomputes tomorrow-data availability across all
// homes and, in SEARCHING state, issues one more price info fetch when
// the data has still not arrived.
func (c *Coordinator) checkTomorrowData(ctx context.Context, state model.ApiState, working *model.PriceCache) error {
	now := c.now()
	if !c.lastTomorrowCheck.IsZero() && now.Sub(c.lastTomorrowCheck) < waitingCheckInterval && state == model.StateWaiting {
		return nil
	}

	tomorrow := now.AddDate(0, 0, 1)
	previous := c.tomorrowDataAvailable

	available := true
	homesWithTomorrow := 0
	for _, info := range working.PriceInfo {
		if info == nil || len(info.Tomorrow) == 0 {
			available = false
			continue
		}
		hasTomorrow := lo.SomeBy(info.Tomorrow, func(price model.PricePoint) bool {
			return cachecheck.SameDate(price.StartsAt, tomorrow)
		})
		if hasTomorrow {
			homesWithTomorrow++
		} else {
			available = false
		}
	}

	c.tomorrowDataAvailable = available
	c.lastTomorrowCheck = now

	if available != previous {
		if available {
			c.logger.Info("tomorrow data check: found complete price data for all homes",
				zap.Int("total_homes", len(working.PriceInfo)))
		} else {
			c.logger.Info("tomorrow data check: still waiting for complete price data",
				zap.Int("homes_with_tomorrow", homesWithTomorrow),
				zap.Int("total_homes", len(working.PriceInfo)))
		}
	}

	if state == model.StateSearching && !available {
		c.logger.Debug("actively searching for tomorrow's data")
		homes, err := c.client.GetPriceInfo(ctx)
		if err != nil {
			return err
		}
		applyPriceInfo(working, homes)
	}
	return nil
}

func timeWindow(now time.Time) string {
	switch {
	case now.Hour() < tomorrowDataCheckHour:
		return "before 13:00"
	case now.Hour() < intensiveSearchHour:
		return "13:00-15:00"
	default:
		return "after 15:00"
	}
}
